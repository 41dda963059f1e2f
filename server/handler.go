package server

import (
	"context"
	"errors"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"recipe-gen/generation"
	"recipe-gen/recipe"
)

// Messages shown on the page
const (
	msgEmptyInput       = "Please enter a title or ingredients."
	msgModelUnavailable = "Model is not loaded. Cannot generate."
	msgGenerationFailed = "Recipe generation failed. Please try again."
	msgUnknownMode      = "Please choose Title or Ingredients."
)

// pageData feeds index.html
type pageData struct {
	Modes     []recipe.Mode
	Mode      recipe.Mode
	Text      string
	LoadError string
	Warning   string
	Error     string
	Recipe    template.HTML
}

// Handler serves the page and the JSON API
type Handler struct {
	svc    *RecipeService
	loader *generation.Loader
	log    *zap.Logger
}

// NewHandler creates a handler
func NewHandler(svc *RecipeService, loader *generation.Loader, log *zap.Logger) *Handler {
	return &Handler{svc: svc, loader: loader, log: log}
}

// Index renders the empty form. The model is loaded on first view so a load
// failure is shown before the user types anything.
func (h *Handler) Index(c *gin.Context) {
	data := h.newPage(c.Request.Context())
	c.HTML(http.StatusOK, "index.html", data)
}

// GenerateForm handles the page's form post
func (h *Handler) GenerateForm(c *gin.Context) {
	data := h.newPage(c.Request.Context())
	data.Text = c.PostForm("text")

	mode, err := recipe.ParseMode(c.DefaultPostForm("mode", string(recipe.ModeTitle)))
	if err != nil {
		data.Warning = msgUnknownMode
		c.HTML(http.StatusBadRequest, "index.html", data)
		return
	}
	data.Mode = mode

	res, err := h.svc.Generate(c.Request.Context(), recipe.Request{Mode: mode, Text: data.Text})
	if err != nil {
		status := statusFor(err)
		switch {
		case errors.Is(err, recipe.ErrEmptyInput):
			data.Warning = msgEmptyInput
		case errors.Is(err, generation.ErrModelUnavailable):
			data.Error = msgModelUnavailable
		default:
			_ = c.Error(err)
			data.Error = msgGenerationFailed
		}
		c.HTML(status, "index.html", data)
		return
	}

	html, err := renderMarkdown(res.Recipe)
	if err != nil {
		_ = c.Error(err)
		data.Error = msgGenerationFailed
		c.HTML(http.StatusInternalServerError, "index.html", data)
		return
	}
	data.Recipe = html

	c.HTML(http.StatusOK, "index.html", data)
}

// GenerateAPI handles POST /api/v1/recipes/generate
func (h *Handler) GenerateAPI(c *gin.Context) {
	requestID := c.GetString(requestIDKey)

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error(), RequestID: requestID})
		return
	}

	mode, err := recipe.ParseMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), RequestID: requestID})
		return
	}

	res, err := h.svc.Generate(c.Request.Context(), recipe.Request{Mode: mode, Text: req.Text})
	if err != nil {
		_ = c.Error(err)
		c.JSON(statusFor(err), ErrorResponse{Error: err.Error(), RequestID: requestID})
		return
	}

	c.JSON(http.StatusOK, GenerateResponse{
		Prompt:    res.Prompt,
		Recipe:    res.Recipe,
		Sections:  res.Sections,
		ElapsedMS: res.Elapsed.Milliseconds(),
		RequestID: requestID,
	})
}

// Health reports whether the model is ready
func (h *Handler) Health(c *gin.Context) {
	p, err := h.loader.Load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "ok",
		Backend:     string(p.Backend),
		Device:      p.Device.String(),
		ModelDir:    p.Checkpoint.Dir,
		Fingerprint: p.Checkpoint.Fingerprint,
	})
}

func (h *Handler) newPage(ctx context.Context) pageData {
	data := pageData{Modes: recipe.Modes(), Mode: recipe.ModeTitle}
	if _, err := h.loader.Load(ctx); err != nil {
		data.LoadError = err.Error()
	}
	return data
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, recipe.ErrEmptyInput), errors.Is(err, recipe.ErrUnknownMode):
		return http.StatusBadRequest
	case errors.Is(err, generation.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}
