package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"recipe-gen/generation"
)

func newTestRouter(t *testing.T, loader *generation.Loader) *gin.Engine {
	t.Helper()
	h := NewHandler(NewRecipeService(loader, nil), loader, zap.NewNop())
	r, err := NewRouter(h, RouterConfig{}, zap.NewNop())
	require.NoError(t, err)
	return r
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func postForm(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func postJSON(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recipes/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestIndexPage(t *testing.T) {
	r := newTestRouter(t, newTestLoader(t, echoing(curry), nil))

	w := do(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "AI Recipe Generator")
	assert.Contains(t, body, "1. What do you want to provide?")
	assert.Contains(t, body, `value="Ingredients"`)
	assert.Contains(t, body, "Generate Recipe")
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestIndexShowsLoadError(t *testing.T) {
	r := newTestRouter(t, newTestLoader(t, nil, errMissingWeights))

	w := do(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "no model.safetensors in dir")
}

func TestGenerateFormRendersRecipe(t *testing.T) {
	gen := echoing(curry)
	r := newTestRouter(t, newTestLoader(t, gen, nil))

	w := do(r, postForm(url.Values{"mode": {"Title"}, "text": {"Chicken Curry"}}))
	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Here's your AI-generated recipe:")
	assert.Contains(t, body, "Brown the chicken.")
	assert.NotContains(t, body, "&lt;|endofrecipe|&gt;")
	assert.Equal(t, 1, gen.calls())
}

func TestGenerateFormEmptyInput(t *testing.T) {
	gen := echoing(curry)
	r := newTestRouter(t, newTestLoader(t, gen, nil))

	w := do(r, postForm(url.Values{"mode": {"Ingredients"}, "text": {""}}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), msgEmptyInput)
	assert.Zero(t, gen.calls())
}

func TestGenerateFormModelUnavailable(t *testing.T) {
	r := newTestRouter(t, newTestLoader(t, nil, errMissingWeights))

	w := do(r, postForm(url.Values{"mode": {"Title"}, "text": {"Soup"}}))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), msgModelUnavailable)
}

func TestGenerateFormEscapesModelHTML(t *testing.T) {
	gen := echoing("<script>alert(1)</script>\n[STEPS]\nStir.")
	r := newTestRouter(t, newTestLoader(t, gen, nil))

	w := do(r, postForm(url.Values{"mode": {"Title"}, "text": {"Soup"}}))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "<script>alert(1)</script>")
}

func TestGenerateAPI(t *testing.T) {
	r := newTestRouter(t, newTestLoader(t, echoing(curry), nil))

	req := postJSON(`{"mode":"title","text":"Chicken Curry"}`)
	req.Header.Set(RequestIDHeader, "req-42")
	w := do(r, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "req-42", resp.RequestID)
	assert.True(t, strings.HasPrefix(resp.Recipe, "[INGREDIENTS]"))
	assert.Contains(t, resp.Sections.Steps, "Brown the chicken.")
	assert.Contains(t, resp.Prompt, "Chicken Curry")
}

func TestGenerateAPIErrors(t *testing.T) {
	failing := &fakeGenerator{reply: func(string) ([]generation.Output, error) {
		return nil, generation.ErrGenerationFailed
	}}

	tests := []struct {
		name   string
		loader *generation.Loader
		body   string
		want   int
	}{
		{"malformed json", newTestLoader(t, echoing(curry), nil), `{`, http.StatusBadRequest},
		{"unknown mode", newTestLoader(t, echoing(curry), nil), `{"mode":"Dessert","text":"cake"}`, http.StatusBadRequest},
		{"empty text", newTestLoader(t, echoing(curry), nil), `{"mode":"Title","text":""}`, http.StatusBadRequest},
		{"model unavailable", newTestLoader(t, nil, errMissingWeights), `{"mode":"Title","text":"Soup"}`, http.StatusServiceUnavailable},
		{"generation failed", newTestLoader(t, failing, nil), `{"mode":"Title","text":"Soup"}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(newTestRouter(t, tt.loader), postJSON(tt.body))
			assert.Equal(t, tt.want, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
}

func TestHealth(t *testing.T) {
	w := do(newTestRouter(t, newTestLoader(t, echoing(curry), nil)), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "tensor", resp.Backend)
	assert.Equal(t, "00000000deadbeef", resp.Fingerprint)

	w = do(newTestRouter(t, newTestLoader(t, nil, errMissingWeights)), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "model is not loaded")
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, newTestLoader(t, echoing(curry), nil))
	do(r, postJSON(`{"mode":"Title","text":"Soup"}`))

	w := do(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "recipe_gen_http_requests_total")
	assert.Contains(t, w.Body.String(), "recipe_gen_recipe_generations_total")
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(t, newTestLoader(t, echoing(curry), nil))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/recipes/generate", nil)
	req.Header.Set("Origin", "https://client.test")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := do(r, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryReturnsJSON(t *testing.T) {
	var ginOut bytes.Buffer
	prev := gin.DefaultErrorWriter
	gin.DefaultErrorWriter = &ginOut
	t.Cleanup(func() { gin.DefaultErrorWriter = prev })

	core, logs := observer.New(zap.ErrorLevel)
	r := gin.New()
	r.Use(RequestID(), Recovery(zap.New(core)))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := do(r, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")

	assert.Equal(t, 1, logs.FilterMessage("Panic recovered").Len())
	assert.Empty(t, ginOut.String())
}
