package server

import (
	"html/template"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"recipe-gen/server/templates"
)

// RouterConfig holds router settings
type RouterConfig struct {
	CORSOrigins []string
}

// NewRouter wires middleware and routes
func NewRouter(h *Handler, cfg RouterConfig, log *zap.Logger) (*gin.Engine, error) {
	tmpl, err := template.ParseFS(templates.FS, "*.html")
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.SetHTMLTemplate(tmpl)

	r.Use(RequestID())
	r.Use(Recovery(log))
	r.Use(Logger(log))
	r.Use(Metrics())

	r.GET("/", h.Index)
	r.POST("/generate", h.GenerateForm)
	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.Use(CORS(cfg.CORSOrigins))
	{
		recipes := v1.Group("/recipes")
		recipes.POST("/generate", h.GenerateAPI)
		recipes.OPTIONS("/generate", func(c *gin.Context) {})
	}

	return r, nil
}
