package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterConfig holds transport settings.
type RouterConfig struct {
	AllowedOrigins []string
}

// NewRouter wires the wizard routes.
func NewRouter(h *Handler, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), Logger(logger), gin.Recovery())

	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.SetHTMLTemplate(pageTemplate)

	r.GET("/", h.Index)
	r.POST("/start", h.Start)
	r.POST("/next", h.Next)
	r.POST("/back", h.Back)
	r.POST("/stage/:stage", h.Jump)

	r.POST("/images", h.UploadImages)
	r.POST("/images/clear", h.ClearImages)
	r.GET("/images/:index", h.Image)

	r.POST("/ingredients/identify", h.IdentifyIngredients)
	r.POST("/ingredients", h.EditIngredients)

	r.POST("/recipes/generate", h.GenerateRecipes)
	r.GET("/recipes.pdf", h.ExportPDF)
	r.GET("/recipes", h.ListRecipes)

	r.POST("/reset", h.Reset)
	r.GET("/api/state", h.State)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
