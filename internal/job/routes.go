package job

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/promptrelay/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes mounts the queue boundary. Everything except /health and
// /metrics sits behind the shared-secret check.
func RegisterRoutes(r *gin.Engine, h JobHandlerInterface, apiKey string) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/", middleware.APIKeyAuth(apiKey))
	{
		api.POST("/requests", h.Create)
		api.GET("/requests", h.List)
		api.GET("/requests/:id", h.Get)
		api.DELETE("/requests/:id", h.Consume)
		api.GET("/stats", h.Stats)

		api.POST("/worker/claim", h.Claim)
		api.POST("/worker/:id/complete", h.Complete)
		api.POST("/worker/:id/fail", h.Fail)

		api.POST("/admin/cleanup", h.Cleanup)
		api.DELETE("/admin/requests/:id", h.Delete)
	}
}
