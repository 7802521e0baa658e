package router

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/langconfig/backend/config"
	"github.com/langconfig/backend/internal/handler"
)

func Setup(cfg *config.Config, skillHandler *handler.SkillHandler) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		skillGroup := api.Group("/skills")
		{
			skillGroup.GET("", skillHandler.List)
			skillGroup.POST("", skillHandler.Create)
			skillGroup.POST("/reload", skillHandler.ReloadAll)
			skillGroup.POST("/match", skillHandler.Match)
			skillGroup.GET("/:id", skillHandler.Get)
			skillGroup.PUT("/:id", skillHandler.Update)
			skillGroup.DELETE("/:id", skillHandler.Delete)
			skillGroup.POST("/:id/reload", skillHandler.Reload)
			skillGroup.GET("/:id/executions", skillHandler.ListExecutions)
			skillGroup.POST("/:id/executions", skillHandler.RecordExecution)
		}
	}

	return r
}
