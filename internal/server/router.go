package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/veritext/veritext-backend/internal/handlers"
	"github.com/veritext/veritext-backend/internal/middleware"
)

type RouterConfig struct {
	Mode              string
	AllowOrigins      []string
	MaterialHandler   *handlers.MaterialHandler
	SubmissionHandler *handlers.SubmissionHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Mode == "prod" || cfg.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", middleware.HeaderRequestID},
		AllowCredentials: true,
	}))
	router.Use(middleware.RequestID())

	router.GET("/healthcheck", handlers.HealthCheck)

	// Materials
	router.POST("/materials", cfg.MaterialHandler.Register)
	router.POST("/materials/:id/process", cfg.MaterialHandler.Process)
	router.GET("/materials", cfg.MaterialHandler.List)
	router.DELETE("/materials/:id", cfg.MaterialHandler.Delete)
	router.DELETE("/courses/:id", cfg.MaterialHandler.DeleteCourse)
	router.DELETE("/namespace/:ns/all", cfg.MaterialHandler.ResetNamespace)

	// Submissions
	router.POST("/submissions/:id/process", cfg.SubmissionHandler.Process)
	router.GET("/submissions/:id/plagiarism-report", cfg.SubmissionHandler.Report)

	return router
}
