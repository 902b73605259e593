package app

import (
	"time"

	"palette_backend/internal/config"
	"palette_backend/internal/middleware"
	"palette_backend/pkg/monitoring"
	"palette_backend/pkg/security"
	"palette_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	if cfg.RateLimit.MaxRequests > 0 {
		window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
		router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, window))
	}

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
	router.Use(middleware.Identity())
}

func (a *App) registerRoutes(router *gin.Engine, c *controllers) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))
	router.GET("/metrics", monitoring.PrometheusHandler())

	api := router.Group("/api")
	{
		api.GET("/health", c.health.HealthCheck)

		rubrics := api.Group("/rubrics")
		{
			rubrics.POST("", c.rubric.CreateRubric)
			rubrics.GET("", c.rubric.ListRubrics)
			rubrics.GET("/library", c.rubric.Library)
			rubrics.POST("/import", c.rubric.ImportRubric)
			rubrics.GET("/:id", c.rubric.GetRubric)
			rubrics.PUT("/:id", c.rubric.EditRubric)
			rubrics.POST("/:id/copy", c.rubric.CopyRubric)
			rubrics.GET("/:id/validate", c.rubric.ValidateRubric)
			rubrics.GET("/:id/export", c.rubric.ExportRubric)
			rubrics.POST("/:id/criteria", c.rubric.AddCriterion)
			rubrics.PUT("/:id/criteria/order", c.rubric.ReorderCriteria)
			rubrics.POST("/:id/upload", c.sync.UploadRubric)
		}

		criteria := api.Group("/criteria")
		{
			criteria.PUT("/:id", c.rubric.UpdateCriterion)
			criteria.DELETE("/:id", c.rubric.DeleteCriterion)
		}

		assignments := api.Group("/assignments")
		{
			assignments.PUT("/:id/rubric", c.rubric.AttachToAssignment)
			assignments.POST("/:id/grading-session", c.grading.StartSession)
			assignments.GET("/:id/grading-progress", c.grading.Progress)
			assignments.GET("/:id/analytics", c.grading.Analytics)
			assignments.POST("/:id/submissions/download", c.sync.DownloadSubmissions)
		}

		grading := api.Group("/grading")
		{
			grading.POST("/submissions", c.grading.GradeSubmission)
			grading.GET("/submissions/:id", c.grading.GetSubmission)
			grading.POST("/bulk", c.grading.BulkGrade)
			grading.POST("/unsaved", c.grading.BufferUnsaved)
			grading.POST("/unsaved/flush", c.grading.FlushUnsaved)
		}

		sync := api.Group("/sync")
		{
			sync.POST("", c.sync.SyncAll)
			sync.GET("/status", c.sync.Status)
			sync.POST("/probe", c.sync.Probe)
			sync.POST("/retry", c.sync.Retry)
			sync.DELETE("/queue", c.sync.ClearQueue)
			sync.POST("/rubrics/download", c.sync.DownloadRubric)
		}

		api.POST("/courses/download", c.sync.DownloadCourses)
		api.POST("/courses/:id/assignments/download", c.sync.DownloadAssignments)
	}
}
