package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qtbui/notification-dispatch/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes. The
// rate limiter may be nil, in which case requests are not limited.
func SetupRouter(deps *handler.Dependencies, limiter *RateLimiter) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())
	if limiter != nil {
		r.Use(limiter.Middleware())
	}

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "notification-api-service",
		})
	})

	notificationHandler := handler.NewNotificationHandler(deps)
	templateHandler := handler.NewTemplateHandler(deps)
	jobHandler := handler.NewJobHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		notifications := v1.Group("/notifications")
		{
			// POST /api/v1/notifications/email - Render a template and queue delivery
			notifications.POST("/email", notificationHandler.SendEmail)

			// GET /api/v1/notifications - List notifications with filtering
			notifications.GET("", notificationHandler.ListNotifications)

			// GET /api/v1/notifications/:notification_id - Get notification details
			notifications.GET("/:notification_id", notificationHandler.GetNotification)

			// DELETE /api/v1/notifications/:notification_id - Remove a record
			notifications.DELETE("/:notification_id", notificationHandler.DeleteNotification)
		}

		templates := v1.Group("/templates")
		{
			templates.POST("", templateHandler.CreateTemplate)
			templates.GET("", templateHandler.ListTemplates)
			templates.GET("/:template_id", templateHandler.GetTemplate)
			templates.PUT("/:template_id", templateHandler.UpdateTemplate)
			templates.DELETE("/:template_id", templateHandler.DeleteTemplate)
		}

		jobs := v1.Group("/jobs")
		{
			// GET /api/v1/jobs/:job_id - Inspect a queued delivery job
			jobs.GET("/:job_id", jobHandler.GetJob)

			// DELETE /api/v1/jobs/:job_id - Cancel a not-yet-active job
			jobs.DELETE("/:job_id", jobHandler.RemoveJob)

			// POST /api/v1/jobs/remove - Cancel several jobs
			jobs.POST("/remove", jobHandler.RemoveJobs)

			// POST /api/v1/jobs/:job_id/delay - Re-schedule a waiting job
			jobs.POST("/:job_id/delay", jobHandler.ChangeJobDelay)
		}
	}

	return r
}
