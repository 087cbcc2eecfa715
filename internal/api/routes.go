package api

import (
	"net/http"
	"time"

	"studyhub/portal/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RouterConfig carries the settings the routes need from configuration.
type RouterConfig struct {
	JWTSecret    string
	AdminKeyHash string
	CORSOrigins  []string
	Handler      HandlerOptions
}

func SetupRoutes(
	router *gin.Engine,
	cfg RouterConfig,
	contentService service.ContentService,
	activityService service.ActivityService,
) {
	router.Use(corsMiddleware(cfg.CORSOrigins))

	examHandler := NewExamHandler(contentService, cfg.Handler)
	courseHandler := NewCourseHandler(contentService, cfg.Handler)
	activityHandler := NewActivityHandler(activityService, cfg.Handler)
	adminOnly := RequireAdmin()

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiV1 := router.Group("/api/v1")
	apiV1.Use(IdentityMiddleware(cfg.JWTSecret, cfg.AdminKeyHash))
	{
		exams := apiV1.Group("/exams")
		{
			exams.GET("", examHandler.ListContent)
			exams.POST("", adminOnly, examHandler.CreateContent)
			exams.GET("/chapter", examHandler.GetChapter)
			exams.PUT("/chapter", adminOnly, examHandler.UpdateChapter)
			exams.DELETE("/chapter", adminOnly, examHandler.DeleteChapter)
			exams.POST("/quiz/submit", examHandler.SubmitQuiz)
		}

		courses := apiV1.Group("/courses")
		{
			courses.GET("", courseHandler.ListContent)
			courses.POST("", adminOnly, courseHandler.CreateContent)
			courses.GET("/unit", courseHandler.GetChapter)
			courses.PUT("/unit", adminOnly, courseHandler.UpdateChapter)
			courses.DELETE("/unit", adminOnly, courseHandler.DeleteChapter)
			courses.POST("/quiz/submit", courseHandler.SubmitQuiz)
		}

		activity := apiV1.Group("/activity")
		{
			activity.POST("", activityHandler.LogActivity)
			activity.GET("", activityHandler.ListActivity)
		}
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", AdminKeyHeader},
		ExposeHeaders:    []string{"Content-Length"},
		MaxAge:           12 * time.Hour,
		AllowCredentials: false,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
