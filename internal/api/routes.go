package api

import (
	"net/http"

	"alcyxob/attachment-offload/internal/domain"
	"alcyxob/attachment-offload/internal/logging"
	"alcyxob/attachment-offload/internal/metrics"
	"alcyxob/attachment-offload/internal/service"

	"github.com/gin-gonic/gin"
)

// Services bundles the dependencies of the HTTP surface.
type Services struct {
	Auth        service.AuthService
	Attachments service.AttachmentService
	Registry    service.ConfigRegistry
	Migrator    service.BulkMigrator
	Upload      service.UploadService
	Status      service.StatusService
}

func SetupRoutes(router *gin.Engine, jwtSecret string, svc Services) {
	authHandler := NewAuthHandler(svc.Auth)
	attachmentHandler := NewAttachmentHandler(svc.Attachments)
	configHandler := NewConfigHandler(svc.Registry)
	migrationHandler := NewMigrationHandler(svc.Migrator)
	storageHandler := NewStorageHandler(svc.Upload, svc.Status)

	authMiddleware := AuthMiddleware(jwtSecret)
	adminOnly := RoleMiddleware(domain.RoleAdmin)

	router.Use(logging.GinMiddleware(), metrics.GinMiddleware())

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	apiV1 := router.Group("/api/v1")
	{
		authGroup := apiV1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}
	}

	protected := apiV1.Group("")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", func(c *gin.Context) {
			userIDStr, err := getUserIDFromContext(c)
			if err != nil {
				abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
				return
			}
			role, _ := getUserRoleFromContext(c)
			c.JSON(http.StatusOK, gin.H{"userId": userIDStr, "role": role})
		})

		// --- Attachment Routes ---
		attachmentGroup := protected.Group("/attachments")
		{
			attachmentGroup.POST("", attachmentHandler.CreateAttachment)
			attachmentGroup.GET("/remote-url", attachmentHandler.GetRemoteURL)
			attachmentGroup.GET("/:id", attachmentHandler.GetAttachment)
		}

		userGroup := protected.Group("/users")
		userGroup.Use(adminOnly)
		{
			userGroup.POST("", authHandler.CreateUser)
		}

		// --- Remote Config Routes (admin) ---
		configGroup := protected.Group("/remote-configs")
		configGroup.Use(adminOnly)
		{
			configGroup.GET("", configHandler.ListConfigs)
			configGroup.POST("", configHandler.CreateConfig)
			configGroup.GET("/:id", configHandler.GetConfig)
			configGroup.PUT("/:id", configHandler.UpdateConfig)
			configGroup.DELETE("/:id", configHandler.DeleteConfig)
			configGroup.POST("/:id/activate", configHandler.ActivateConfig)
			configGroup.POST("/:id/test", configHandler.TestConfig)
		}
	}

	// Content URLs keep the host's historical paths.
	content := router.Group("/web/content")
	content.Use(authMiddleware)
	{
		content.GET("/:id", attachmentHandler.ServeContent)
	}

	s3Group := router.Group("/s3")
	s3Group.Use(authMiddleware)
	{
		s3Group.GET("/proxy/:id", attachmentHandler.ProxyContent)

		admin := s3Group.Group("")
		admin.Use(adminOnly)
		{
			admin.POST("/upload", storageHandler.Upload)
			admin.GET("/get_file", storageHandler.GetFile)
			admin.GET("/status", storageHandler.Status)
			admin.POST("/migrate", migrationHandler.Migrate)
			admin.POST("/migrate/preview", migrationHandler.Preview)
		}
	}
}
