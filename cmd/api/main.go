package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/kerane/projectdesk-api/api/swagger"
	"github.com/kerane/projectdesk-api/internal/handler"
	"github.com/kerane/projectdesk-api/internal/middleware"
	"github.com/kerane/projectdesk-api/internal/models"
	"github.com/kerane/projectdesk-api/internal/repository"
	"github.com/kerane/projectdesk-api/internal/service"
	"github.com/kerane/projectdesk-api/pkg/cache"
	"github.com/kerane/projectdesk-api/pkg/config"
	"github.com/kerane/projectdesk-api/pkg/database"
	"github.com/kerane/projectdesk-api/pkg/logger"
	"github.com/kerane/projectdesk-api/pkg/mailer"
	corsmiddleware "github.com/kerane/projectdesk-api/pkg/middleware/cors"
	reqidmiddleware "github.com/kerane/projectdesk-api/pkg/middleware/requestid"
	"github.com/kerane/projectdesk-api/pkg/storage"
)

// @title ProjectDesk API
// @version 1.0.0
// @description Project and task management backend with email notifications and confirmation workflows
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	store, err := storage.NewLocalStorage(cfg.Storage.BaseDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init document storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)

	mail := mailer.New(cfg.SMTP, logr)
	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	stageRepo := repository.NewStageRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	dependencyRepo := repository.NewTaskDependencyRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	confirmationRepo := repository.NewConfirmationRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr, cfg.Dashboard.Enabled)

	authSvc := service.NewAuthService(userRepo, activityRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "projectdesk-api",
	})

	notificationSvc := service.NewNotificationService(userRepo, projectRepo, activityRepo, mail, cfg.FrontendURL, cfg.SMTP.SendTimeout, logr)
	confirmationSvc := service.NewConfirmationService(confirmationRepo, taskRepo, stageRepo, userRepo, projectRepo, activityRepo, mail, cfg.Confirmation.TokenTTL, cfg.SMTP.SendTimeout, logr)
	projectSvc := service.NewProjectService(projectRepo, userRepo, notificationSvc, activityRepo, validate, logr)
	stageSvc := service.NewStageService(stageRepo, taskRepo, projectRepo, userRepo, confirmationSvc, notificationSvc, notificationRepo, activityRepo, validate, logr)
	taskSvc := service.NewTaskService(taskRepo, projectRepo, userRepo, confirmationSvc, notificationSvc, activityRepo, validate, logr)
	dependencySvc := service.NewTaskDependencyService(dependencyRepo, taskRepo, activityRepo, validate, logr)
	userSvc := service.NewUserService(userRepo, activityRepo, validate, logr)
	activitySvc := service.NewActivityService(activityRepo, logr)
	inboxSvc := service.NewInboxService(notificationRepo, logr)
	dashboardSvc := service.NewDashboardService(projectRepo, taskRepo, cacheSvc, cfg.Dashboard.CacheTTL, logr)
	documentSvc := service.NewDocumentService(documentRepo, store, signer, activityRepo, cfg.Storage.MaxFileSizeBytes, logr)
	reportSvc := service.NewReportService(projectRepo, taskRepo, stageRepo, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	projectHandler := handler.NewProjectHandler(projectSvc, dashboardSvc)
	stageHandler := handler.NewStageHandler(stageSvc)
	taskHandler := handler.NewTaskHandler(taskSvc, dashboardSvc)
	dependencyHandler := handler.NewTaskDependencyHandler(dependencySvc)
	userHandler := handler.NewUserHandler(userSvc)
	activityHandler := handler.NewActivityHandler(activitySvc)
	notificationHandler := handler.NewNotificationHandler(inboxSvc)
	confirmationHandler := handler.NewConfirmationHandler(confirmationSvc, metricsSvc, cfg.FrontendURL, logr)
	documentHandler := handler.NewDocumentHandler(documentSvc)
	reportHandler := handler.NewReportHandler(reportSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
	}

	api.GET("/confirm-email", confirmationHandler.Confirm)
	api.GET("/documents/download", documentHandler.Download)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))
	{
		protected.POST("/auth/logout", authHandler.Logout)
		protected.POST("/auth/change-password", authHandler.ChangePassword)
		protected.GET("/auth/me", authHandler.Me)

		projects := protected.Group("/projects")
		{
			projects.GET("", middleware.RequirePermission(models.ResourceProjects, models.ActionRead), projectHandler.List)
			projects.GET("/:id", middleware.RequirePermission(models.ResourceProjects, models.ActionRead), projectHandler.Get)
			projects.POST("", middleware.RequirePermission(models.ResourceProjects, models.ActionCreate), projectHandler.Create)
			projects.PUT("/:id", middleware.RequirePermission(models.ResourceProjects, models.ActionUpdate), projectHandler.Update)
			projects.DELETE("/:id", middleware.RequirePermission(models.ResourceProjects, models.ActionDelete), projectHandler.Delete)
			projects.GET("/:id/stages", middleware.RequirePermission(models.ResourceStages, models.ActionRead), stageHandler.ListByProject)
		}

		stages := protected.Group("/stages")
		{
			stages.GET("/:id", middleware.RequirePermission(models.ResourceStages, models.ActionRead), stageHandler.Get)
			stages.POST("", middleware.RequirePermission(models.ResourceStages, models.ActionCreate), stageHandler.Create)
			stages.PUT("/:id", middleware.RequirePermission(models.ResourceStages, models.ActionUpdate), stageHandler.Update)
			stages.POST("/:id/complete", middleware.RequirePermission(models.ResourceStages, models.ActionUpdate), stageHandler.Complete)
			stages.DELETE("/:id", middleware.RequirePermission(models.ResourceStages, models.ActionDelete), stageHandler.Delete)
		}

		tasks := protected.Group("/tasks")
		{
			tasks.GET("", middleware.RequirePermission(models.ResourceTasks, models.ActionRead), taskHandler.List)
			tasks.GET("/:id", middleware.RequirePermission(models.ResourceTasks, models.ActionRead), taskHandler.Get)
			tasks.POST("", middleware.RequirePermission(models.ResourceTasks, models.ActionCreate), taskHandler.Create)
			tasks.PUT("/:id", middleware.RequirePermission(models.ResourceTasks, models.ActionUpdate), taskHandler.Update)
			tasks.POST("/:id/reject", middleware.RequirePermission(models.ResourceTasks, models.ActionRead), taskHandler.Reject)
			tasks.DELETE("/:id", middleware.RequirePermission(models.ResourceTasks, models.ActionDelete), taskHandler.Delete)
		}

		dependencies := protected.Group("/task-dependencies")
		{
			dependencies.GET("", middleware.RequirePermission(models.ResourceTasks, models.ActionRead), dependencyHandler.List)
			dependencies.POST("", middleware.RequirePermission(models.ResourceTasks, models.ActionCreate), dependencyHandler.Create)
			dependencies.DELETE("/:id", middleware.RequirePermission(models.ResourceTasks, models.ActionDelete), dependencyHandler.Delete)
		}

		documents := protected.Group("/documents")
		{
			documents.GET("", middleware.RequirePermission(models.ResourceDocuments, models.ActionRead), documentHandler.List)
			documents.GET("/:id", middleware.RequirePermission(models.ResourceDocuments, models.ActionRead), documentHandler.Get)
			documents.POST("", middleware.RequirePermission(models.ResourceDocuments, models.ActionCreate), documentHandler.Upload)
			documents.POST("/:id/download-url", middleware.RequirePermission(models.ResourceDocuments, models.ActionRead), documentHandler.SignedURL)
			documents.DELETE("/:id", middleware.RequirePermission(models.ResourceDocuments, models.ActionDelete), documentHandler.Delete)
		}

		users := protected.Group("/users")
		{
			users.GET("", middleware.RequirePermission(models.ResourceUsers, models.ActionRead), userHandler.List)
			users.GET("/:id", middleware.RequirePermission(models.ResourceUsers, models.ActionRead), userHandler.Get)
			users.PUT("/:id", middleware.RequirePermission(models.ResourceUsers, models.ActionManage), userHandler.Update)
			users.DELETE("/:id", middleware.RequirePermission(models.ResourceUsers, models.ActionManage), userHandler.Deactivate)
		}

		notifications := protected.Group("/notifications")
		{
			notifications.GET("", middleware.RequirePermission(models.ResourceNotifications, models.ActionRead), notificationHandler.List)
			notifications.POST("/:id/read", middleware.RequirePermission(models.ResourceNotifications, models.ActionUpdate), notificationHandler.MarkRead)
			notifications.POST("/read-all", middleware.RequirePermission(models.ResourceNotifications, models.ActionUpdate), notificationHandler.MarkAllRead)
			notifications.GET("/preferences", middleware.RequirePermission(models.ResourceNotifications, models.ActionRead), notificationHandler.GetPreferences)
			notifications.PUT("/preferences", middleware.RequirePermission(models.ResourceNotifications, models.ActionUpdate), notificationHandler.UpdatePreferences)
		}

		protected.GET("/activity", middleware.RequirePermission(models.ResourceActivityLogs, models.ActionRead), activityHandler.List)

		if cfg.Reports.Enabled {
			reports := protected.Group("/reports")
			{
				reports.GET("/projects", middleware.RequirePermission(models.ResourceReports, models.ActionRead), reportHandler.ProjectsOverview)
				reports.GET("/projects/:id", middleware.RequirePermission(models.ResourceReports, models.ActionRead), reportHandler.ProjectReport)
			}
		}

		if cfg.Dashboard.Enabled {
			protected.GET("/dashboard/stats", middleware.RequirePermission(models.ResourceProjects, models.ActionRead), dashboardHandler.Stats)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
}
