package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/tswimming/swimschool-api/api/swagger"
	"github.com/tswimming/swimschool-api/internal/handler"
	"github.com/tswimming/swimschool-api/internal/middleware"
	"github.com/tswimming/swimschool-api/internal/models"
	"github.com/tswimming/swimschool-api/internal/repository"
	"github.com/tswimming/swimschool-api/internal/service"
	"github.com/tswimming/swimschool-api/pkg/cache"
	"github.com/tswimming/swimschool-api/pkg/config"
	"github.com/tswimming/swimschool-api/pkg/database"
	"github.com/tswimming/swimschool-api/pkg/jobs"
	"github.com/tswimming/swimschool-api/pkg/logger"
	corsmiddleware "github.com/tswimming/swimschool-api/pkg/middleware/cors"
	reqidmiddleware "github.com/tswimming/swimschool-api/pkg/middleware/requestid"
	"github.com/tswimming/swimschool-api/pkg/storage"
)

// @title Swim School API
// @version 1.0.0
// @description Course registration, payment verification and attendance for a swim school
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	counterRepo := repository.NewCounterRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	leaveRepo := repository.NewLeaveRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr, cfg.Dashboard.Enabled && redisClient != nil)

	authSvc := service.NewAuthService(userRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "swimschool-api",
		AdminEmails:        cfg.Roles.AdminEmails,
		InstructorEmails:   cfg.Roles.InstructorEmails,
	})

	courseSvc := service.NewCourseService(courseRepo, validate, logr)
	studentIDSvc := service.NewStudentIDService(counterRepo, logr)
	slipUploader := storage.NewImageHostClient(cfg.ImageHost)
	notificationSvc := service.NewNotificationService(notificationRepo, userRepo, enrollmentRepo, courseSvc, metricsSvc, cfg.Broadcast.BatchSize, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseSvc, slipUploader, studentIDSvc, userRepo, notificationSvc, auditRepo, metricsSvc, cfg.Payments.ConfirmWindow, validate, logr)
	leaveSvc := service.NewLeaveService(leaveRepo, enrollmentRepo, courseSvc, userRepo, notificationSvc, validate, logr)
	userSvc := service.NewUserService(userRepo, auditRepo, validate, logr)
	dashboardSvc := service.NewDashboardService(enrollmentRepo, courseSvc, cacheSvc, cfg.Dashboard.CacheTTL, logr)
	enrollmentSvc.SetSummaryInvalidator(dashboardSvc)

	var reportSvc *service.ReportService
	var reportQueue *jobs.Queue
	if cfg.Reports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to prepare report storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		reportRepo := repository.NewReportRepository(db)
		reportSvc = service.NewReportService(reportRepo, enrollmentRepo, courseSvc, store, signer, logr)
		reportQueue = jobs.NewQueue("reports", reportSvc.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		reportSvc.SetQueue(reportQueue)
		reportQueue.Start(ctx)
	}

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	courseHandler := handler.NewCourseHandler(courseSvc, slipUploader)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	leaveHandler := handler.NewLeaveHandler(leaveSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	userHandler := handler.NewUserHandler(userSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc, metricsSvc)

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
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
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
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
	}

	courses := api.Group("/courses")
	{
		courses.GET("", courseHandler.List)
		courses.GET("/:id", courseHandler.Get)
		courses.PUT("", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin), courseHandler.Upsert)
		courses.POST("/image", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin), courseHandler.UploadImage)
		courses.DELETE("/:id", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin), courseHandler.Delete)
	}

	enrollments := api.Group("/enrollments", middleware.JWT(authSvc))
	{
		enrollments.POST("", enrollmentHandler.Register)
		enrollments.GET("", enrollmentHandler.List)
		enrollments.POST("/check-in", middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor), enrollmentHandler.CheckIn)
		enrollments.GET("/:id", enrollmentHandler.Get)
		enrollments.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), enrollmentHandler.Delete)
		enrollments.POST("/:id/payment", middleware.RequireRoles(models.RoleAdmin), enrollmentHandler.DecidePayment)
		enrollments.POST("/:id/evaluation", middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor), enrollmentHandler.Evaluate)
		enrollments.POST("/:id/review", enrollmentHandler.SubmitReview)
	}

	leaves := api.Group("/leaves", middleware.JWT(authSvc))
	{
		leaves.POST("", leaveHandler.Request)
		leaves.GET("", leaveHandler.List)
		leaves.POST("/:id/decision", middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor), leaveHandler.Decide)
	}

	notifications := api.Group("/notifications", middleware.JWT(authSvc))
	{
		notifications.GET("", notificationHandler.List)
		notifications.GET("/unread-count", notificationHandler.UnreadCount)
		notifications.POST("/read", notificationHandler.MarkRead)
		notifications.POST("/broadcast", middleware.RequireRoles(models.RoleAdmin), notificationHandler.Broadcast)
		notifications.POST("/expiry-sweep", middleware.RequireRoles(models.RoleAdmin), notificationHandler.ExpirySweep)
	}

	users := api.Group("/users", middleware.JWT(authSvc))
	{
		users.GET("", middleware.RequireRoles(models.RoleAdmin), userHandler.List)
		users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), userHandler.Get)
		users.PUT("/:id/role", middleware.RequireRoles(models.RoleAdmin), userHandler.ChangeRole)
		users.PUT("/:id/profile", middleware.RBAC(string(models.RoleAdmin), "SELF"), userHandler.UpdateProfile)
	}

	dashboard := api.Group("/dashboard", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	{
		dashboard.GET("/summary", dashboardHandler.Summary)
		dashboard.GET("/metrics", dashboardHandler.Metrics)
	}

	if reportSvc != nil {
		reportHandler := handler.NewReportHandler(reportSvc)
		reports := api.Group("/reports")
		{
			// Downloads authenticate via the signed token itself.
			reports.GET("/download", reportHandler.Download)

			authed := reports.Group("", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
			authed.POST("", reportHandler.Request)
			authed.GET("", reportHandler.ListMine)
			authed.GET("/:id", reportHandler.Get)
			authed.POST("/:id/download-token", reportHandler.DownloadToken)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	if reportQueue != nil {
		reportQueue.Stop()
	}
}
