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

	_ "github.com/placementcell/placement-api/api/swagger"
	"github.com/placementcell/placement-api/internal/handler"
	"github.com/placementcell/placement-api/internal/middleware"
	"github.com/placementcell/placement-api/internal/models"
	"github.com/placementcell/placement-api/internal/repository"
	"github.com/placementcell/placement-api/internal/service"
	"github.com/placementcell/placement-api/pkg/cache"
	"github.com/placementcell/placement-api/pkg/config"
	"github.com/placementcell/placement-api/pkg/database"
	"github.com/placementcell/placement-api/pkg/export"
	"github.com/placementcell/placement-api/pkg/logger"
	corsmiddleware "github.com/placementcell/placement-api/pkg/middleware/cors"
	reqidmiddleware "github.com/placementcell/placement-api/pkg/middleware/requestid"
	"github.com/placementcell/placement-api/pkg/storage"
)

// @title Placement Cell API
// @version 1.0.0
// @description Application and consent workflow engine for the placement office.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	var limiter *middleware.RedisLimiter
	if cfg.RateLimit.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		defer redisClient.Close()
		limiter = middleware.NewRedisLimiter(redisClient)
	}

	files, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init document storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL)

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	jobRepo := repository.NewJobRepository(db)
	orgRepo := repository.NewOrganizationRepository(db)
	applicationRepo := repository.NewApplicationRepository(db)
	consentRepo := repository.NewConsentRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	policyRepo := repository.NewPolicyRepository(db)

	validate := validator.New()
	metricsService := service.NewMetricsService()

	authService := service.NewAuthService(userRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "placement-api",
	})

	documentService := service.NewDocumentService(files, signer, cfg.APIPrefix+"/documents", logr)
	applicationService := service.NewApplicationService(
		applicationRepo,
		studentRepo,
		jobRepo,
		orgRepo,
		consentRepo,
		userRepo,
		policyRepo,
		cfg.Placement,
		logr,
	)
	consentService := service.NewConsentService(consentRepo, cfg.Placement.ConsentTTL, logr)
	studentService := service.NewStudentService(studentRepo, consentService, auditRepo, documentService, logr)
	approvalService := service.NewApprovalService(
		approvalRepo,
		userRepo,
		service.DefaultApprovalAppliers(orgRepo, studentRepo, applicationRepo, policyRepo),
		logr,
	)
	auditService := service.NewAuditService(auditRepo, export.NewCSVExporter(), export.NewPDFExporter(), logr)
	notificationService := service.NewNotificationService(notificationRepo, service.NewLogDispatcher(logr), cfg.Notifications, logr)
	housekeepingService := service.NewHousekeepingService(
		applicationRepo,
		approvalRepo,
		studentRepo,
		notificationRepo,
		userRepo,
		cfg.Housekeeping,
		logr,
	)

	authHandler := handler.NewAuthHandler(authService)
	applicationHandler := handler.NewApplicationHandler(applicationService, metricsService)
	consentHandler := handler.NewConsentHandler(consentService, metricsService)
	studentHandler := handler.NewStudentHandler(studentService)
	approvalHandler := handler.NewApprovalHandler(approvalService, metricsService)
	auditHandler := handler.NewAuditHandler(auditService)
	documentHandler := handler.NewDocumentHandler(documentService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	if limiter != nil {
		api.Use(middleware.RateLimit(limiter, cfg.RateLimit))
	}

	registerRoutes(api, authService, authHandler, applicationHandler, consentHandler, studentHandler, approvalHandler, auditHandler, documentHandler, metricsHandler)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Notifications.Enabled {
		notificationService.Start(ctx)
		defer notificationService.Stop()
	}
	if cfg.Housekeeping.Enabled {
		housekeepingService.Start(ctx)
		defer housekeepingService.Stop()
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
}

func registerRoutes(
	api *gin.RouterGroup,
	authService *service.AuthService,
	auth *handler.AuthHandler,
	applications *handler.ApplicationHandler,
	consents *handler.ConsentHandler,
	students *handler.StudentHandler,
	approvals *handler.ApprovalHandler,
	audits *handler.AuditHandler,
	documents *handler.DocumentHandler,
	metrics *handler.MetricsHandler,
) {
	student := string(models.RoleStudent)
	deptReviewer := string(models.RoleDeptReviewer)
	admin := string(models.RoleAdmin)
	superAdmin := string(models.RoleSuperAdmin)
	recruiter := string(models.RoleRecruiter)

	api.POST("/auth/login", auth.Login)
	api.POST("/auth/refresh", auth.Refresh)

	// Signed download tokens carry their own authorization.
	api.GET("/documents/:token", documents.Download)

	authed := api.Group("")
	authed.Use(middleware.JWT(authService))

	authed.POST("/auth/logout", auth.Logout)
	authed.GET("/auth/me", auth.Me)

	app := authed.Group("/applications")
	{
		app.POST("", middleware.RBAC(student), applications.Submit)
		app.GET("/eligibility", middleware.RBAC(student), applications.CheckEligibility)
		app.GET("", applications.List)
		app.GET("/:id", applications.Get)
		app.POST("/:id/review/department", middleware.RBAC(deptReviewer), applications.ReviewByDepartment)
		app.POST("/:id/review/admin", middleware.RBAC(admin, superAdmin), applications.ReviewByAdmin)
		app.POST("/:id/withdraw", middleware.RBAC(student), applications.Withdraw)
	}

	consent := authed.Group("/consents", middleware.RBAC(student))
	{
		consent.POST("", consents.Grant)
		consent.GET("", consents.ListMine)
		consent.POST("/:id/revoke", consents.Revoke)
	}

	studentGroup := authed.Group("/students")
	{
		studentGroup.GET("", middleware.RBAC(deptReviewer, admin, superAdmin), students.List)
		studentGroup.GET("/:id", students.Get)
		studentGroup.GET("/:id/recruiter-view", middleware.RBAC(recruiter), students.RecruiterView)
	}

	approval := authed.Group("/approvals", middleware.RBAC(admin, superAdmin))
	{
		approval.POST("", approvals.Create)
		approval.GET("", approvals.List)
		approval.GET("/stats", approvals.Stats)
		approval.GET("/:id", approvals.Get)
		approval.POST("/:id/decide", approvals.Decide)
	}

	audit := authed.Group("/audit", middleware.RBAC(admin, superAdmin))
	{
		audit.GET("", audits.Query)
		audit.GET("/export", audits.Export)
	}

	authed.GET("/system/metrics", middleware.RBAC(admin, superAdmin), metrics.Snapshot)
}
