package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/skilltrack/competency-api/api/swagger"
	"github.com/skilltrack/competency-api/internal/handler"
	"github.com/skilltrack/competency-api/internal/middleware"
	"github.com/skilltrack/competency-api/internal/models"
	"github.com/skilltrack/competency-api/internal/repository"
	"github.com/skilltrack/competency-api/internal/service"
	"github.com/skilltrack/competency-api/pkg/cache"
	"github.com/skilltrack/competency-api/pkg/config"
	"github.com/skilltrack/competency-api/pkg/database"
	"github.com/skilltrack/competency-api/pkg/jobs"
	"github.com/skilltrack/competency-api/pkg/logger"
	corsmiddleware "github.com/skilltrack/competency-api/pkg/middleware/cors"
	reqidmiddleware "github.com/skilltrack/competency-api/pkg/middleware/requestid"
	"github.com/skilltrack/competency-api/pkg/storage"
)

// @title Competency Training API
// @version 1.0.0
// @description Admin panel backend for competency training tracking
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

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

	exportStorage, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	numberingRepo := repository.NewNumberingRepository(db)
	competencyRepo := repository.NewCompetencyRepository(db)
	trainingRequestRepo := repository.NewTrainingRequestRepository(db)
	vpaRepo := repository.NewVPARepository(db)
	vsrRepo := repository.NewVSRRepository(db)
	parRepo := repository.NewPARRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	reportRepo := repository.NewReportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheRepo.SetMetrics(metricsSvc)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "competency-api",
		SingleSession:      cfg.JWT.SingleSession,
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	competencySvc := service.NewCompetencyService(competencyRepo, trainingRequestRepo, auditRepo, validate, logr)
	trainingRequestSvc := service.NewTrainingRequestService(trainingRequestRepo, competencyRepo, competencySvc, numberingRepo, auditRepo, validate, logr)
	vpaSvc := service.NewVPAService(vpaRepo, trainingRequestRepo, vsrRepo, numberingRepo, auditRepo, validate, logr)
	vsrSvc := service.NewVSRService(vsrRepo, auditRepo, validate, logr)
	parSvc := service.NewPARService(parRepo, competencyRepo, numberingRepo, auditRepo, validate, logr)
	batchSvc := service.NewBatchService(batchRepo, trainingRequestRepo, cacheRepo, cfg.Batches.CountCacheTTL, auditRepo, validate, logr)
	reportSvc := service.NewReportService(reportRepo, trainingRequestRepo, parRepo, auditRepo, exportStorage, signer, validate, logr)
	reportSvc.SetMetrics(metricsSvc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Reports.Enabled {
		exportQueue := jobs.NewQueue("report-exports", reportSvc.ProcessExport, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		reportSvc.SetQueue(exportQueue)
		exportQueue.Start(ctx)
		defer exportQueue.Stop()

		reportSvc.StartCleanup(ctx, cfg.Reports.CleanupInterval, cfg.Reports.ResultTTL)
	}

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	competencyHandler := handler.NewCompetencyHandler(competencySvc)
	trainingRequestHandler := handler.NewTrainingRequestHandler(trainingRequestSvc)
	vpaHandler := handler.NewVPAHandler(vpaSvc)
	vsrHandler := handler.NewVSRHandler(vsrSvc)
	parHandler := handler.NewPARHandler(parSvc)
	batchHandler := handler.NewBatchHandler(batchSvc)
	reportHandler := handler.NewReportHandler(reportSvc, exportStorage)

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
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
	}

	// Download tokens carry their own signature, so the streaming route
	// stays outside the JWT gate.
	api.GET("/reports/download", middleware.OptionalJWT(authSvc), reportHandler.DownloadExport)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	{
		authed.POST("/auth/logout", authHandler.Logout)
		authed.POST("/auth/change-password", authHandler.ChangePassword)
		authed.GET("/auth/me", authHandler.Me)

		users := authed.Group("/users")
		{
			users.GET("", middleware.Permission(models.ModuleUsers, models.ActionList), userHandler.List)
			users.GET("/:id", middleware.Permission(models.ModuleUsers, models.ActionList), userHandler.Get)
			users.POST("", middleware.Permission(models.ModuleUsers, models.ActionAdd), userHandler.Create)
			users.PUT("/:id", middleware.Permission(models.ModuleUsers, models.ActionEdit), userHandler.Update)
			users.DELETE("/:id", middleware.Permission(models.ModuleUsers, models.ActionDelete), userHandler.Delete)
		}

		competencies := authed.Group("/competencies")
		{
			competencies.GET("", middleware.Permission(models.ModuleCompetencies, models.ActionList), competencyHandler.List)
			competencies.GET("/:id", middleware.Permission(models.ModuleCompetencies, models.ActionList), competencyHandler.Get)
			competencies.GET("/:id/applicability", middleware.Permission(models.ModuleCompetencies, models.ActionList), competencyHandler.Applicability)
			competencies.POST("", middleware.Permission(models.ModuleCompetencies, models.ActionAdd), competencyHandler.Create)
			competencies.PUT("/:id", middleware.Permission(models.ModuleCompetencies, models.ActionEdit), competencyHandler.Update)
			competencies.DELETE("/:id", middleware.Permission(models.ModuleCompetencies, models.ActionDelete), competencyHandler.Delete)
			competencies.POST("/:id/requirements", middleware.Permission(models.ModuleCompetencies, models.ActionEdit), competencyHandler.AddRequirement)
			competencies.DELETE("/:id/requirements/:requirementId", middleware.Permission(models.ModuleCompetencies, models.ActionEdit), competencyHandler.RemoveRequirement)
		}

		trainingRequests := authed.Group("/training-requests")
		{
			trainingRequests.GET("", middleware.Permission(models.ModuleTrainingRequests, models.ActionList), trainingRequestHandler.List)
			trainingRequests.GET("/:id", middleware.Permission(models.ModuleTrainingRequests, models.ActionList), trainingRequestHandler.Get)
			trainingRequests.POST("", middleware.Permission(models.ModuleTrainingRequests, models.ActionAdd), trainingRequestHandler.Create)
			trainingRequests.PUT("/:id", middleware.Permission(models.ModuleTrainingRequests, models.ActionEdit), trainingRequestHandler.Update)
		}

		approvals := authed.Group("/validation-approvals")
		{
			approvals.GET("", middleware.Permission(models.ModuleValidationApprovals, models.ActionList), vpaHandler.List)
			approvals.GET("/:id", middleware.Permission(models.ModuleValidationApprovals, models.ActionList), vpaHandler.Get)
			approvals.GET("/:id/logs", middleware.Permission(models.ModuleValidationApprovals, models.ActionList), vpaHandler.Logs)
			approvals.POST("", middleware.Permission(models.ModuleValidationApprovals, models.ActionAdd), vpaHandler.Submit)
			approvals.POST("/:id/review", middleware.Permission(models.ModuleValidationApprovals, models.ActionEdit), vpaHandler.Review)
		}

		schedules := authed.Group("/validation-schedules")
		{
			schedules.GET("", middleware.Permission(models.ModuleValidationSchedules, models.ActionList), vsrHandler.List)
			schedules.GET("/:id", middleware.Permission(models.ModuleValidationSchedules, models.ActionList), vsrHandler.Get)
			schedules.GET("/:id/logs", middleware.Permission(models.ModuleValidationSchedules, models.ActionList), vsrHandler.Logs)
			schedules.POST("/:id/schedule", middleware.Permission(models.ModuleValidationSchedules, models.ActionEdit), vsrHandler.Schedule)
			schedules.POST("/:id/outcome", middleware.Permission(models.ModuleValidationSchedules, models.ActionEdit), vsrHandler.Outcome)
		}

		assignments := authed.Group("/project-assignments")
		{
			assignments.GET("", middleware.Permission(models.ModuleProjectAssignments, models.ActionList), parHandler.List)
			assignments.GET("/:id", middleware.Permission(models.ModuleProjectAssignments, models.ActionList), parHandler.Get)
			assignments.POST("", middleware.Permission(models.ModuleProjectAssignments, models.ActionAdd), parHandler.Create)
			assignments.PUT("/:id", middleware.Permission(models.ModuleProjectAssignments, models.ActionEdit), parHandler.Update)
		}

		batches := authed.Group("/batches")
		{
			batches.GET("", middleware.Permission(models.ModuleBatches, models.ActionList), batchHandler.List)
			batches.GET("/count-by-competency-level", middleware.Permission(models.ModuleBatches, models.ActionList), batchHandler.CountByCompetencyLevel)
			batches.GET("/:id", middleware.Permission(models.ModuleBatches, models.ActionList), batchHandler.Get)
			batches.POST("", middleware.Permission(models.ModuleBatches, models.ActionAdd), batchHandler.Create)
			batches.POST("/:id/learners", middleware.Permission(models.ModuleBatches, models.ActionEdit), batchHandler.AddLearner)
			batches.POST("/:id/homework", middleware.Permission(models.ModuleBatches, models.ActionEdit), batchHandler.SubmitHomework)
			batches.POST("/:id/homework/review", middleware.Permission(models.ModuleBatches, models.ActionEdit), batchHandler.ReviewHomework)
			batches.POST("/:id/attendance", middleware.Permission(models.ModuleBatches, models.ActionEdit), batchHandler.RecordAttendance)
		}

		reports := authed.Group("/reports")
		{
			reports.GET("/training-waitlist", middleware.Permission(models.ModuleReports, models.ActionList), reportHandler.TrainingWaitlist)
			reports.GET("/assignment-waitlist", middleware.Permission(models.ModuleReports, models.ActionList), reportHandler.AssignmentWaitlist)
			reports.GET("/overdue-summary", middleware.Permission(models.ModuleReports, models.ActionList), reportHandler.OverdueSummary)
			reports.GET("/exports", middleware.Permission(models.ModuleReports, models.ActionList), reportHandler.ListExports)
			reports.GET("/exports/:id/download", middleware.Permission(models.ModuleReports, models.ActionList), reportHandler.ExportDownloadToken)
			reports.POST("/exports",
				middleware.Permission(models.ModuleReports, models.ActionAdd),
				middleware.Audit(auditRepo, "export", "reports"),
				reportHandler.QueueExport)
		}

		authed.GET("/activity-log", middleware.Permission(models.ModuleActivityLog, models.ActionList), reportHandler.ActivityLog)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
