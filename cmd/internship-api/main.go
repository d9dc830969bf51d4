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
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/internship-lifecycle-api/api/swagger"
	"github.com/noah-isme/internship-lifecycle-api/internal/handler"
	"github.com/noah-isme/internship-lifecycle-api/internal/integration/notification"
	"github.com/noah-isme/internship-lifecycle-api/internal/integration/offer"
	internalmiddleware "github.com/noah-isme/internship-lifecycle-api/internal/middleware"
	"github.com/noah-isme/internship-lifecycle-api/internal/models"
	"github.com/noah-isme/internship-lifecycle-api/internal/repository"
	"github.com/noah-isme/internship-lifecycle-api/internal/scoring"
	"github.com/noah-isme/internship-lifecycle-api/internal/service"
	"github.com/noah-isme/internship-lifecycle-api/pkg/cache"
	"github.com/noah-isme/internship-lifecycle-api/pkg/config"
	"github.com/noah-isme/internship-lifecycle-api/pkg/database"
	"github.com/noah-isme/internship-lifecycle-api/pkg/export"
	"github.com/noah-isme/internship-lifecycle-api/pkg/jobs"
	"github.com/noah-isme/internship-lifecycle-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/internship-lifecycle-api/pkg/middleware/cors"
	"github.com/noah-isme/internship-lifecycle-api/pkg/middleware/ratelimit"
	reqidmiddleware "github.com/noah-isme/internship-lifecycle-api/pkg/middleware/requestid"
	"github.com/noah-isme/internship-lifecycle-api/pkg/retry"
	"github.com/noah-isme/internship-lifecycle-api/pkg/storage"
)

// @title Internship Lifecycle API
// @version 1.0.0
// @description Applications, internships, evaluations and certificates.
// @BasePath /api/v1
// @schemes http https
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

	weights, err := scoring.ParseWeights(cfg.Scoring.TechnicalWeight, cfg.Scoring.InterpersonalWeight,
		cfg.Scoring.AttendanceWeight, cfg.Scoring.InitiativeWeight, cfg.Scoring.ReportWeight)
	if err != nil {
		logr.Fatal("invalid scoring weights", zap.Error(err))
	}
	engine, err := scoring.NewEngine(weights)
	if err != nil {
		logr.Fatal("invalid scoring weights", zap.Error(err))
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	var redisClient *redis.Client
	if client, err := cache.NewRedis(cfg.Redis); err != nil {
		if cfg.Certificates.SequenceBackend == config.SequenceBackendRedis {
			logr.Fatal("redis required by the certificate sequence backend", zap.Error(err))
		}
		logr.Warn("redis unavailable; verification cache and notification stream disabled", zap.Error(err))
	} else {
		redisClient = client
		defer redisClient.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := newDocumentStore(ctx, cfg.Storage)
	if err != nil {
		logr.Fatal("failed to init document store", zap.Error(err))
	}

	metrics := service.NewMetricsService()
	validate := validator.New()
	retrier := retry.New(
		retry.WithMaxAttempts(cfg.Retry.MaxAttempts),
		retry.WithInitialDelay(cfg.Retry.InitialDelay),
		retry.WithMaxDelay(cfg.Retry.MaxDelay),
		retry.WithMultiplier(cfg.Retry.Multiplier),
		retry.WithJitter(cfg.Retry.Jitter),
	)

	applicationRepo := repository.NewApplicationRepository(db)
	internshipRepo := repository.NewInternshipRepository(db)
	evaluationRepo := repository.NewEvaluationRepository(db)
	eventRepo := repository.NewLifecycleEventRepository(db)
	sagaRepo := repository.NewSagaRepository(db)

	var notifier service.NotificationDispatcher = notification.NewLogDispatcher(logr)
	var verifyCache *service.CacheService
	if redisClient != nil {
		if cfg.Notifications.Enabled {
			notifier = notification.NewRedisDispatcher(redisClient, cfg.Notifications.Stream, cfg.Notifications.MaxLen,
				cfg.Notifications.Timeout, logr)
		}
		verifyCache = service.NewCacheService(repository.NewCacheRepository(redisClient, logr), metrics,
			cfg.Certificates.VerifyCacheTTL, logr, true)
	} else {
		verifyCache = service.NewCacheService(nil, metrics, cfg.Certificates.VerifyCacheTTL, logr, false)
	}

	var sequences service.SequenceAllocator = repository.NewCertificateSequenceRepository(db)
	if cfg.Certificates.SequenceBackend == config.SequenceBackendRedis {
		sequences = repository.NewRedisCertificateSequence(redisClient)
	}

	// Services publish through this indirection; the coordinator is built after them.
	var coordinator *service.LifecycleCoordinator
	publisher := service.PublisherFunc(func(ctx context.Context, event models.LifecycleEvent) error {
		return coordinator.Publish(ctx, event)
	})

	applicationService := service.NewApplicationService(applicationRepo, offer.NewClient(cfg.Offer.BaseURL, cfg.Offer.Timeout),
		publisher, retrier, metrics, validate, logr, service.ApplicationServiceConfig{
			MinDurationWeeks: cfg.Lifecycle.MinDurationWeeks,
			MaxDurationWeeks: cfg.Lifecycle.MaxDurationWeeks,
		})
	internshipService := service.NewInternshipService(internshipRepo, repository.NewAttendanceRepository(db),
		repository.NewActivityRepository(db), evaluationRepo, publisher, notifier, metrics, validate, logr,
		service.InternshipServiceConfig{MinAttendanceRate: cfg.Lifecycle.MinAttendanceRate})
	evaluationService := service.NewEvaluationService(evaluationRepo, internshipRepo, engine, notifier, validate, logr)
	reportService := service.NewReportService(repository.NewReportRepository(db), internshipRepo, store, retrier, notifier,
		metrics, validate, logr, service.ReportServiceConfig{
			MaxFileSize:         cfg.Certificates.MaxFileSizeBytes,
			FinalReportProgress: cfg.Lifecycle.FinalReportProgress,
		})
	pdfExporter := export.NewPDFExporter("Certificate of Internship")
	certificateService := service.NewCertificateService(service.CertificateServiceDeps{
		Repo:        repository.NewCertificateRepository(db),
		Internships: internshipRepo,
		Evaluations: evaluationRepo,
		Sequences:   sequences,
		Engine:      engine,
		Renderer:    pdfExporter,
		Store:       store,
		Signer:      storage.NewSignedURLSigner(cfg.Certificates.SignedURLSecret, cfg.Certificates.SignedURLTTL),
		Cache:       verifyCache,
		Publisher:   publisher,
		Retrier:     retrier,
		Metrics:     metrics,
		Logger:      logr,
	}, service.CertificateServiceConfig{
		VerifyBaseURL:  cfg.Certificates.VerifyBaseURL,
		DownloadPath:   cfg.Certificates.DownloadPath,
		VerifyCacheTTL: cfg.Certificates.VerifyCacheTTL,
	})
	coordinator = service.NewLifecycleCoordinator(service.LifecycleCoordinatorDeps{
		Sagas:        sagaRepo,
		Events:       eventRepo,
		Applications: applicationRepo,
		Internships:  internshipRepo,
		Creator:      internshipService,
		Issuer:       certificateService,
		Notifier:     notifier,
		Retrier:      retrier,
		Metrics:      metrics,
		Logger:       logr,
	})
	eventFeed := service.NewEventFeedService(eventRepo, export.NewCSVExporter(), pdfExporter, logr)
	authService := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          firstOrEmpty(cfg.JWT.Audience),
	})

	queue := jobs.NewQueue("lifecycle-coordinator", coordinator.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Coordinator.Workers,
		BufferSize: cfg.Coordinator.BufferSize,
		MaxRetries: 2,
		Backoff:    retrier,
		JobTimeout: time.Minute,
		Logger:     logr,
		DeadLetter: func(ctx context.Context, job jobs.Job, err error) {
			logr.Error("coordinator job abandoned; sweeper will redeliver", zap.String("job_id", job.ID), zap.Error(err))
		},
	})
	queue.Start(ctx)
	defer queue.Stop()
	coordinator.AttachQueue(queue)
	if err := metrics.RegisterQueueDepth("lifecycle-coordinator", queue.Pending); err != nil {
		logr.Warn("queue depth metric unavailable", zap.Error(err))
	}

	sweeper := service.NewSagaSweeper(eventRepo, sagaRepo, coordinator, logr, service.SagaSweeperConfig{
		Schedule:   cfg.Coordinator.SweepSchedule,
		StaleAfter: cfg.Coordinator.StaleAfter,
		BatchSize:  cfg.Coordinator.SweepBatch,
	})
	if err := sweeper.Start(ctx); err != nil {
		logr.Fatal("failed to schedule saga sweeper", zap.Error(err))
	}
	defer sweeper.Stop()

	verifyLimiter := ratelimit.New(cfg.RateLimit.VerifyRPS, cfg.RateLimit.VerifyBurst, logr)
	go sweepLimiter(ctx, verifyLimiter)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics, readinessChecks(db, redisClient))
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handler.Handlers{
		Applications: handler.NewApplicationHandler(applicationService),
		Internships:  handler.NewInternshipHandler(internshipService),
		Evaluations:  handler.NewEvaluationHandler(evaluationService),
		Reports:      handler.NewReportHandler(reportService),
		Certificates: handler.NewCertificateHandler(certificateService),
		Events:       handler.NewEventHandler(eventFeed),
		Sagas:        handler.NewSagaHandler(coordinator),
	}, handler.RouteOptions{
		Tokens:      authService,
		VerifyLimit: verifyLimiter.Middleware(),
		AuditLogger: logr,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newDocumentStore(ctx context.Context, cfg config.StorageConfig) (storage.DocumentStore, error) {
	switch cfg.Driver {
	case config.StorageDriverS3:
		return storage.NewS3Store(ctx, storage.S3StoreConfig{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
			Prefix:   cfg.S3Prefix,
		})
	case config.StorageDriverLocal, "":
		return storage.NewLocalStorage(cfg.BaseDir)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func readinessChecks(db interface{ PingContext(context.Context) error }, client *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	return checks
}

func sweepLimiter(ctx context.Context, limiter *ratelimit.Limiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep()
		}
	}
}

func firstOrEmpty(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
