// Package app assembles repositories, services and the privacy job queue from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/assign-override-api/internal/repository"
	"github.com/noah-isme/assign-override-api/internal/service"
	"github.com/noah-isme/assign-override-api/internal/subplugin"
	"github.com/noah-isme/assign-override-api/internal/subplugin/feedbackfile"
	"github.com/noah-isme/assign-override-api/internal/subplugin/submissionsigning"
	"github.com/noah-isme/assign-override-api/pkg/cache"
	"github.com/noah-isme/assign-override-api/pkg/config"
	"github.com/noah-isme/assign-override-api/pkg/database"
	"github.com/noah-isme/assign-override-api/pkg/export"
	"github.com/noah-isme/assign-override-api/pkg/jobs"
	"github.com/noah-isme/assign-override-api/pkg/storage"
)

const privacyQueueName = "privacy-requests"

// Container holds the wired application graph.
type Container struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *sqlx.DB
	Redis  *redis.Client

	Metrics   *service.MetricsService
	Tokens    *service.TokenService
	Overrides *service.OverrideService
	Deletion  *service.PrivacyDeletionService
	Exports   *service.PrivacyExportService
	Requests  *service.PrivacyRequestService
	Worker    *service.PrivacyWorker
	Queue     *jobs.Queue
}

// Build connects to the database and Redis and wires every service. Redis is optional;
// when it cannot be reached the effective override cache is disabled.
func Build(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logger.Sugar().Warnw("redis unavailable, override cache disabled", "error", err)
		redisClient = nil
	}

	c, err := wire(cfg, logger, db, redisClient)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func wire(cfg *config.Config, logger *zap.Logger, db *sqlx.DB, redisClient *redis.Client) (*Container, error) {
	validate := validator.New()
	metrics := service.NewMetricsService()

	fileStore, err := storage.NewLocalStorage(cfg.Files.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("init file storage: %w", err)
	}
	exportStore, err := storage.NewLocalStorage(cfg.Privacy.ExportDir)
	if err != nil {
		return nil, fmt.Errorf("init export storage: %w", err)
	}

	assignments := repository.NewAssignmentRepository(db)
	overrides := repository.NewOverrideRepository(db)
	calendarEvents := repository.NewCalendarRepository(db)
	directory := repository.NewDirectoryRepository(db)
	eventLog := repository.NewEventLogRepository(db)
	submissions := repository.NewSubmissionRepository(db)
	grades := repository.NewGradeRepository(db)
	flags := repository.NewUserFlagRepository(db)
	grading := repository.NewGradingRepository(db)
	privacy := repository.NewPrivacyRepository(db)
	requests := repository.NewPrivacyRequestRepository(db)

	cacheEnabled := cfg.Overrides.CacheEnabled && redisClient != nil
	cacheSvc := service.NewCacheService(
		repository.NewCacheRepository(redisClient, "assign", logger),
		metrics,
		cfg.Overrides.CacheTTL,
		logger,
		cacheEnabled,
	)

	plugins := subplugin.NewRegistry()
	plugins.RegisterSubmission(submissionsigning.New(repository.NewSubmissionSigningRepository(db), fileStore, logger))
	plugins.RegisterFeedback(feedbackfile.New(repository.NewFeedbackFileRepository(db), fileStore, logger))

	overrideSvc := service.NewOverrideService(service.OverrideServiceDeps{
		Assignments: assignments,
		Overrides:   overrides,
		Directory:   directory,
		Calendar:    service.NewCalendarService(calendarEvents, overrides, logger),
		Events:      calendarEvents,
		Audit:       service.NewEventService(eventLog, logger),
		Cache:       cacheSvc,
		Metrics:     metrics,
	}, validate, logger)

	deletion := service.NewPrivacyDeletionService(service.PrivacyDeletionDeps{
		Assignments: assignments,
		Overrides:   overrides,
		Calendar:    calendarEvents,
		Submissions: submissions,
		Grades:      grades,
		Flags:       flags,
		Grading:     grading,
		Plugins:     plugins,
		Cache:       cacheSvc,
		Metrics:     metrics,
	}, logger)

	exports := service.NewPrivacyExportService(service.PrivacyExportDeps{
		Assignments: assignments,
		Submissions: submissions,
		Grades:      grades,
		Flags:       flags,
		Grading:     grading,
		Discovery:   privacy,
		Overrides:   overrideSvc,
		Plugins:     plugins,
		Storage:     exportStore,
		Signer:      storage.NewSignedURLSigner(cfg.Privacy.SignedURLSecret, cfg.Privacy.SignedURLTTL),
		CSV:         export.NewCSVExporter(),
		PDF:         export.NewPDFExporter(),
	}, cfg.APIPrefix, logger)

	worker := service.NewPrivacyWorker(requests, deletion, exports, metrics, logger)

	var requestSvc *service.PrivacyRequestService
	queue := jobs.NewQueue(privacyQueueName, worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Privacy.WorkerConcurrency,
		MaxRetries: cfg.Privacy.WorkerRetries,
		OnExhausted: func(ctx context.Context, job jobs.Job, cause error) {
			requestSvc.MarkExhausted(ctx, job, cause)
		},
		Logger: logger,
	})
	requestSvc = service.NewPrivacyRequestService(requests, queue, exports, metrics, validate, logger, service.PrivacyRequestConfig{
		ResultTTL:       cfg.Privacy.ResultTTL,
		CleanupInterval: cfg.Privacy.CleanupInterval,
	})

	return &Container{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Redis:     redisClient,
		Metrics:   metrics,
		Tokens:    NewTokenService(cfg.JWT),
		Overrides: overrideSvc,
		Deletion:  deletion,
		Exports:   exports,
		Requests:  requestSvc,
		Worker:    worker,
		Queue:     queue,
	}, nil
}

// NewTokenService builds the access token service from JWT configuration.
func NewTokenService(cfg config.JWTConfig) *service.TokenService {
	return service.NewTokenService(service.TokenConfig{
		Secret: cfg.Secret,
		Issuer: cfg.Issuer,
		Expiry: cfg.Expiration,
	})
}

// Start launches the privacy queue, replays queued requests and schedules export cleanup.
func (c *Container) Start(ctx context.Context) {
	c.Queue.Start(ctx)
	c.Requests.RecoverPendingJobs(ctx)
	c.Requests.StartCleanup(ctx)
}

// ReadyChecks returns the readiness probes for the database and Redis.
func (c *Container) ReadyChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{
		"database": func(ctx context.Context) error { return database.Ready(ctx, c.DB) },
	}
	if c.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return c.Redis.Ping(ctx).Err() }
	}
	return checks
}

// Close stops background work and releases connections.
func (c *Container) Close() {
	if c.Queue != nil {
		c.Queue.Stop()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.DB != nil {
		_ = c.DB.Close()
	}
}
