package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"

	"github.com/noah-isme/assign-override-api/internal/models"
	"github.com/noah-isme/assign-override-api/internal/repository"
	appErrors "github.com/noah-isme/assign-override-api/pkg/errors"
	"github.com/noah-isme/assign-override-api/pkg/jobs"
)

type privacyRequestStore interface {
	Create(ctx context.Context, req *models.PrivacyRequest) error
	GetByID(ctx context.Context, id string) (*models.PrivacyRequest, error)
	Update(ctx context.Context, id string, params repository.UpdatePrivacyRequestParams) error
	ListQueued(ctx context.Context, limit int) ([]models.PrivacyRequest, error)
	ListExportsFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PrivacyRequest, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type exportArchive interface {
	DownloadURL(requestID, archive string) (string, error)
	ParseToken(token string, allowExpired bool) (requestID, archive string, expiresAt time.Time, err error)
	Open(archive string) (*os.File, error)
	Remove(archive string) error
}

// PrivacyRequestConfig governs queue recovery and export retention.
type PrivacyRequestConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// PrivacyDownload is an opened export archive.
type PrivacyDownload struct {
	File      *os.File
	Filename  string
	ExpiresAt time.Time
}

// PrivacyRequestService manages the lifecycle of queued privacy requests.
type PrivacyRequestService struct {
	repo      privacyRequestStore
	queue     jobDispatcher
	archives  exportArchive
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       PrivacyRequestConfig
}

// NewPrivacyRequestService constructs the service.
func NewPrivacyRequestService(repo privacyRequestStore, queue jobDispatcher, archives exportArchive, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg PrivacyRequestConfig) *PrivacyRequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 7 * 24 * time.Hour
	}
	return &PrivacyRequestService{
		repo:      repo,
		queue:     queue,
		archives:  archives,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// Create validates, persists and enqueues a privacy request.
func (s *PrivacyRequestService) Create(ctx context.Context, req models.CreatePrivacyRequest, actorID string) (*models.PrivacyRequestStatusResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid privacy request")
	}
	if err := validatePrivacyRequest(req); err != nil {
		return nil, err
	}

	record := &models.PrivacyRequest{
		Type:        req.Type,
		UserIDs:     pq.StringArray(req.UserIDs),
		RequestedBy: actorID,
		Status:      models.PrivacyRequestStatusQueued,
	}
	if req.ContextID != "" {
		record.ContextID = null.StringFrom(req.ContextID)
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create privacy request")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: record.ID, Type: string(record.Type)}); err != nil {
		failed := models.PrivacyRequestStatusFailed
		msg := "failed to enqueue request"
		now := time.Now().UTC()
		_ = s.repo.Update(ctx, record.ID, repository.UpdatePrivacyRequestParams{
			Status:     &failed,
			Error:      &msg,
			FinishedAt: &now,
		})
		s.metrics.RecordPrivacyRequest(record.Type, failed)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue privacy request")
	}
	s.logger.Info("privacy request queued", zap.String("request_id", record.ID), zap.String("type", string(record.Type)), zap.String("actor", actorID))
	return &models.PrivacyRequestStatusResponse{
		ID:        record.ID,
		Type:      record.Type,
		Status:    record.Status,
		CreatedAt: record.CreatedAt,
	}, nil
}

// GetStatus reports progress and, for finished exports, a fresh download link.
func (s *PrivacyRequestService) GetStatus(ctx context.Context, id string) (*models.PrivacyRequestStatusResponse, error) {
	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := &models.PrivacyRequestStatusResponse{
		ID:        record.ID,
		Type:      record.Type,
		Status:    record.Status,
		Error:     record.Error.String,
		CreatedAt: record.CreatedAt,
	}
	if record.FinishedAt.Valid {
		finished := record.FinishedAt.Time
		resp.FinishedAt = &finished
	}
	if record.Status == models.PrivacyRequestStatusFinished && record.ResultPath.Valid {
		url, err := s.archives.DownloadURL(record.ID, record.ResultPath.String)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
		}
		resp.DownloadURL = url
	}
	return resp, nil
}

// ResolveDownload validates a token and opens the export archive it names.
func (s *PrivacyRequestService) ResolveDownload(ctx context.Context, token string) (*PrivacyDownload, error) {
	requestID, archive, expiresAt, err := s.archives.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	record, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if record.Status != models.PrivacyRequestStatusFinished || record.ResultPath.String != archive {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export not available")
	}
	file, err := s.archives.Open(archive)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export archive")
	}
	return &PrivacyDownload{File: file, Filename: path.Base(archive), ExpiresAt: expiresAt}, nil
}

// MarkExhausted records a request whose retries ran out. It is the queue's exhausted handler.
func (s *PrivacyRequestService) MarkExhausted(ctx context.Context, job jobs.Job, cause error) {
	failed := models.PrivacyRequestStatusFailed
	msg := cause.Error()
	now := time.Now().UTC()
	if err := s.repo.Update(ctx, job.ID, repository.UpdatePrivacyRequestParams{
		Status:     &failed,
		Error:      &msg,
		FinishedAt: &now,
	}); err != nil {
		s.logger.Warn("failed to mark privacy request failed", zap.String("request_id", job.ID), zap.Error(err))
	}
	s.metrics.RecordPrivacyRequest(models.PrivacyRequestType(job.Type), failed)
}

// RecoverPendingJobs replays queued requests after a restart.
func (s *PrivacyRequestService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover queued privacy requests", "error", err)
		return
	}
	for _, record := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: record.ID, Type: string(record.Type)}); err != nil {
			s.logger.Sugar().Warnw("failed to requeue privacy request", "request_id", record.ID, "error", err)
		}
	}
}

// StartCleanup periodically removes export archives older than the result TTL.
func (s *PrivacyRequestService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CleanupExpired(ctx)
			}
		}
	}()
}

// CleanupExpired removes expired export archives and returns how many were removed.
func (s *PrivacyRequestService) CleanupExpired(ctx context.Context) int {
	const batch = 100
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	removed := 0
	for {
		records, err := s.repo.ListExportsFinishedBefore(ctx, cutoff, batch)
		if err != nil {
			s.logger.Sugar().Warnw("privacy cleanup list failed", "error", err)
			return removed
		}
		progressed := false
		for _, record := range records {
			if err := s.archives.Remove(record.ResultPath.String); err != nil {
				s.logger.Sugar().Warnw("privacy cleanup delete failed", "request_id", record.ID, "error", err)
				continue
			}
			if err := s.repo.Update(ctx, record.ID, repository.UpdatePrivacyRequestParams{ClearResults: true}); err != nil {
				s.logger.Sugar().Warnw("privacy cleanup update failed", "request_id", record.ID, "error", err)
				continue
			}
			progressed = true
			removed++
		}
		if len(records) < batch || !progressed {
			break
		}
	}
	if removed > 0 {
		s.logger.Info("expired privacy exports removed", zap.Int("count", removed))
	}
	return removed
}

func (s *PrivacyRequestService) load(ctx context.Context, id string) (*models.PrivacyRequest, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "privacy request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load privacy request")
	}
	return record, nil
}

func validatePrivacyRequest(req models.CreatePrivacyRequest) error {
	switch req.Type {
	case models.PrivacyRequestDeleteContext:
		if req.ContextID == "" {
			return appErrors.Clone(appErrors.ErrValidation, "context_id is required")
		}
	case models.PrivacyRequestDeleteUser, models.PrivacyRequestExport:
		if len(req.UserIDs) != 1 {
			return appErrors.Clone(appErrors.ErrValidation, "exactly one user_id is required")
		}
	case models.PrivacyRequestDeleteUsers:
		if req.ContextID == "" || len(req.UserIDs) == 0 {
			return appErrors.Clone(appErrors.ErrValidation, "context_id and user_ids are required")
		}
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unsupported request type")
	}
	return nil
}

type privacyDeleter interface {
	DeleteForContext(ctx context.Context, contextID string) error
	DeleteDataForUser(ctx context.Context, userID string, contextIDs []string) error
	DeleteForUserSet(ctx context.Context, contextID string, userIDs []string) error
}

type privacyExporter interface {
	ContextsForUser(ctx context.Context, userID string) ([]string, error)
	ExportUserData(ctx context.Context, requestID, userID string, contextIDs []string) (*ExportBundle, error)
}

// PrivacyWorker runs queued privacy requests.
type PrivacyWorker struct {
	repo     privacyRequestStore
	deleter  privacyDeleter
	exporter privacyExporter
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewPrivacyWorker constructs a worker.
func NewPrivacyWorker(repo privacyRequestStore, deleter privacyDeleter, exporter privacyExporter, metrics *MetricsService, logger *zap.Logger) *PrivacyWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrivacyWorker{repo: repo, deleter: deleter, exporter: exporter, metrics: metrics, logger: logger}
}

// Handle processes a queue job. A returned error makes the queue retry.
func (w *PrivacyWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if record.Status == models.PrivacyRequestStatusFinished || record.Status == models.PrivacyRequestStatusFailed {
		return nil
	}
	processing := models.PrivacyRequestStatusProcessing
	if err := w.repo.Update(ctx, job.ID, repository.UpdatePrivacyRequestParams{Status: &processing, IncAttempts: true}); err != nil {
		return err
	}

	resultPath, err := w.run(ctx, record)
	if err != nil {
		msg := err.Error()
		queued := models.PrivacyRequestStatusQueued
		if updateErr := w.repo.Update(ctx, job.ID, repository.UpdatePrivacyRequestParams{Status: &queued, Error: &msg}); updateErr != nil {
			w.logger.Sugar().Warnw("failed to requeue privacy request", "request_id", job.ID, "error", updateErr)
		}
		return err
	}

	finished := models.PrivacyRequestStatusFinished
	now := time.Now().UTC()
	cleared := ""
	params := repository.UpdatePrivacyRequestParams{Status: &finished, Error: &cleared, FinishedAt: &now}
	if resultPath != "" {
		params.ResultPath = &resultPath
	}
	if err := w.repo.Update(ctx, job.ID, params); err != nil {
		w.logger.Sugar().Warnw("failed to mark privacy request finished", "request_id", job.ID, "error", err)
		return err
	}
	w.metrics.RecordPrivacyRequest(record.Type, finished)
	w.logger.Info("privacy request finished", zap.String("request_id", job.ID), zap.String("type", string(record.Type)))
	return nil
}

func (w *PrivacyWorker) run(ctx context.Context, record *models.PrivacyRequest) (string, error) {
	ctx = WithActor(ctx, record.RequestedBy)
	switch record.Type {
	case models.PrivacyRequestDeleteContext:
		return "", w.deleter.DeleteForContext(ctx, record.ContextID.String)
	case models.PrivacyRequestDeleteUsers:
		return "", w.deleter.DeleteForUserSet(ctx, record.ContextID.String, record.UserIDs)
	case models.PrivacyRequestDeleteUser:
		userID := firstUser(record)
		contexts, err := w.contextsFor(ctx, record, userID)
		if err != nil {
			return "", err
		}
		return "", w.deleter.DeleteDataForUser(ctx, userID, contexts)
	case models.PrivacyRequestExport:
		userID := firstUser(record)
		contexts, err := w.contextsFor(ctx, record, userID)
		if err != nil {
			return "", err
		}
		bundle, err := w.exporter.ExportUserData(ctx, record.ID, userID, contexts)
		if err != nil {
			return "", err
		}
		return bundle.Archive, nil
	default:
		return "", fmt.Errorf("unsupported privacy request type %s", record.Type)
	}
}

func (w *PrivacyWorker) contextsFor(ctx context.Context, record *models.PrivacyRequest, userID string) ([]string, error) {
	if record.ContextID.Valid && record.ContextID.String != "" {
		return []string{record.ContextID.String}, nil
	}
	return w.exporter.ContextsForUser(ctx, userID)
}

func firstUser(record *models.PrivacyRequest) string {
	if len(record.UserIDs) == 0 {
		return ""
	}
	return record.UserIDs[0]
}
