package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/assign-override-api/internal/models"
)

const privacyRequestColumns = `id, type, context_id, user_ids, requested_by, status, result_path, error, attempts, created_at, updated_at, finished_at`

// PrivacyRequestRepository persists privacy request jobs.
type PrivacyRequestRepository struct {
	db *sqlx.DB
}

// NewPrivacyRequestRepository constructs the repository.
func NewPrivacyRequestRepository(db *sqlx.DB) *PrivacyRequestRepository {
	return &PrivacyRequestRepository{db: db}
}

// Create inserts a new request row with generated defaults.
func (r *PrivacyRequestRepository) Create(ctx context.Context, req *models.PrivacyRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = models.PrivacyRequestStatusQueued
	}
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now
	const query = `INSERT INTO privacy_requests (id, type, context_id, user_ids, requested_by, status, result_path, error, attempts, created_at, updated_at, finished_at)
VALUES (:id, :type, :context_id, :user_ids, :requested_by, :status, :result_path, :error, :attempts, :created_at, :updated_at, :finished_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create privacy request: %w", err)
	}
	return nil
}

// GetByID returns a request row by its identifier.
func (r *PrivacyRequestRepository) GetByID(ctx context.Context, id string) (*models.PrivacyRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM privacy_requests WHERE id = $1`, privacyRequestColumns)
	var req models.PrivacyRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// UpdatePrivacyRequestParams defines the mutable fields.
type UpdatePrivacyRequestParams struct {
	Status       *models.PrivacyRequestStatus
	ResultPath   *string
	Error        *string
	IncAttempts  bool
	FinishedAt   *time.Time
	ClearResults bool
}

// Update persists the provided changes for a request row.
func (r *PrivacyRequestRepository) Update(ctx context.Context, id string, params UpdatePrivacyRequestParams) error {
	set := []string{"updated_at = $1"}
	args := []interface{}{time.Now().UTC()}
	argPos := 2

	if params.Status != nil {
		set = append(set, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *params.Status)
		argPos++
	}
	if params.ResultPath != nil {
		set = append(set, fmt.Sprintf("result_path = $%d", argPos))
		args = append(args, *params.ResultPath)
		argPos++
	}
	if params.Error != nil {
		set = append(set, fmt.Sprintf("error = $%d", argPos))
		args = append(args, *params.Error)
		argPos++
	}
	if params.FinishedAt != nil {
		set = append(set, fmt.Sprintf("finished_at = $%d", argPos))
		args = append(args, *params.FinishedAt)
		argPos++
	}
	if params.IncAttempts {
		set = append(set, "attempts = attempts + 1")
	}
	if params.ClearResults {
		set = append(set, "result_path = NULL")
	}

	query := fmt.Sprintf("UPDATE privacy_requests SET %s WHERE id = $%d", strings.Join(set, ", "), argPos)
	args = append(args, id)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update privacy request: %w", err)
	}
	return nil
}

// ListQueued fetches queued requests for cold start recovery.
func (r *PrivacyRequestRepository) ListQueued(ctx context.Context, limit int) ([]models.PrivacyRequest, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM privacy_requests WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1`, privacyRequestColumns)
	var reqs []models.PrivacyRequest
	if err := r.db.SelectContext(ctx, &reqs, query, limit); err != nil {
		return nil, fmt.Errorf("list queued privacy requests: %w", err)
	}
	return reqs, nil
}

// ListExportsFinishedBefore returns finished export requests whose bundles are still on disk.
func (r *PrivacyRequestRepository) ListExportsFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PrivacyRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM privacy_requests
WHERE type = 'export' AND status = 'FINISHED' AND result_path IS NOT NULL AND finished_at < $1 ORDER BY finished_at ASC LIMIT $2`, privacyRequestColumns)
	var reqs []models.PrivacyRequest
	if err := r.db.SelectContext(ctx, &reqs, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list finished privacy exports: %w", err)
	}
	return reqs, nil
}
