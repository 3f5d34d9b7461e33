package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/volatiletech/null/v8"

	"github.com/noah-isme/assign-override-api/internal/models"
)

const overrideColumns = `id, assignment_id, user_id, group_id, sort_order, allow_submissions_from_date, due_date, cutoff_date, created_at, updated_at`

// OverrideRepository persists assignment overrides.
type OverrideRepository struct {
	db *sqlx.DB
}

// NewOverrideRepository constructs an override repository.
func NewOverrideRepository(db *sqlx.DB) *OverrideRepository {
	return &OverrideRepository{db: db}
}

// FindByID fetches one override.
func (r *OverrideRepository) FindByID(ctx context.Context, id string) (*models.Override, error) {
	query := fmt.Sprintf(`SELECT %s FROM assign_overrides WHERE id = $1`, overrideColumns)
	var override models.Override
	if err := r.db.GetContext(ctx, &override, query, id); err != nil {
		return nil, err
	}
	return &override, nil
}

// FindBySubject returns the override held by a user or group on an assignment.
func (r *OverrideRepository) FindBySubject(ctx context.Context, assignmentID string, userID, groupID null.String) (*models.Override, error) {
	query := fmt.Sprintf(`SELECT %s FROM assign_overrides
WHERE assignment_id = $1 AND user_id IS NOT DISTINCT FROM $2 AND group_id IS NOT DISTINCT FROM $3`, overrideColumns)
	var override models.Override
	if err := r.db.GetContext(ctx, &override, query, assignmentID, userID, groupID); err != nil {
		return nil, err
	}
	return &override, nil
}

// List returns overrides matching the filter. Group overrides come first ordered by sort order.
func (r *OverrideRepository) List(ctx context.Context, filter models.OverrideFilter) ([]models.Override, error) {
	where := []string{"assignment_id = $1"}
	args := []interface{}{filter.AssignmentID}
	if len(filter.UserIDs) > 0 {
		where = append(where, fmt.Sprintf("user_id = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(filter.UserIDs))
	}
	if len(filter.GroupIDs) > 0 {
		where = append(where, fmt.Sprintf("group_id = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(filter.GroupIDs))
	}
	if filter.GroupsOnly {
		where = append(where, "group_id IS NOT NULL")
	}
	query := fmt.Sprintf(`SELECT %s FROM assign_overrides WHERE %s ORDER BY group_id IS NULL, sort_order ASC NULLS LAST, id ASC`,
		overrideColumns, strings.Join(where, " AND "))
	var overrides []models.Override
	if err := r.db.SelectContext(ctx, &overrides, query, args...); err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	return overrides, nil
}

// Create inserts an override.
func (r *OverrideRepository) Create(ctx context.Context, override *models.Override) error {
	if override.ID == "" {
		override.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	override.CreatedAt = now
	override.UpdatedAt = now
	const query = `INSERT INTO assign_overrides (id, assignment_id, user_id, group_id, sort_order, allow_submissions_from_date, due_date, cutoff_date, created_at, updated_at)
VALUES (:id, :assignment_id, :user_id, :group_id, :sort_order, :allow_submissions_from_date, :due_date, :cutoff_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, override); err != nil {
		return fmt.Errorf("create override: %w", err)
	}
	return nil
}

// Update rewrites every mutable column of an override.
func (r *OverrideRepository) Update(ctx context.Context, override *models.Override) error {
	override.UpdatedAt = time.Now().UTC()
	const query = `UPDATE assign_overrides SET user_id = :user_id, group_id = :group_id, sort_order = :sort_order,
allow_submissions_from_date = :allow_submissions_from_date, due_date = :due_date, cutoff_date = :cutoff_date, updated_at = :updated_at
WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, override); err != nil {
		return fmt.Errorf("update override: %w", err)
	}
	return nil
}

// UpdateSortOrder sets the position of a group override.
func (r *OverrideRepository) UpdateSortOrder(ctx context.Context, id string, sortOrder int) error {
	const query = `UPDATE assign_overrides SET sort_order = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, sortOrder, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update override sort order: %w", err)
	}
	return nil
}

// CountGroup counts group overrides on an assignment.
func (r *OverrideRepository) CountGroup(ctx context.Context, assignmentID string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM assign_overrides WHERE assignment_id = $1 AND user_id IS NULL`, assignmentID); err != nil {
		return 0, fmt.Errorf("count group overrides: %w", err)
	}
	return total, nil
}

// CountAll counts every override on an assignment.
func (r *OverrideRepository) CountAll(ctx context.Context, assignmentID string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM assign_overrides WHERE assignment_id = $1`, assignmentID); err != nil {
		return 0, fmt.Errorf("count overrides: %w", err)
	}
	return total, nil
}

// Delete removes one override.
func (r *OverrideRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM assign_overrides WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete override: %w", err)
	}
	return nil
}

// DeleteByIDs removes the listed overrides. When userIDs is non-empty the delete is further restricted to those users.
func (r *OverrideRepository) DeleteByIDs(ctx context.Context, ids []string, userIDs []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := `DELETE FROM assign_overrides WHERE id = ANY($1)`
	args := []interface{}{pq.Array(ids)}
	if len(userIDs) > 0 {
		query += ` AND user_id = ANY($2)`
		args = append(args, pq.Array(userIDs))
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete overrides: %w", err)
	}
	return nil
}
