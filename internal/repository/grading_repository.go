package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/assign-override-api/internal/models"
)

// GradingArea is the advanced grading area used for assignment submissions.
const GradingArea = "submissions"

// GradingRepository exposes the advanced grading tables of an assignment context.
type GradingRepository struct {
	db *sqlx.DB
}

// NewGradingRepository constructs a grading repository.
func NewGradingRepository(db *sqlx.DB) *GradingRepository {
	return &GradingRepository{db: db}
}

// HasActiveController reports whether the context has an active grading method with a definition.
func (r *GradingRepository) HasActiveController(ctx context.Context, contextID string) (bool, error) {
	const query = `SELECT EXISTS(
SELECT 1 FROM grading_areas ga
JOIN grading_definitions gd ON gd.area_id = ga.id AND gd.method = ga.active_method
WHERE ga.context_id = $1 AND ga.area_name = $2 AND ga.active_method IS NOT NULL)`
	var active bool
	if err := r.db.GetContext(ctx, &active, query, contextID, GradingArea); err != nil {
		return false, fmt.Errorf("check grading controller: %w", err)
	}
	return active, nil
}

// DeleteInstanceData removes grading instances for the context. An empty gradeID removes all of them.
func (r *GradingRepository) DeleteInstanceData(ctx context.Context, contextID, gradeID string) error {
	query := `DELETE FROM grading_instances WHERE context_id = $1`
	args := []interface{}{contextID}
	if gradeID != "" {
		query += ` AND item_id = $2`
		args = append(args, gradeID)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete grading instances: %w", err)
	}
	return nil
}

// DeleteDataForInstances removes grading instances for the listed grade items.
// Callers must not pass an empty list; use DeleteInstanceData to clear a context.
func (r *GradingRepository) DeleteDataForInstances(ctx context.Context, contextID string, gradeIDs []string) error {
	if len(gradeIDs) == 0 {
		return fmt.Errorf("delete grading instances: empty grade id list")
	}
	const query = `DELETE FROM grading_instances WHERE context_id = $1 AND item_id = ANY($2)`
	if _, err := r.db.ExecContext(ctx, query, contextID, pq.Array(gradeIDs)); err != nil {
		return fmt.Errorf("delete grading instances for items: %w", err)
	}
	return nil
}

// ExportItemData returns the grading instances recorded for a grade item.
func (r *GradingRepository) ExportItemData(ctx context.Context, contextID, gradeID string) ([]models.GradingInstance, error) {
	const query = `SELECT id, definition_id, context_id, item_id, rater_id, status, feedback, updated_at
FROM grading_instances WHERE context_id = $1 AND item_id = $2 ORDER BY updated_at ASC`
	var instances []models.GradingInstance
	if err := r.db.SelectContext(ctx, &instances, query, contextID, gradeID); err != nil {
		return nil, fmt.Errorf("export grading instances: %w", err)
	}
	return instances, nil
}
