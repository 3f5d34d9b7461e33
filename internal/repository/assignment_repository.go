package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/assign-override-api/internal/models"
)

const assignmentColumns = `id, course_id, context_id, name, allow_submissions_from_date, due_date, cutoff_date, blind_marking, created_at, updated_at`

// AssignmentRepository reads assignment instances and their contexts.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs an assignment repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// FindByID returns the assignment with the given id.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM assignments WHERE id = $1`, assignmentColumns)
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// FindByContext returns the assignment owning a module context.
func (r *AssignmentRepository) FindByContext(ctx context.Context, contextID string) (*models.Assignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM assignments WHERE context_id = $1`, assignmentColumns)
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, contextID); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// FindContext loads a context row.
func (r *AssignmentRepository) FindContext(ctx context.Context, contextID string) (*models.Context, error) {
	const query = `SELECT id, context_level, instance_id FROM contexts WHERE id = $1`
	var c models.Context
	if err := r.db.GetContext(ctx, &c, query, contextID); err != nil {
		return nil, err
	}
	return &c, nil
}
