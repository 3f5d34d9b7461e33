package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/assign-override-api/internal/models"
)

const gradeColumns = `id, assignment_id, user_id, grader_id, grade, attempt_number, created_at, updated_at`

// GradeRepository reads and deletes assignment grades.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs a grade repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// ListForUser returns the grades received by a user.
func (r *GradeRepository) ListForUser(ctx context.Context, assignmentID, userID string) ([]models.Grade, error) {
	query := fmt.Sprintf(`SELECT %s FROM assign_grades WHERE assignment_id = $1 AND user_id = $2 ORDER BY attempt_number ASC`, gradeColumns)
	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, query, assignmentID, userID); err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}
	return grades, nil
}

// FindForAttempt returns the grade of one attempt, or nil when ungraded.
func (r *GradeRepository) FindForAttempt(ctx context.Context, assignmentID, userID string, attempt int) (*models.Grade, error) {
	query := fmt.Sprintf(`SELECT %s FROM assign_grades WHERE assignment_id = $1 AND user_id = $2 AND attempt_number = $3`, gradeColumns)
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, assignmentID, userID, attempt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find grade: %w", err)
	}
	return &grade, nil
}

// GradedUserIDs lists the distinct students a grader has graded.
func (r *GradeRepository) GradedUserIDs(ctx context.Context, assignmentID, graderID string) ([]string, error) {
	var ids []string
	const query = `SELECT DISTINCT user_id FROM assign_grades WHERE grader_id = $1 AND assignment_id = $2 ORDER BY user_id`
	if err := r.db.SelectContext(ctx, &ids, query, graderID, assignmentID); err != nil {
		return nil, fmt.Errorf("list graded users: %w", err)
	}
	return ids, nil
}

// IDsForUsers returns the grade ids of the listed users.
func (r *GradeRepository) IDsForUsers(ctx context.Context, assignmentID string, userIDs []string) ([]string, error) {
	var ids []string
	const query = `SELECT id FROM assign_grades WHERE assignment_id = $1 AND user_id = ANY($2) ORDER BY id`
	if err := r.db.SelectContext(ctx, &ids, query, assignmentID, pq.Array(userIDs)); err != nil {
		return nil, fmt.Errorf("list grade ids: %w", err)
	}
	return ids, nil
}

// DeleteForAssignment removes every grade of an assignment.
func (r *GradeRepository) DeleteForAssignment(ctx context.Context, assignmentID string) error {
	return deleteForAssignment(ctx, r.db, "assign_grades", assignmentID)
}

// DeleteForUsers removes the grades of the listed users.
func (r *GradeRepository) DeleteForUsers(ctx context.Context, assignmentID string, userIDs []string) error {
	return deleteForUsers(ctx, r.db, "assign_grades", assignmentID, userIDs)
}
