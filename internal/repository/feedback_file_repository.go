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

// FeedbackFileRepository stores file feedback bookkeeping rows.
type FeedbackFileRepository struct {
	db *sqlx.DB
}

// NewFeedbackFileRepository constructs the repository.
func NewFeedbackFileRepository(db *sqlx.DB) *FeedbackFileRepository {
	return &FeedbackFileRepository{db: db}
}

// FindForGrade returns the feedback row of a grade, or nil.
func (r *FeedbackFileRepository) FindForGrade(ctx context.Context, gradeID string) (*models.FeedbackFile, error) {
	var row models.FeedbackFile
	const query = `SELECT id, assignment_id, grade_id, num_files FROM assignfeedback_file WHERE grade_id = $1`
	if err := r.db.GetContext(ctx, &row, query, gradeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find feedback files: %w", err)
	}
	return &row, nil
}

// DeleteForAssignment removes all file feedback rows of an assignment.
func (r *FeedbackFileRepository) DeleteForAssignment(ctx context.Context, assignmentID string) error {
	return deleteForAssignment(ctx, r.db, "assignfeedback_file", assignmentID)
}

// DeleteForGrades removes the rows of the listed grades.
func (r *FeedbackFileRepository) DeleteForGrades(ctx context.Context, assignmentID string, gradeIDs []string) error {
	if len(gradeIDs) == 0 {
		return nil
	}
	const query = `DELETE FROM assignfeedback_file WHERE assignment_id = $1 AND grade_id = ANY($2)`
	if _, err := r.db.ExecContext(ctx, query, assignmentID, pq.Array(gradeIDs)); err != nil {
		return fmt.Errorf("delete feedback files: %w", err)
	}
	return nil
}
