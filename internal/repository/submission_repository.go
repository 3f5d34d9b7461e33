package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/assign-override-api/internal/models"
)

const submissionColumns = `id, assignment_id, user_id, group_id, attempt_number, status, latest, created_at, updated_at`

// SubmissionRepository reads and deletes assignment submissions.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs a submission repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// ListForUser returns every attempt of a user ordered by attempt number.
func (r *SubmissionRepository) ListForUser(ctx context.Context, assignmentID, userID string) ([]models.Submission, error) {
	query := fmt.Sprintf(`SELECT %s FROM assign_submissions WHERE assignment_id = $1 AND user_id = $2 ORDER BY attempt_number ASC`, submissionColumns)
	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, query, assignmentID, userID); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return submissions, nil
}

// IDsForUsers returns the submission ids owned by the users.
func (r *SubmissionRepository) IDsForUsers(ctx context.Context, assignmentID string, userIDs []string) ([]string, error) {
	var ids []string
	const query = `SELECT id FROM assign_submissions WHERE assignment_id = $1 AND user_id = ANY($2) ORDER BY id`
	if err := r.db.SelectContext(ctx, &ids, query, assignmentID, pq.Array(userIDs)); err != nil {
		return nil, fmt.Errorf("list submission ids: %w", err)
	}
	return ids, nil
}

// DeleteForAssignment removes every submission of an assignment.
func (r *SubmissionRepository) DeleteForAssignment(ctx context.Context, assignmentID string) error {
	return deleteForAssignment(ctx, r.db, "assign_submissions", assignmentID)
}

// DeleteForUsers removes the submissions of the listed users.
func (r *SubmissionRepository) DeleteForUsers(ctx context.Context, assignmentID string, userIDs []string) error {
	return deleteForUsers(ctx, r.db, "assign_submissions", assignmentID, userIDs)
}

func deleteForAssignment(ctx context.Context, db *sqlx.DB, table, assignmentID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE assignment_id = $1`, table)
	if _, err := db.ExecContext(ctx, query, assignmentID); err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

func deleteForUsers(ctx context.Context, db *sqlx.DB, table, assignmentID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE assignment_id = $1 AND user_id = ANY($2)`, table)
	if _, err := db.ExecContext(ctx, query, assignmentID, pq.Array(userIDs)); err != nil {
		return fmt.Errorf("delete %s for users: %w", table, err)
	}
	return nil
}
