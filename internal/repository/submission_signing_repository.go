package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/assign-override-api/internal/models"
)

// SubmissionSigningRepository stores signatures captured with submissions.
type SubmissionSigningRepository struct {
	db *sqlx.DB
}

// NewSubmissionSigningRepository constructs the repository.
func NewSubmissionSigningRepository(db *sqlx.DB) *SubmissionSigningRepository {
	return &SubmissionSigningRepository{db: db}
}

// ListForSubmission returns the signatures attached to a submission.
func (r *SubmissionSigningRepository) ListForSubmission(ctx context.Context, submissionID string) ([]models.SubmissionSignature, error) {
	const query = `SELECT id, assignment_id, submission_id, user_id, signature, signed_at
FROM assignsubmission_signing WHERE submission_id = $1 ORDER BY signed_at ASC`
	var rows []models.SubmissionSignature
	if err := r.db.SelectContext(ctx, &rows, query, submissionID); err != nil {
		return nil, fmt.Errorf("list submission signatures: %w", err)
	}
	return rows, nil
}

// ContextIDsForUser lists module contexts holding signatures by the user.
func (r *SubmissionSigningRepository) ContextIDsForUser(ctx context.Context, userID string) ([]string, error) {
	const query = `SELECT DISTINCT a.context_id FROM assignsubmission_signing s
JOIN assignments a ON a.id = s.assignment_id WHERE s.user_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, userID); err != nil {
		return nil, fmt.Errorf("list signing contexts: %w", err)
	}
	return ids, nil
}

// UserIDsForAssignment lists users holding signatures on the assignment.
func (r *SubmissionSigningRepository) UserIDsForAssignment(ctx context.Context, assignmentID string) ([]string, error) {
	var ids []string
	const query = `SELECT DISTINCT user_id FROM assignsubmission_signing WHERE assignment_id = $1`
	if err := r.db.SelectContext(ctx, &ids, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list signing users: %w", err)
	}
	return ids, nil
}

// DeleteForAssignment removes every signature on the assignment.
func (r *SubmissionSigningRepository) DeleteForAssignment(ctx context.Context, assignmentID string) error {
	return deleteForAssignment(ctx, r.db, "assignsubmission_signing", assignmentID)
}

// DeleteForSubmissions removes the signatures of the listed submissions.
func (r *SubmissionSigningRepository) DeleteForSubmissions(ctx context.Context, assignmentID string, submissionIDs []string) error {
	if len(submissionIDs) == 0 {
		return nil
	}
	const query = `DELETE FROM assignsubmission_signing WHERE assignment_id = $1 AND submission_id = ANY($2)`
	if _, err := r.db.ExecContext(ctx, query, assignmentID, pq.Array(submissionIDs)); err != nil {
		return fmt.Errorf("delete submission signatures: %w", err)
	}
	return nil
}
