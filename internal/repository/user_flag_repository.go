package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/assign-override-api/internal/models"
)

// UserFlagRepository manages per-user workflow flags and blind-marking mappings.
type UserFlagRepository struct {
	db *sqlx.DB
}

// NewUserFlagRepository constructs a user flag repository.
func NewUserFlagRepository(db *sqlx.DB) *UserFlagRepository {
	return &UserFlagRepository{db: db}
}

// FindFlags returns the user's flags, or nil when none were stored.
func (r *UserFlagRepository) FindFlags(ctx context.Context, assignmentID, userID string) (*models.UserFlag, error) {
	const query = `SELECT id, assignment_id, user_id, locked, mailed, extension_due_date, workflow_state, allocated_marker
FROM assign_user_flags WHERE assignment_id = $1 AND user_id = $2`
	var flag models.UserFlag
	if err := r.db.GetContext(ctx, &flag, query, assignmentID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user flags: %w", err)
	}
	return &flag, nil
}

// FindMapping returns the user's blind-marking mapping, or nil.
func (r *UserFlagRepository) FindMapping(ctx context.Context, assignmentID, userID string) (*models.UserMapping, error) {
	const query = `SELECT id, assignment_id, user_id FROM assign_user_mapping WHERE assignment_id = $1 AND user_id = $2`
	var mapping models.UserMapping
	if err := r.db.GetContext(ctx, &mapping, query, assignmentID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user mapping: %w", err)
	}
	return &mapping, nil
}

// DeleteFlagsForAssignment removes all flags of an assignment.
func (r *UserFlagRepository) DeleteFlagsForAssignment(ctx context.Context, assignmentID string) error {
	return deleteForAssignment(ctx, r.db, "assign_user_flags", assignmentID)
}

// DeleteFlagsForUsers removes the flags of the listed users.
func (r *UserFlagRepository) DeleteFlagsForUsers(ctx context.Context, assignmentID string, userIDs []string) error {
	return deleteForUsers(ctx, r.db, "assign_user_flags", assignmentID, userIDs)
}

// DeleteMappingsForAssignment removes all blind-marking mappings of an assignment.
func (r *UserFlagRepository) DeleteMappingsForAssignment(ctx context.Context, assignmentID string) error {
	return deleteForAssignment(ctx, r.db, "assign_user_mapping", assignmentID)
}

// DeleteMappingsForUsers removes the mappings of the listed users.
func (r *UserFlagRepository) DeleteMappingsForUsers(ctx context.Context, assignmentID string, userIDs []string) error {
	return deleteForUsers(ctx, r.db, "assign_user_mapping", assignmentID, userIDs)
}
