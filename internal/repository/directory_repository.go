package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// DirectoryRepository answers membership questions about users and course groups.
type DirectoryRepository struct {
	db *sqlx.DB
}

// NewDirectoryRepository constructs a directory repository.
func NewDirectoryRepository(db *sqlx.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// UserExists reports whether an active user account exists.
func (r *DirectoryRepository) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1 AND deleted_at IS NULL)`, userID); err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return exists, nil
}

// GroupExists reports whether the group belongs to the course.
func (r *DirectoryRepository) GroupExists(ctx context.Context, courseID, groupID string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM course_groups WHERE id = $1 AND course_id = $2)`, groupID, courseID); err != nil {
		return false, fmt.Errorf("check group: %w", err)
	}
	return exists, nil
}

// GroupIDsForUser lists the course groups a user belongs to.
func (r *DirectoryRepository) GroupIDsForUser(ctx context.Context, courseID, userID string) ([]string, error) {
	const query = `SELECT gm.group_id FROM group_members gm
JOIN course_groups g ON g.id = gm.group_id
WHERE g.course_id = $1 AND gm.user_id = $2`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, courseID, userID); err != nil {
		return nil, fmt.Errorf("list user groups: %w", err)
	}
	return ids, nil
}
