package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/assign-override-api/internal/models"
)

// PrivacyRepository answers personal data discovery queries across assignment tables.
type PrivacyRepository struct {
	db *sqlx.DB
}

// NewPrivacyRepository constructs a privacy repository.
func NewPrivacyRepository(db *sqlx.DB) *PrivacyRepository {
	return &PrivacyRepository{db: db}
}

// ContextIDsForUser lists the module contexts in which the user has assignment data.
func (r *PrivacyRepository) ContextIDsForUser(ctx context.Context, userID string) ([]string, error) {
	const query = `SELECT DISTINCT a.context_id FROM assignments a
JOIN contexts c ON c.id = a.context_id AND c.context_level = $2
WHERE EXISTS (SELECT 1 FROM assign_grades g WHERE g.assignment_id = a.id AND (g.user_id = $1 OR g.grader_id = $1))
   OR EXISTS (SELECT 1 FROM assign_overrides o WHERE o.assignment_id = a.id AND o.user_id = $1)
   OR EXISTS (SELECT 1 FROM assign_submissions s WHERE s.assignment_id = a.id AND s.user_id = $1)
   OR EXISTS (SELECT 1 FROM assign_user_flags f WHERE f.assignment_id = a.id AND f.user_id = $1)
   OR EXISTS (SELECT 1 FROM assign_user_mapping m WHERE m.assignment_id = a.id AND m.user_id = $1)
ORDER BY a.context_id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, userID, models.ContextLevelModule); err != nil {
		return nil, fmt.Errorf("list contexts for user: %w", err)
	}
	return ids, nil
}

// UserIDsInAssignment lists every user with data in the assignment, graders included.
func (r *PrivacyRepository) UserIDsInAssignment(ctx context.Context, assignmentID string) ([]string, error) {
	const query = `SELECT user_id FROM assign_grades WHERE assignment_id = $1
UNION SELECT grader_id FROM assign_grades WHERE assignment_id = $1 AND grader_id IS NOT NULL
UNION SELECT user_id FROM assign_overrides WHERE assignment_id = $1 AND user_id IS NOT NULL
UNION SELECT user_id FROM assign_submissions WHERE assignment_id = $1
UNION SELECT user_id FROM assign_user_flags WHERE assignment_id = $1
UNION SELECT user_id FROM assign_user_mapping WHERE assignment_id = $1
ORDER BY 1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list users in assignment: %w", err)
	}
	return ids, nil
}

// Preferences returns the named preferences stored for a user.
func (r *PrivacyRepository) Preferences(ctx context.Context, userID string, names []string) ([]models.UserPreference, error) {
	const query = `SELECT user_id, name, value FROM user_preferences WHERE user_id = $1 AND name = ANY($2) ORDER BY name`
	var prefs []models.UserPreference
	if err := r.db.SelectContext(ctx, &prefs, query, userID, pq.Array(names)); err != nil {
		return nil, fmt.Errorf("list user preferences: %w", err)
	}
	return prefs, nil
}
