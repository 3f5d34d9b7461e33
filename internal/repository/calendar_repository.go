package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/volatiletech/null/v8"

	"github.com/noah-isme/assign-override-api/internal/models"
)

// CalendarRepository persists calendar events owned by assignment instances.
type CalendarRepository struct {
	db *sqlx.DB
}

// NewCalendarRepository constructs a calendar repository.
func NewCalendarRepository(db *sqlx.DB) *CalendarRepository {
	return &CalendarRepository{db: db}
}

// Create inserts a calendar event.
func (r *CalendarRepository) Create(ctx context.Context, event *models.CalendarEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.ModuleName == "" {
		event.ModuleName = models.ModuleName
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO calendar_events (id, module_name, instance_id, course_id, user_id, group_id, event_type, name, time_start, priority, created_at)
VALUES (:id, :module_name, :instance_id, :course_id, :user_id, :group_id, :event_type, :name, :time_start, :priority, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create calendar event: %w", err)
	}
	return nil
}

// DeleteForInstance removes every event of an assignment instance.
func (r *CalendarRepository) DeleteForInstance(ctx context.Context, instanceID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM calendar_events WHERE module_name = $1 AND instance_id = $2`, models.ModuleName, instanceID); err != nil {
		return fmt.Errorf("delete calendar events: %w", err)
	}
	return nil
}

// DeleteForInstanceUsers removes the instance events owned by the listed users.
func (r *CalendarRepository) DeleteForInstanceUsers(ctx context.Context, instanceID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	const query = `DELETE FROM calendar_events WHERE module_name = $1 AND instance_id = $2 AND user_id = ANY($3)`
	if _, err := r.db.ExecContext(ctx, query, models.ModuleName, instanceID, pq.Array(userIDs)); err != nil {
		return fmt.Errorf("delete user calendar events: %w", err)
	}
	return nil
}

// DeleteForSubject removes the events generated for one override subject.
func (r *CalendarRepository) DeleteForSubject(ctx context.Context, instanceID string, userID, groupID null.String) error {
	const query = `DELETE FROM calendar_events WHERE module_name = $1 AND instance_id = $2
AND user_id IS NOT DISTINCT FROM $3 AND group_id IS NOT DISTINCT FROM $4`
	if _, err := r.db.ExecContext(ctx, query, models.ModuleName, instanceID, userID, groupID); err != nil {
		return fmt.Errorf("delete override calendar events: %w", err)
	}
	return nil
}
