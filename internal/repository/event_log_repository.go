package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/assign-override-api/internal/models"
)

// EventLogRepository persists domain events.
type EventLogRepository struct {
	db *sqlx.DB
}

// NewEventLogRepository constructs an event log repository.
func NewEventLogRepository(db *sqlx.DB) *EventLogRepository {
	return &EventLogRepository{db: db}
}

// Create stores an event.
func (r *EventLogRepository) Create(ctx context.Context, event *models.DomainEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	other, err := json.Marshal(event.Other)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	event.OtherJSON = other
	const query = `INSERT INTO event_log (id, event_name, context_id, object_table, object_id, crud, edu_level, related_user_id, actor_id, other, created_at)
VALUES (:id, :event_name, :context_id, :object_table, :object_id, :crud, :edu_level, :related_user_id, :actor_id, :other, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create event log: %w", err)
	}
	return nil
}

