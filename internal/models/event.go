package models

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// Domain event names emitted by override writes.
const (
	EventUserOverrideCreated  = "user_override_created"
	EventUserOverrideUpdated  = "user_override_updated"
	EventUserOverrideDeleted  = "user_override_deleted"
	EventGroupOverrideCreated = "group_override_created"
	EventGroupOverrideUpdated = "group_override_updated"
	EventGroupOverrideDeleted = "group_override_deleted"
)

// EventOther carries the event payload beyond the standard fields.
type EventOther struct {
	AssignID string `json:"assign_id"`
	GroupID  string `json:"group_id,omitempty"`
}

// DomainEvent is an audit record of a state change.
type DomainEvent struct {
	ID            string      `db:"id" json:"id"`
	Name          string      `db:"event_name" json:"event_name"`
	ContextID     string      `db:"context_id" json:"context_id"`
	ObjectTable   string      `db:"object_table" json:"object_table"`
	ObjectID      string      `db:"object_id" json:"object_id"`
	CRUD          string      `db:"crud" json:"crud"`
	EduLevel      string      `db:"edu_level" json:"edu_level"`
	RelatedUserID null.String `db:"related_user_id" json:"related_user_id"`
	ActorID       null.String `db:"actor_id" json:"actor_id"`
	Other         EventOther  `db:"-" json:"other"`
	OtherJSON     []byte      `db:"other" json:"-"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
}

// IsGroupEvent reports whether the event concerns a group override.
func (e DomainEvent) IsGroupEvent() bool {
	switch e.Name {
	case EventGroupOverrideCreated, EventGroupOverrideUpdated, EventGroupOverrideDeleted:
		return true
	}
	return false
}
