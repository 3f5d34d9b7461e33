package models

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// CalendarEventType distinguishes the kinds of dates published for an assignment.
type CalendarEventType string

const (
	CalendarEventDue CalendarEventType = "due"
)

// CalendarEvent is a calendar entry owned by an assignment instance.
// Override events carry the user or group they were generated for.
type CalendarEvent struct {
	ID         string            `db:"id" json:"id"`
	ModuleName string            `db:"module_name" json:"module_name"`
	InstanceID string            `db:"instance_id" json:"instance_id"`
	CourseID   string            `db:"course_id" json:"course_id"`
	UserID     null.String       `db:"user_id" json:"user_id"`
	GroupID    null.String       `db:"group_id" json:"group_id"`
	EventType  CalendarEventType `db:"event_type" json:"event_type"`
	Name       string            `db:"name" json:"name"`
	TimeStart  time.Time         `db:"time_start" json:"time_start"`
	Priority   null.Int          `db:"priority" json:"priority"`
	CreatedAt  time.Time         `db:"created_at" json:"created_at"`
}
