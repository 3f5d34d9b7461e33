package models

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// Schedule groups the three overridable dates. A null field inherits from the assignment.
type Schedule struct {
	AllowSubmissionsFromDate null.Time `json:"allow_submissions_from_date"`
	DueDate                  null.Time `json:"due_date"`
	CutoffDate               null.Time `json:"cutoff_date"`
}

// IsEmpty reports whether every date is null.
func (s Schedule) IsEmpty() bool {
	return !s.AllowSubmissionsFromDate.Valid && !s.DueDate.Valid && !s.CutoffDate.Valid
}

// Fields exposes the dates by pointer so callers can walk them uniformly.
func (s *Schedule) Fields() []*null.Time {
	return []*null.Time{&s.AllowSubmissionsFromDate, &s.DueDate, &s.CutoffDate}
}

// Override is a per-user or per-group exception to an assignment schedule.
type Override struct {
	ID                       string      `db:"id" json:"id"`
	AssignmentID             string      `db:"assignment_id" json:"assignment_id"`
	UserID                   null.String `db:"user_id" json:"user_id"`
	GroupID                  null.String `db:"group_id" json:"group_id"`
	SortOrder                null.Int    `db:"sort_order" json:"sort_order"`
	AllowSubmissionsFromDate null.Time   `db:"allow_submissions_from_date" json:"allow_submissions_from_date"`
	DueDate                  null.Time   `db:"due_date" json:"due_date"`
	CutoffDate               null.Time   `db:"cutoff_date" json:"cutoff_date"`
	CreatedAt                time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time   `db:"updated_at" json:"updated_at"`
}

// IsGroup reports whether the override targets a group.
func (o Override) IsGroup() bool {
	return o.GroupID.Valid && o.GroupID.String != ""
}

// Schedule returns the override's own dates.
func (o Override) Schedule() Schedule {
	return Schedule{
		AllowSubmissionsFromDate: o.AllowSubmissionsFromDate,
		DueDate:                  o.DueDate,
		CutoffDate:               o.CutoffDate,
	}
}

// SetSchedule copies dates onto the override.
func (o *Override) SetSchedule(s Schedule) {
	o.AllowSubmissionsFromDate = s.AllowSubmissionsFromDate
	o.DueDate = s.DueDate
	o.CutoffDate = s.CutoffDate
}

// OverrideEdit carries submitted override values. Null dates were left blank by the editor.
type OverrideEdit struct {
	OverrideID   string
	AssignmentID string
	UserID       null.String
	GroupID      null.String
	Schedule     Schedule
	// Reset discards the edited override's stored dates before applying the submitted ones.
	Reset bool
}

// OverrideFilter narrows override lookups.
type OverrideFilter struct {
	AssignmentID string
	UserIDs      []string
	GroupIDs     []string
	GroupsOnly   bool
}

// Field sources reported by EffectiveSchedule.
const (
	SourceAssignment = "assignment"
	SourceUser       = "user"
	SourceGroup      = "group"
)

// EffectiveSchedule is the schedule that applies to one user after overrides are resolved.
type EffectiveSchedule struct {
	AssignmentID string `json:"assignment_id"`
	UserID       string `json:"user_id"`
	// Override holds only the values contributed by overrides.
	Override Schedule `json:"override"`
	// Effective falls back to the assignment defaults for fields no override sets.
	Effective Schedule          `json:"effective"`
	Sources   map[string]string `json:"sources"`
}

// HasOverride reports whether any override contributes a value.
func (e EffectiveSchedule) HasOverride() bool {
	return !e.Override.IsEmpty()
}
