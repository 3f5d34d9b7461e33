package models

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// ModuleName is the calendar/module identifier owned by this service.
const ModuleName = "assign"

// ContextLevel mirrors the host platform's context hierarchy.
type ContextLevel int

const (
	ContextLevelSystem ContextLevel = 10
	ContextLevelUser   ContextLevel = 30
	ContextLevelCourse ContextLevel = 50
	ContextLevelModule ContextLevel = 70
)

// Context is the permission and data ownership scope. Module contexts own exactly one assignment.
type Context struct {
	ID         string       `db:"id" json:"id"`
	Level      ContextLevel `db:"context_level" json:"context_level"`
	InstanceID string       `db:"instance_id" json:"instance_id"`
}

// IsModule reports whether the context belongs to an activity instance.
func (c Context) IsModule() bool {
	return c.Level == ContextLevelModule
}

// Assignment is the activity instance; its dates are the defaults overrides deviate from.
type Assignment struct {
	ID                       string    `db:"id" json:"id"`
	CourseID                 string    `db:"course_id" json:"course_id"`
	ContextID                string    `db:"context_id" json:"context_id"`
	Name                     string    `db:"name" json:"name"`
	AllowSubmissionsFromDate null.Time `db:"allow_submissions_from_date" json:"allow_submissions_from_date"`
	DueDate                  null.Time `db:"due_date" json:"due_date"`
	CutoffDate               null.Time `db:"cutoff_date" json:"cutoff_date"`
	BlindMarking             bool      `db:"blind_marking" json:"blind_marking"`
	CreatedAt                time.Time `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time `db:"updated_at" json:"updated_at"`
}

// Schedule returns the assignment's default dates.
func (a Assignment) Schedule() Schedule {
	return Schedule{
		AllowSubmissionsFromDate: a.AllowSubmissionsFromDate,
		DueDate:                  a.DueDate,
		CutoffDate:               a.CutoffDate,
	}
}
