package models

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// SubmissionStatus tracks the lifecycle of an attempt.
type SubmissionStatus string

const (
	SubmissionStatusNew       SubmissionStatus = "new"
	SubmissionStatusDraft     SubmissionStatus = "draft"
	SubmissionStatusSubmitted SubmissionStatus = "submitted"
	SubmissionStatusReopened  SubmissionStatus = "reopened"
)

// Submission is one attempt by a user (or a group) on an assignment.
type Submission struct {
	ID            string           `db:"id" json:"id"`
	AssignmentID  string           `db:"assignment_id" json:"assignment_id"`
	UserID        string           `db:"user_id" json:"user_id"`
	GroupID       null.String      `db:"group_id" json:"group_id"`
	AttemptNumber int              `db:"attempt_number" json:"attempt_number"`
	Status        SubmissionStatus `db:"status" json:"status"`
	Latest        bool             `db:"latest" json:"latest"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// Grade is the grading record for one attempt.
type Grade struct {
	ID            string       `db:"id" json:"id"`
	AssignmentID  string       `db:"assignment_id" json:"assignment_id"`
	UserID        string       `db:"user_id" json:"user_id"`
	GraderID      null.String  `db:"grader_id" json:"grader_id"`
	Grade         null.Float64 `db:"grade" json:"grade"`
	AttemptNumber int          `db:"attempt_number" json:"attempt_number"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

// UserFlag stores per-user workflow state for an assignment.
type UserFlag struct {
	ID               string      `db:"id" json:"id"`
	AssignmentID     string      `db:"assignment_id" json:"assignment_id"`
	UserID           string      `db:"user_id" json:"user_id"`
	Locked           bool        `db:"locked" json:"locked"`
	Mailed           bool        `db:"mailed" json:"mailed"`
	ExtensionDueDate null.Time   `db:"extension_due_date" json:"extension_due_date"`
	WorkflowState    null.String `db:"workflow_state" json:"workflow_state"`
	AllocatedMarker  null.String `db:"allocated_marker" json:"allocated_marker"`
}

// UserMapping assigns the anonymous identifier used while blind marking.
type UserMapping struct {
	ID           string `db:"id" json:"id"`
	AssignmentID string `db:"assignment_id" json:"assignment_id"`
	UserID       string `db:"user_id" json:"user_id"`
}
