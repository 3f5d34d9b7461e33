package models

import "time"

// FeedbackFile records the files attached as feedback to a grade.
type FeedbackFile struct {
	ID           string `db:"id" json:"id"`
	AssignmentID string `db:"assignment_id" json:"assignment_id"`
	GradeID      string `db:"grade_id" json:"grade_id"`
	NumFiles     int    `db:"num_files" json:"num_files"`
}

// SubmissionSignature is a signature captured for a submission attempt.
type SubmissionSignature struct {
	ID           string    `db:"id" json:"id"`
	AssignmentID string    `db:"assignment_id" json:"assignment_id"`
	SubmissionID string    `db:"submission_id" json:"submission_id"`
	UserID       string    `db:"user_id" json:"user_id"`
	Signature    []byte    `db:"signature" json:"-"`
	SignedAt     time.Time `db:"signed_at" json:"signed_at"`
}
