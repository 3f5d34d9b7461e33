package subplugin

import (
	"context"
	"fmt"

	"github.com/noah-isme/assign-override-api/internal/models"
)

// RecordLoader resolves the submission and grade ids owned by a set of users.
type RecordLoader interface {
	SubmissionIDsForUsers(ctx context.Context, assignmentID string, userIDs []string) ([]string, error)
	GradeIDsForUsers(ctx context.Context, assignmentID string, userIDs []string) ([]string, error)
}

// RequestData is shared by every sub-plugin callback of one deletion or export pass.
// Callbacks may repopulate it for a new user set.
type RequestData struct {
	Context    models.Context
	Assignment *models.Assignment
	// UserID is the subject user, or the teacher when exporting on behalf of graded students.
	UserID     string
	Submission *models.Submission
	Grade      *models.Grade
	Subcontext []string

	loader        RecordLoader
	userIDs       []string
	submissionIDs []string
	gradeIDs      []string
}

// NewRequestData builds a request for a context and its assignment.
func NewRequestData(c models.Context, assignment *models.Assignment, loader RecordLoader) *RequestData {
	return &RequestData{Context: c, Assignment: assignment, loader: loader}
}

// AssignmentID returns the id of the assignment the request concerns.
func (r *RequestData) AssignmentID() string {
	if r.Assignment == nil {
		return ""
	}
	return r.Assignment.ID
}

// SetUserIDs replaces the user set.
func (r *RequestData) SetUserIDs(ids []string) {
	r.userIDs = append([]string(nil), ids...)
}

// UserIDs returns the user set.
func (r *RequestData) UserIDs() []string {
	return r.userIDs
}

// PopulateSubmissionsAndGrades resolves the submissions and grades of the user set in one pass.
func (r *RequestData) PopulateSubmissionsAndGrades(ctx context.Context) error {
	r.submissionIDs = nil
	r.gradeIDs = nil
	if len(r.userIDs) == 0 {
		return nil
	}
	if r.loader == nil {
		return fmt.Errorf("populate request data: no record loader")
	}
	submissions, err := r.loader.SubmissionIDsForUsers(ctx, r.AssignmentID(), r.userIDs)
	if err != nil {
		return fmt.Errorf("populate submissions: %w", err)
	}
	grades, err := r.loader.GradeIDsForUsers(ctx, r.AssignmentID(), r.userIDs)
	if err != nil {
		return fmt.Errorf("populate grades: %w", err)
	}
	r.submissionIDs = submissions
	r.gradeIDs = grades
	return nil
}

// GradeIDs returns the resolved grade ids.
func (r *RequestData) GradeIDs() []string {
	return r.gradeIDs
}

// SubmissionIDs returns the resolved submission ids.
func (r *RequestData) SubmissionIDs() []string {
	return r.submissionIDs
}
