// Package subplugin defines the contract between the assignment module and its
// submission and feedback plugins for personal data export and deletion.
package subplugin

import (
	"context"
)

// ExportWriter receives exported data for the context being exported.
type ExportWriter interface {
	ExportData(subcontext []string, name string, data interface{}) error
	ExportFile(subcontext []string, name string, content []byte) error
}

// Plugin is implemented by every sub-plugin.
type Plugin interface {
	Name() string
}

// SubmissionPlugin owns data attached to submissions.
type SubmissionPlugin interface {
	Plugin
	ExportSubmissionUserData(ctx context.Context, req *RequestData, w ExportWriter) error
	DeleteSubmissionForContext(ctx context.Context, req *RequestData) error
	DeleteSubmissionForUserID(ctx context.Context, req *RequestData) error
	DeleteSubmissions(ctx context.Context, req *RequestData) error
}

// FeedbackPlugin owns data attached to grades.
type FeedbackPlugin interface {
	Plugin
	ExportFeedbackUserData(ctx context.Context, req *RequestData, w ExportWriter) error
	DeleteFeedbackForContext(ctx context.Context, req *RequestData) error
	DeleteFeedbackForGrade(ctx context.Context, req *RequestData) error
	DeleteFeedbackForGrades(ctx context.Context, req *RequestData) error
}

// ContextLocator is implemented by plugins that hold user data outside the assignment tables.
type ContextLocator interface {
	ContextIDsForUser(ctx context.Context, userID string) ([]string, error)
	UserIDsInContext(ctx context.Context, req *RequestData) ([]string, error)
}

// StudentLocator is implemented by plugins that know of students a teacher interacted with.
type StudentLocator interface {
	StudentUserIDs(ctx context.Context, assignmentID, teacherID string) ([]string, error)
}
