// Package feedbackfile stores files returned to students as grade feedback.
package feedbackfile

import (
	"context"
	"fmt"
	"io"
	"path"

	"go.uber.org/zap"

	"github.com/noah-isme/assign-override-api/internal/models"
	"github.com/noah-isme/assign-override-api/internal/subplugin"
)

const (
	// Component names the plugin's storage component.
	Component = "assignfeedback_file"
	// AreaFeedbackFiles is the only file area of the plugin.
	AreaFeedbackFiles = "feedback_files"

	exportFolder = "Feedback files"
)

type feedbackRows interface {
	FindForGrade(ctx context.Context, gradeID string) (*models.FeedbackFile, error)
	DeleteForAssignment(ctx context.Context, assignmentID string) error
	DeleteForGrades(ctx context.Context, assignmentID string, gradeIDs []string) error
}

// Plugin implements subplugin.FeedbackPlugin for file feedback.
type Plugin struct {
	rows   feedbackRows
	files  subplugin.FileStore
	logger *zap.Logger
}

// New constructs the plugin.
func New(rows feedbackRows, files subplugin.FileStore, logger *zap.Logger) *Plugin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Plugin{rows: rows, files: files, logger: logger}
}

// Name implements subplugin.Plugin.
func (p *Plugin) Name() string { return "file" }

// ExportFeedbackUserData writes the files attached to the request's grade.
func (p *Plugin) ExportFeedbackUserData(ctx context.Context, req *subplugin.RequestData, w subplugin.ExportWriter) error {
	if req.Grade == nil {
		return nil
	}
	row, err := p.rows.FindForGrade(ctx, req.Grade.ID)
	if err != nil {
		return err
	}
	if row == nil {
		return nil
	}
	names, err := p.files.List(subplugin.AreaPath(req.Context.ID, Component, AreaFeedbackFiles, req.Grade.ID))
	if err != nil {
		return err
	}
	target := append(append([]string(nil), req.Subcontext...), exportFolder)
	for _, name := range names {
		content, err := p.read(name)
		if err != nil {
			return err
		}
		if err := w.ExportFile(target, path.Base(name), content); err != nil {
			return err
		}
	}
	return nil
}

// DeleteFeedbackForContext removes every feedback file and row of the assignment.
func (p *Plugin) DeleteFeedbackForContext(ctx context.Context, req *subplugin.RequestData) error {
	if err := p.files.DeleteDir(subplugin.AreaPath(req.Context.ID, Component, AreaFeedbackFiles, "")); err != nil {
		return err
	}
	return p.rows.DeleteForAssignment(ctx, req.AssignmentID())
}

// DeleteFeedbackForGrade removes feedback belonging to the request's user.
func (p *Plugin) DeleteFeedbackForGrade(ctx context.Context, req *subplugin.RequestData) error {
	req.SetUserIDs([]string{req.UserID})
	if err := req.PopulateSubmissionsAndGrades(ctx); err != nil {
		return err
	}
	return p.DeleteFeedbackForGrades(ctx, req)
}

// DeleteFeedbackForGrades removes feedback for the request's grade ids.
func (p *Plugin) DeleteFeedbackForGrades(ctx context.Context, req *subplugin.RequestData) error {
	gradeIDs := req.GradeIDs()
	if len(gradeIDs) == 0 {
		return nil
	}
	for _, gradeID := range gradeIDs {
		if err := p.files.DeleteDir(subplugin.AreaPath(req.Context.ID, Component, AreaFeedbackFiles, gradeID)); err != nil {
			return err
		}
	}
	if err := p.rows.DeleteForGrades(ctx, req.AssignmentID(), gradeIDs); err != nil {
		return err
	}
	p.logger.Debug("feedback files deleted", zap.String("assignment_id", req.AssignmentID()), zap.Int("grades", len(gradeIDs)))
	return nil
}

func (p *Plugin) read(name string) ([]byte, error) {
	file, err := p.files.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close() //nolint:errcheck
	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return content, nil
}
