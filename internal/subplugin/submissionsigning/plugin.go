// Package submissionsigning stores signatures students attach to their submissions.
package submissionsigning

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/noah-isme/assign-override-api/internal/models"
	"github.com/noah-isme/assign-override-api/internal/subplugin"
)

const (
	// Component names the plugin's storage component.
	Component = "assignsubmission_signing"
	// AreaSignatures holds signature images per submission.
	AreaSignatures = "signatures"

	exportFolder = "Signatures"
)

type signingRows interface {
	ListForSubmission(ctx context.Context, submissionID string) ([]models.SubmissionSignature, error)
	ContextIDsForUser(ctx context.Context, userID string) ([]string, error)
	UserIDsForAssignment(ctx context.Context, assignmentID string) ([]string, error)
	DeleteForAssignment(ctx context.Context, assignmentID string) error
	DeleteForSubmissions(ctx context.Context, assignmentID string, submissionIDs []string) error
}

// SignatureRecord is the exported view of a signature. The raw signature is replaced by its digest.
type SignatureRecord struct {
	SignedAt time.Time `json:"signed_at"`
	Digest   string    `json:"blake2b_256"`
}

// Plugin implements subplugin.SubmissionPlugin and subplugin.ContextLocator.
type Plugin struct {
	rows   signingRows
	files  subplugin.FileStore
	logger *zap.Logger
}

// New constructs the plugin.
func New(rows signingRows, files subplugin.FileStore, logger *zap.Logger) *Plugin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Plugin{rows: rows, files: files, logger: logger}
}

// Name implements subplugin.Plugin.
func (p *Plugin) Name() string { return "signing" }

// Digest returns the hex encoded BLAKE2b-256 digest of a signature.
func Digest(signature []byte) string {
	sum := blake2b.Sum256(signature)
	return hex.EncodeToString(sum[:])
}

// ExportSubmissionUserData exports signature digests and files of the request's submission.
func (p *Plugin) ExportSubmissionUserData(ctx context.Context, req *subplugin.RequestData, w subplugin.ExportWriter) error {
	if req.Submission == nil {
		return nil
	}
	signatures, err := p.rows.ListForSubmission(ctx, req.Submission.ID)
	if err != nil {
		return err
	}
	if len(signatures) == 0 {
		return nil
	}
	target := append(append([]string(nil), req.Subcontext...), exportFolder)
	records := make([]SignatureRecord, 0, len(signatures))
	for _, sig := range signatures {
		records = append(records, SignatureRecord{SignedAt: sig.SignedAt, Digest: Digest(sig.Signature)})
	}
	if err := w.ExportData(target, "signatures", records); err != nil {
		return err
	}

	names, err := p.files.List(subplugin.AreaPath(req.Context.ID, Component, AreaSignatures, req.Submission.ID))
	if err != nil {
		return err
	}
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

// DeleteSubmissionForContext removes every signature of the assignment.
func (p *Plugin) DeleteSubmissionForContext(ctx context.Context, req *subplugin.RequestData) error {
	if err := p.files.DeleteDir(subplugin.ComponentPath(req.Context.ID, Component)); err != nil {
		return err
	}
	return p.rows.DeleteForAssignment(ctx, req.AssignmentID())
}

// DeleteSubmissionForUserID removes the signatures of the request's submission.
func (p *Plugin) DeleteSubmissionForUserID(ctx context.Context, req *subplugin.RequestData) error {
	if req.Submission == nil {
		return nil
	}
	return p.deleteSubmissions(ctx, req, []string{req.Submission.ID})
}

// DeleteSubmissions removes signatures for the request's submission ids.
func (p *Plugin) DeleteSubmissions(ctx context.Context, req *subplugin.RequestData) error {
	ids := req.SubmissionIDs()
	if len(ids) == 0 {
		return nil
	}
	return p.deleteSubmissions(ctx, req, ids)
}

func (p *Plugin) deleteSubmissions(ctx context.Context, req *subplugin.RequestData, ids []string) error {
	for _, id := range ids {
		if err := p.files.DeleteDir(subplugin.AreaPath(req.Context.ID, Component, AreaSignatures, id)); err != nil {
			return err
		}
	}
	if err := p.rows.DeleteForSubmissions(ctx, req.AssignmentID(), ids); err != nil {
		return err
	}
	p.logger.Debug("submission signatures deleted", zap.String("assignment_id", req.AssignmentID()), zap.Int("submissions", len(ids)))
	return nil
}

// ContextIDsForUser implements subplugin.ContextLocator.
func (p *Plugin) ContextIDsForUser(ctx context.Context, userID string) ([]string, error) {
	return p.rows.ContextIDsForUser(ctx, userID)
}

// UserIDsInContext implements subplugin.ContextLocator.
func (p *Plugin) UserIDsInContext(ctx context.Context, req *subplugin.RequestData) ([]string, error) {
	return p.rows.UserIDsForAssignment(ctx, req.AssignmentID())
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
