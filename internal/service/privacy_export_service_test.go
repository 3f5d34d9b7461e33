package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/noah-isme/assign-override-api/internal/models"
	"github.com/noah-isme/assign-override-api/internal/subplugin"
	"github.com/noah-isme/assign-override-api/pkg/storage"
)

type exportGrades struct{}

func (exportGrades) FindForAttempt(ctx context.Context, assignmentID, userID string, attempt int) (*models.Grade, error) {
	switch userID {
	case "u1":
		return &models.Grade{ID: "gr1", UserID: "u1", Grade: null.Float64From(88)}, nil
	case "u2":
		return &models.Grade{ID: "gr2", UserID: "u2", Grade: null.Float64From(71)}, nil
	}
	return nil, nil
}

func (exportGrades) GradedUserIDs(ctx context.Context, assignmentID, graderID string) ([]string, error) {
	if graderID == "u1" {
		return []string{"u2"}, nil
	}
	return nil, nil
}

func (exportGrades) IDsForUsers(ctx context.Context, assignmentID string, userIDs []string) ([]string, error) {
	return nil, nil
}

type exportFlags struct{}

func (exportFlags) FindFlags(ctx context.Context, assignmentID, userID string) (*models.UserFlag, error) {
	return &models.UserFlag{UserID: userID, Locked: true, ExtensionDueDate: at(300), WorkflowState: null.StringFrom("released")}, nil
}

func (exportFlags) FindMapping(ctx context.Context, assignmentID, userID string) (*models.UserMapping, error) {
	return &models.UserMapping{ID: "42", UserID: userID}, nil
}

type exportGrading struct{}

func (exportGrading) HasActiveController(ctx context.Context, contextID string) (bool, error) {
	return true, nil
}

func (exportGrading) ExportItemData(ctx context.Context, contextID, gradeID string) ([]models.GradingInstance, error) {
	if gradeID != "gr1" {
		return nil, nil
	}
	return []models.GradingInstance{{ID: "gi1", ItemID: gradeID, Status: "active"}}, nil
}

type exportDiscovery struct{}

func (exportDiscovery) ContextIDsForUser(ctx context.Context, userID string) ([]string, error) {
	return []string{"ctx-b", "ctx-asg", "ctx-b"}, nil
}

func (exportDiscovery) UserIDsInAssignment(ctx context.Context, assignmentID string) ([]string, error) {
	return []string{"u2", "u1", "u2"}, nil
}

func (exportDiscovery) Preferences(ctx context.Context, userID string, names []string) ([]models.UserPreference, error) {
	return []models.UserPreference{{UserID: userID, Name: "assign_perpage", Value: "20"}}, nil
}

type staticEffective struct{}

func (staticEffective) EffectiveForUser(ctx context.Context, assignmentID, userID string) (*models.EffectiveSchedule, error) {
	return &models.EffectiveSchedule{AssignmentID: assignmentID, UserID: userID, Override: models.Schedule{DueDate: at(150)}}, nil
}

type fileExportingPlugin struct {
	worldPlugin
}

func (p fileExportingPlugin) ExportSubmissionUserData(ctx context.Context, req *subplugin.RequestData, w subplugin.ExportWriter) error {
	return w.ExportFile(req.Subcontext, "essay.txt", []byte("essay by "+req.Submission.ID))
}

func newExportFixture(t *testing.T) (*PrivacyExportService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	registry := subplugin.NewRegistry()
	registry.RegisterSubmission(fileExportingPlugin{worldPlugin{deletionWorld: newDeletionWorld()}})

	world := newDeletionWorld()
	svc := NewPrivacyExportService(PrivacyExportDeps{
		Assignments: world,
		Submissions: worldSubmissions{world},
		Grades:      exportGrades{},
		Flags:       exportFlags{},
		Grading:     exportGrading{},
		Discovery:   exportDiscovery{},
		Overrides:   staticEffective{},
		Plugins:     registry,
		Storage:     store,
		Signer:      storage.NewSignedURLSigner("export-secret", time.Hour),
	}, "/api/v1/", nil)
	return svc, store
}

func TestPrivacyExportServiceExportUserData(t *testing.T) {
	svc, store := newExportFixture(t)

	bundle, err := svc.ExportUserData(context.Background(), "req-1", "u1", []string{"ctx-asg", "ctx-course"})
	require.NoError(t, err)
	assert.Equal(t, "exports/req-1", bundle.RelativePath)
	assert.Equal(t, "exports/req-1.zip", bundle.Archive)
	assert.Contains(t, bundle.URL, "/api/v1/privacy/exports/")

	names, err := store.List("exports/req-1")
	require.NoError(t, err)
	for _, want := range []string{
		"exports/req-1/context-ctx-asg/assignment.json",
		"exports/req-1/context-ctx-asg/overrides.json",
		"exports/req-1/context-ctx-asg/flags.json",
		"exports/req-1/context-ctx-asg/mapping.json",
		"exports/req-1/context-ctx-asg/Attempt_1/submission.json",
		"exports/req-1/context-ctx-asg/Attempt_1/grade.json",
		"exports/req-1/context-ctx-asg/Attempt_1/files/essay.txt",
		"exports/req-1/context-ctx-asg/Attempt_1/advancedgrading/instances.json",
		"exports/req-1/context-ctx-asg/studentsubmissions/u2/Attempt_1/submission.json",
		"exports/req-1/context-ctx-asg/studentsubmissions/u2/Attempt_1/grade.json",
		"exports/req-1/preferences/assign.json",
		"exports/req-1/index.csv",
		"exports/req-1/summary.pdf",
	} {
		assert.Contains(t, names, want)
	}
	assert.NotContains(t, names, "exports/req-1/context-ctx-course/assignment.json")
	assert.Equal(t, len(names), bundle.Files)

	flagsFile, err := store.Open("exports/req-1/context-ctx-asg/flags.json")
	require.NoError(t, err)
	var flags map[string]interface{}
	require.NoError(t, json.NewDecoder(flagsFile).Decode(&flags))
	require.NoError(t, flagsFile.Close())
	assert.Equal(t, "Yes", flags["locked"])
	assert.Equal(t, "No", flags["mailed"])
	assert.Equal(t, "released", flags["workflowstate"])

	requestID, archive, _, err := svc.ParseToken(bundle.Token, false)
	require.NoError(t, err)
	assert.Equal(t, "req-1", requestID)

	file, err := svc.Open(archive)
	require.NoError(t, err)
	raw, err := io.ReadAll(file)
	require.NoError(t, file.Close())
	require.NoError(t, err)
	reader, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	var entries []string
	for _, f := range reader.File {
		entries = append(entries, f.Name)
	}
	assert.Contains(t, entries, "index.csv")
	assert.Contains(t, entries, "context-ctx-asg/flags.json")

	require.NoError(t, svc.Remove(archive))
	names, err = store.List("exports")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestPrivacyExportServiceDiscovery(t *testing.T) {
	svc, _ := newExportFixture(t)
	ctx := context.Background()

	contexts, err := svc.ContextsForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ctx-asg", "ctx-b"}, contexts)

	users, err := svc.UsersInContext(ctx, "ctx-asg")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, users)

	users, err = svc.UsersInContext(ctx, "ctx-course")
	require.NoError(t, err)
	assert.Empty(t, users)
}
