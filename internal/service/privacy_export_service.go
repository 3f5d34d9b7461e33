package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"

	"github.com/noah-isme/assign-override-api/internal/models"
	"github.com/noah-isme/assign-override-api/internal/subplugin"
	"github.com/noah-isme/assign-override-api/pkg/export"
	"github.com/noah-isme/assign-override-api/pkg/storage"
)

type exportSubmissionReader interface {
	ListForUser(ctx context.Context, assignmentID, userID string) ([]models.Submission, error)
	IDsForUsers(ctx context.Context, assignmentID string, userIDs []string) ([]string, error)
}

type exportGradeReader interface {
	FindForAttempt(ctx context.Context, assignmentID, userID string, attempt int) (*models.Grade, error)
	GradedUserIDs(ctx context.Context, assignmentID, graderID string) ([]string, error)
	IDsForUsers(ctx context.Context, assignmentID string, userIDs []string) ([]string, error)
}

type exportFlagReader interface {
	FindFlags(ctx context.Context, assignmentID, userID string) (*models.UserFlag, error)
	FindMapping(ctx context.Context, assignmentID, userID string) (*models.UserMapping, error)
}

type gradingExporter interface {
	HasActiveController(ctx context.Context, contextID string) (bool, error)
	ExportItemData(ctx context.Context, contextID, gradeID string) ([]models.GradingInstance, error)
}

type privacyDiscovery interface {
	ContextIDsForUser(ctx context.Context, userID string) ([]string, error)
	UserIDsInAssignment(ctx context.Context, assignmentID string) ([]string, error)
	Preferences(ctx context.Context, userID string, names []string) ([]models.UserPreference, error)
}

type effectiveResolver interface {
	EffectiveForUser(ctx context.Context, assignmentID, userID string) (*models.EffectiveSchedule, error)
}

type bundleStorage interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
	Delete(name string) error
	DeleteDir(dir string) error
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// PrivacyExportDeps bundles the readers used to build personal data exports.
type PrivacyExportDeps struct {
	Assignments contextAssignmentReader
	Submissions exportSubmissionReader
	Grades      exportGradeReader
	Flags       exportFlagReader
	Grading     gradingExporter
	Discovery   privacyDiscovery
	Overrides   effectiveResolver
	Plugins     *subplugin.Registry
	Storage     bundleStorage
	Signer      *storage.SignedURLSigner
	CSV         datasetRenderer
	PDF         datasetRenderer
}

// ExportBundle describes a stored personal data export.
type ExportBundle struct {
	RequestID    string
	RelativePath string
	Archive      string
	Token        string
	URL          string
	Files        int
	ExpiresAt    time.Time
}

// PrivacyExportService locates and exports the assignment data held about a user.
type PrivacyExportService struct {
	deps      PrivacyExportDeps
	loader    recordLoader
	apiPrefix string
	logger    *zap.Logger
}

// NewPrivacyExportService constructs the service.
func NewPrivacyExportService(deps PrivacyExportDeps, apiPrefix string, logger *zap.Logger) *PrivacyExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.CSV == nil {
		deps.CSV = export.NewCSVExporter()
	}
	if deps.PDF == nil {
		deps.PDF = export.NewPDFExporter()
	}
	return &PrivacyExportService{
		deps:      deps,
		loader:    recordLoader{submissions: deps.Submissions, grades: deps.Grades},
		apiPrefix: apiPrefix,
		logger:    logger,
	}
}

// ContextsForUser lists the assignment contexts holding data about the user.
func (s *PrivacyExportService) ContextsForUser(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.deps.Discovery.ContextIDsForUser(ctx, userID)
	if err != nil {
		return nil, internalError(err, "failed to locate user contexts")
	}
	pluginIDs, err := s.deps.Plugins.ContextIDsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return subplugin.Unique(append(ids, pluginIDs...)), nil
}

// UsersInContext lists the users with data in an assignment context.
func (s *PrivacyExportService) UsersInContext(ctx context.Context, contextID string) ([]string, error) {
	c, assignment, err := resolveAssignmentContext(ctx, s.deps.Assignments, contextID)
	if err != nil || assignment == nil {
		return nil, err
	}
	ids, err := s.deps.Discovery.UserIDsInAssignment(ctx, assignment.ID)
	if err != nil {
		return nil, internalError(err, "failed to locate context users")
	}
	pluginIDs, err := s.deps.Plugins.UserIDsInContext(ctx, subplugin.NewRequestData(c, assignment, s.loader))
	if err != nil {
		return nil, err
	}
	return subplugin.Unique(append(ids, pluginIDs...)), nil
}

// ExportUserData writes the user's data for each context into a bundle and returns a signed download token.
func (s *PrivacyExportService) ExportUserData(ctx context.Context, requestID, userID string, contextIDs []string) (*ExportBundle, error) {
	bundle := newExportBundle(s.deps.Storage, path.Join("exports", requestID))
	summary := export.Dataset{
		Title:   "Assignment data export",
		Headers: []string{"context", "assignment", "files"},
	}

	for _, contextID := range contextIDs {
		before := len(bundle.entries)
		assignment, err := s.exportContext(ctx, bundle, contextID, userID)
		if err != nil {
			return nil, err
		}
		if assignment == nil {
			continue
		}
		summary.Rows = append(summary.Rows, map[string]string{
			"context":    contextID,
			"assignment": assignment.Name,
			"files":      strconv.Itoa(len(bundle.entries) - before),
		})
	}

	prefs, err := s.deps.Discovery.Preferences(ctx, userID, models.AssignmentPreferenceNames)
	if err != nil {
		return nil, internalError(err, "failed to load user preferences")
	}
	if len(prefs) > 0 {
		records := make([]preferenceRecord, 0, len(prefs))
		for _, p := range prefs {
			records = append(records, preferenceRecord{Name: p.Name, Value: p.Value})
		}
		if err := bundle.ExportData([]string{"preferences"}, "assign", records); err != nil {
			return nil, err
		}
	}

	summary.Notes = []string{
		fmt.Sprintf("User: %s", userID),
		fmt.Sprintf("Request: %s", requestID),
		fmt.Sprintf("Files: %d", len(bundle.entries)),
	}
	if err := s.writeIndex(bundle, summary); err != nil {
		return nil, err
	}
	archive, err := bundle.archive()
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.deps.Signer.Generate(requestID, archive)
	if err != nil {
		return nil, internalError(err, "failed to sign export")
	}
	s.logger.Info("privacy export written",
		zap.String("request_id", requestID),
		zap.String("user_id", userID),
		zap.Int("contexts", len(summary.Rows)),
		zap.Int("files", len(bundle.entries)),
	)
	return &ExportBundle{
		RequestID:    requestID,
		RelativePath: bundle.root,
		Archive:      archive,
		Token:        token,
		URL:          s.downloadURL(token),
		Files:        len(bundle.entries),
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates a download token and returns the archive path.
func (s *PrivacyExportService) ParseToken(token string, allowExpired bool) (requestID, archive string, expiresAt time.Time, err error) {
	return s.deps.Signer.Parse(token, allowExpired)
}

// DownloadURL returns the public link for a stored bundle.
func (s *PrivacyExportService) DownloadURL(requestID, archive string) (string, error) {
	token, _, err := s.deps.Signer.Generate(requestID, archive)
	if err != nil {
		return "", err
	}
	return s.downloadURL(token), nil
}

// Open returns a handle to a stored archive.
func (s *PrivacyExportService) Open(archive string) (*os.File, error) {
	return s.deps.Storage.Open(archive)
}

// Remove deletes a bundle and its archive.
func (s *PrivacyExportService) Remove(archive string) error {
	if err := s.deps.Storage.Delete(archive); err != nil {
		return err
	}
	return s.deps.Storage.DeleteDir(strings.TrimSuffix(archive, ".zip"))
}

func (s *PrivacyExportService) downloadURL(token string) string {
	prefix := strings.TrimRight(s.apiPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return fmt.Sprintf("%s/privacy/exports/%s", prefix, token)
}

func (s *PrivacyExportService) exportContext(ctx context.Context, bundle *exportBundle, contextID, userID string) (*models.Assignment, error) {
	c, assignment, err := resolveAssignmentContext(ctx, s.deps.Assignments, contextID)
	if err != nil || assignment == nil {
		return nil, err
	}
	base := []string{"context-" + contextID}

	if err := bundle.ExportData(base, "assignment", assignmentRecord{
		Name:                     assignment.Name,
		AllowSubmissionsFromDate: assignment.AllowSubmissionsFromDate,
		DueDate:                  assignment.DueDate,
		CutoffDate:               assignment.CutoffDate,
		BlindMarking:             yesNo(assignment.BlindMarking),
	}); err != nil {
		return nil, err
	}

	active, err := s.deps.Grading.HasActiveController(ctx, contextID)
	if err != nil {
		return nil, internalError(err, "failed to check advanced grading")
	}

	graded, err := s.deps.Grades.GradedUserIDs(ctx, assignment.ID, userID)
	if err != nil {
		return nil, internalError(err, "failed to load graded students")
	}
	pluginStudents, err := s.deps.Plugins.StudentUserIDs(ctx, assignment.ID, userID)
	if err != nil {
		return nil, err
	}
	for _, studentID := range subplugin.Unique(append(graded, pluginStudents...)) {
		if studentID == userID {
			continue
		}
		sub := append(append([]string(nil), base...), "studentsubmissions", studentID)
		if err := s.exportAttempts(ctx, bundle, c, assignment, studentID, userID, sub, active); err != nil {
			return nil, err
		}
	}

	effective, err := s.deps.Overrides.EffectiveForUser(ctx, assignment.ID, userID)
	if err != nil {
		return nil, err
	}
	if effective.HasOverride() {
		if err := bundle.ExportData(base, "overrides", effective.Override); err != nil {
			return nil, err
		}
	}

	if err := s.exportAttempts(ctx, bundle, c, assignment, userID, userID, base, active); err != nil {
		return nil, err
	}

	flags, err := s.deps.Flags.FindFlags(ctx, assignment.ID, userID)
	if err != nil {
		return nil, internalError(err, "failed to load user flags")
	}
	if flags != nil {
		if err := bundle.ExportData(base, "flags", flagsRecord{
			Locked:           yesNo(flags.Locked),
			Mailed:           yesNo(flags.Mailed),
			ExtensionDueDate: flags.ExtensionDueDate,
			WorkflowState:    flags.WorkflowState.String,
		}); err != nil {
			return nil, err
		}
	}

	mapping, err := s.deps.Flags.FindMapping(ctx, assignment.ID, userID)
	if err != nil {
		return nil, internalError(err, "failed to load user mapping")
	}
	if mapping != nil {
		if err := bundle.ExportData(base, "mapping", mappingRecord{BlindMarkingID: mapping.ID}); err != nil {
			return nil, err
		}
	}
	return assignment, nil
}

// exportAttempts writes a user's submissions and their grades. actorID is the user the export is for.
func (s *PrivacyExportService) exportAttempts(ctx context.Context, bundle *exportBundle, c models.Context, assignment *models.Assignment, userID, actorID string, base []string, active bool) error {
	submissions, err := s.deps.Submissions.ListForUser(ctx, assignment.ID, userID)
	if err != nil {
		return internalError(err, "failed to load submissions")
	}
	for i := range submissions {
		submission := submissions[i]
		sub := append(append([]string(nil), base...), fmt.Sprintf("Attempt %d", submission.AttemptNumber+1))
		if err := bundle.ExportData(sub, "submission", submissionRecord{
			Attempt:   submission.AttemptNumber + 1,
			Status:    string(submission.Status),
			Latest:    yesNo(submission.Latest),
			CreatedAt: submission.CreatedAt,
			UpdatedAt: submission.UpdatedAt,
		}); err != nil {
			return err
		}

		req := subplugin.NewRequestData(c, assignment, s.loader)
		req.UserID = actorID
		req.Submission = &submission
		req.Subcontext = sub
		if err := s.deps.Plugins.EachSubmission(func(p subplugin.SubmissionPlugin) error {
			return p.ExportSubmissionUserData(ctx, req, bundle)
		}); err != nil {
			return err
		}

		grade, err := s.deps.Grades.FindForAttempt(ctx, assignment.ID, userID, submission.AttemptNumber)
		if err != nil {
			return internalError(err, "failed to load grade")
		}
		if grade == nil {
			continue
		}
		if err := bundle.ExportData(sub, "grade", gradeRecord{
			Grade:     grade.Grade,
			Attempt:   grade.AttemptNumber + 1,
			CreatedAt: grade.CreatedAt,
			UpdatedAt: grade.UpdatedAt,
		}); err != nil {
			return err
		}
		req.Grade = grade
		if err := s.deps.Plugins.EachFeedback(func(p subplugin.FeedbackPlugin) error {
			return p.ExportFeedbackUserData(ctx, req, bundle)
		}); err != nil {
			return err
		}
		if !active {
			continue
		}
		items, err := s.deps.Grading.ExportItemData(ctx, c.ID, grade.ID)
		if err != nil {
			return internalError(err, "failed to export advanced grading data")
		}
		if len(items) > 0 {
			gradingPath := append(append([]string(nil), sub...), "advancedgrading")
			if err := bundle.ExportData(gradingPath, "instances", items); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *PrivacyExportService) writeIndex(bundle *exportBundle, summary export.Dataset) error {
	index := export.Dataset{Headers: []string{"path", "bytes"}}
	for _, entry := range bundle.entries {
		index.Rows = append(index.Rows, map[string]string{
			"path":  strings.TrimPrefix(entry.name, bundle.root+"/"),
			"bytes": strconv.Itoa(len(entry.content)),
		})
	}
	csvData, err := s.deps.CSV.Render(index)
	if err != nil {
		return internalError(err, "failed to render export index")
	}
	pdfData, err := s.deps.PDF.Render(summary)
	if err != nil {
		return internalError(err, "failed to render export summary")
	}
	if err := bundle.save("index.csv", csvData); err != nil {
		return err
	}
	return bundle.save("summary.pdf", pdfData)
}

type assignmentRecord struct {
	Name                     string    `json:"name"`
	AllowSubmissionsFromDate null.Time `json:"allowsubmissionsfromdate"`
	DueDate                  null.Time `json:"duedate"`
	CutoffDate               null.Time `json:"cutoffdate"`
	BlindMarking             string    `json:"blindmarking"`
}

type submissionRecord struct {
	Attempt   int       `json:"attemptnumber"`
	Status    string    `json:"status"`
	Latest    string    `json:"latest"`
	CreatedAt time.Time `json:"timecreated"`
	UpdatedAt time.Time `json:"timemodified"`
}

type gradeRecord struct {
	Grade     null.Float64 `json:"grade"`
	Attempt   int          `json:"attemptnumber"`
	CreatedAt time.Time    `json:"timecreated"`
	UpdatedAt time.Time    `json:"timemodified"`
}

type flagsRecord struct {
	Locked           string    `json:"locked"`
	Mailed           string    `json:"mailed"`
	ExtensionDueDate null.Time `json:"extensionduedate"`
	WorkflowState    string    `json:"workflowstate"`
}

type mappingRecord struct {
	BlindMarkingID string `json:"blindmarkingid"`
}

type preferenceRecord struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

type bundleEntry struct {
	name    string
	content []byte
}

// exportBundle implements subplugin.ExportWriter on top of file storage.
type exportBundle struct {
	storage bundleStorage
	root    string
	entries []bundleEntry
}

func newExportBundle(store bundleStorage, root string) *exportBundle {
	return &exportBundle{storage: store, root: root}
}

// ExportData stores data as indented JSON under the subcontext.
func (b *exportBundle) ExportData(subcontext []string, name string, data interface{}) error {
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return b.save(b.entryPath(subcontext, sanitizeFilename(name)+".json"), payload)
}

// ExportFile stores a file under the subcontext's files folder.
func (b *exportBundle) ExportFile(subcontext []string, name string, content []byte) error {
	return b.save(b.entryPath(append(append([]string(nil), subcontext...), "files"), sanitizeFilename(name)), content)
}

func (b *exportBundle) entryPath(subcontext []string, name string) string {
	parts := make([]string, 0, len(subcontext)+1)
	for _, part := range subcontext {
		parts = append(parts, sanitizeFilename(part))
	}
	return path.Join(append(parts, name)...)
}

func (b *exportBundle) save(rel string, content []byte) error {
	name := path.Join(b.root, rel)
	if _, err := b.storage.Save(name, content); err != nil {
		return fmt.Errorf("store %s: %w", rel, err)
	}
	b.entries = append(b.entries, bundleEntry{name: name, content: content})
	return nil
}

// archive packs every entry into <root>.zip and returns its path.
func (b *exportBundle) archive() (string, error) {
	buf := &bytes.Buffer{}
	writer := zip.NewWriter(buf)
	for _, entry := range b.entries {
		f, err := writer.Create(strings.TrimPrefix(entry.name, b.root+"/"))
		if err != nil {
			return "", fmt.Errorf("add %s to archive: %w", entry.name, err)
		}
		if _, err := f.Write(entry.content); err != nil {
			return "", fmt.Errorf("write %s to archive: %w", entry.name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close archive: %w", err)
	}
	return b.storage.Save(b.root+".zip", buf.Bytes())
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
