package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/assign-override-api/internal/models"
	"github.com/noah-isme/assign-override-api/internal/subplugin"
	appErrors "github.com/noah-isme/assign-override-api/pkg/errors"
)

type contextAssignmentReader interface {
	FindContext(ctx context.Context, contextID string) (*models.Context, error)
	FindByContext(ctx context.Context, contextID string) (*models.Assignment, error)
}

type overrideRemover interface {
	List(ctx context.Context, filter models.OverrideFilter) ([]models.Override, error)
	DeleteByIDs(ctx context.Context, ids []string, userIDs []string) error
}

type instanceEventRemover interface {
	DeleteForInstance(ctx context.Context, instanceID string) error
	DeleteForInstanceUsers(ctx context.Context, instanceID string, userIDs []string) error
}

type submissionStore interface {
	ListForUser(ctx context.Context, assignmentID, userID string) ([]models.Submission, error)
	IDsForUsers(ctx context.Context, assignmentID string, userIDs []string) ([]string, error)
	DeleteForAssignment(ctx context.Context, assignmentID string) error
	DeleteForUsers(ctx context.Context, assignmentID string, userIDs []string) error
}

type gradeStore interface {
	ListForUser(ctx context.Context, assignmentID, userID string) ([]models.Grade, error)
	IDsForUsers(ctx context.Context, assignmentID string, userIDs []string) ([]string, error)
	DeleteForAssignment(ctx context.Context, assignmentID string) error
	DeleteForUsers(ctx context.Context, assignmentID string, userIDs []string) error
}

type userFlagStore interface {
	DeleteFlagsForAssignment(ctx context.Context, assignmentID string) error
	DeleteFlagsForUsers(ctx context.Context, assignmentID string, userIDs []string) error
	DeleteMappingsForAssignment(ctx context.Context, assignmentID string) error
	DeleteMappingsForUsers(ctx context.Context, assignmentID string, userIDs []string) error
}

type gradingManager interface {
	HasActiveController(ctx context.Context, contextID string) (bool, error)
	DeleteInstanceData(ctx context.Context, contextID, gradeID string) error
	DeleteDataForInstances(ctx context.Context, contextID string, gradeIDs []string) error
}

type userRecordIDs interface {
	IDsForUsers(ctx context.Context, assignmentID string, userIDs []string) ([]string, error)
}

// recordLoader resolves request user sets through the submission and grade tables.
type recordLoader struct {
	submissions userRecordIDs
	grades      userRecordIDs
}

func (l recordLoader) SubmissionIDsForUsers(ctx context.Context, assignmentID string, userIDs []string) ([]string, error) {
	return l.submissions.IDsForUsers(ctx, assignmentID, userIDs)
}

func (l recordLoader) GradeIDsForUsers(ctx context.Context, assignmentID string, userIDs []string) ([]string, error) {
	return l.grades.IDsForUsers(ctx, assignmentID, userIDs)
}

// PrivacyDeletionDeps bundles the stores touched by cascade deletion.
type PrivacyDeletionDeps struct {
	Assignments contextAssignmentReader
	Overrides   overrideRemover
	Calendar    instanceEventRemover
	Submissions submissionStore
	Grades      gradeStore
	Flags       userFlagStore
	Grading     gradingManager
	Plugins     *subplugin.Registry
	Cache       *CacheService
	Metrics     *MetricsService
}

// PrivacyDeletionService removes all assignment data held for a context, a user or a set of users.
// Sub-plugin storage goes first, then advanced grading, then calendar events, then the assignment's own rows.
// It does not open transactions.
type PrivacyDeletionService struct {
	deps   PrivacyDeletionDeps
	loader recordLoader
	logger *zap.Logger
}

// NewPrivacyDeletionService constructs the coordinator.
func NewPrivacyDeletionService(deps PrivacyDeletionDeps, logger *zap.Logger) *PrivacyDeletionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrivacyDeletionService{
		deps:   deps,
		loader: recordLoader{submissions: deps.Submissions, grades: deps.Grades},
		logger: logger,
	}
}

// DeleteForContext removes every user's data from an assignment context.
func (s *PrivacyDeletionService) DeleteForContext(ctx context.Context, contextID string) (err error) {
	start := time.Now()
	defer func() { s.deps.Metrics.ObserveCascadeDelete("context", err, time.Since(start)) }()

	c, assignment, err := resolveAssignmentContext(ctx, s.deps.Assignments, contextID)
	if err != nil || assignment == nil {
		return err
	}

	if err := s.deps.Plugins.EachSubmission(func(p subplugin.SubmissionPlugin) error {
		return p.DeleteSubmissionForContext(ctx, s.newRequest(c, assignment))
	}); err != nil {
		return err
	}
	if err := s.deps.Plugins.EachFeedback(func(p subplugin.FeedbackPlugin) error {
		return p.DeleteFeedbackForContext(ctx, s.newRequest(c, assignment))
	}); err != nil {
		return err
	}

	active, err := s.hasController(ctx, contextID)
	if err != nil {
		return err
	}
	if active {
		if err := s.deps.Grading.DeleteInstanceData(ctx, contextID, ""); err != nil {
			return internalError(err, "failed to delete advanced grading data")
		}
	}

	if err := s.deleteOverrides(ctx, assignment, nil); err != nil {
		return err
	}

	steps := []struct {
		what string
		fn   func(context.Context, string) error
	}{
		{"grades", s.deps.Grades.DeleteForAssignment},
		{"submissions", s.deps.Submissions.DeleteForAssignment},
		{"user flags", s.deps.Flags.DeleteFlagsForAssignment},
		{"user mappings", s.deps.Flags.DeleteMappingsForAssignment},
	}
	for _, step := range steps {
		if err := step.fn(ctx, assignment.ID); err != nil {
			return internalError(err, "failed to delete "+step.what)
		}
	}

	s.afterDelete(ctx, assignment)
	s.logger.Info("assignment context data deleted", zap.String("context_id", contextID), zap.String("assignment_id", assignment.ID))
	return nil
}

// DeleteDataForUser removes a user's data from each listed context.
func (s *PrivacyDeletionService) DeleteDataForUser(ctx context.Context, userID string, contextIDs []string) error {
	for _, contextID := range contextIDs {
		if err := s.DeleteForUser(ctx, contextID, userID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteForUser removes one user's data from an assignment context.
func (s *PrivacyDeletionService) DeleteForUser(ctx context.Context, contextID, userID string) (err error) {
	start := time.Now()
	defer func() { s.deps.Metrics.ObserveCascadeDelete("user", err, time.Since(start)) }()

	c, assignment, err := resolveAssignmentContext(ctx, s.deps.Assignments, contextID)
	if err != nil || assignment == nil {
		return err
	}

	submissions, err := s.deps.Submissions.ListForUser(ctx, assignment.ID, userID)
	if err != nil {
		return internalError(err, "failed to load submissions")
	}
	for i := range submissions {
		req := s.newRequest(c, assignment)
		req.UserID = userID
		req.Submission = &submissions[i]
		if err := s.deps.Plugins.EachSubmission(func(p subplugin.SubmissionPlugin) error {
			return p.DeleteSubmissionForUserID(ctx, req)
		}); err != nil {
			return err
		}
	}

	grades, err := s.deps.Grades.ListForUser(ctx, assignment.ID, userID)
	if err != nil {
		return internalError(err, "failed to load grades")
	}
	if len(grades) > 0 {
		active, err := s.hasController(ctx, contextID)
		if err != nil {
			return err
		}
		for i := range grades {
			req := s.newRequest(c, assignment)
			req.UserID = userID
			req.Grade = &grades[i]
			if err := s.deps.Plugins.EachFeedback(func(p subplugin.FeedbackPlugin) error {
				return p.DeleteFeedbackForGrade(ctx, req)
			}); err != nil {
				return err
			}
			if active {
				if err := s.deps.Grading.DeleteInstanceData(ctx, contextID, grades[i].ID); err != nil {
					return internalError(err, "failed to delete advanced grading data")
				}
			}
		}
	}

	users := []string{userID}
	if err := s.deleteOverrides(ctx, assignment, users); err != nil {
		return err
	}
	if err := s.deleteRowsForUsers(ctx, assignment.ID, users); err != nil {
		return err
	}

	s.afterDelete(ctx, assignment)
	s.logger.Info("assignment user data deleted", zap.String("context_id", contextID), zap.String("user_id", userID))
	return nil
}

// DeleteForUserSet removes the data of several users from an assignment context in one pass.
// An empty set deletes nothing.
func (s *PrivacyDeletionService) DeleteForUserSet(ctx context.Context, contextID string, userIDs []string) (err error) {
	userIDs = subplugin.Unique(userIDs)
	if len(userIDs) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { s.deps.Metrics.ObserveCascadeDelete("users", err, time.Since(start)) }()

	c, assignment, err := resolveAssignmentContext(ctx, s.deps.Assignments, contextID)
	if err != nil || assignment == nil {
		return err
	}

	req := s.newRequest(c, assignment)
	req.SetUserIDs(userIDs)
	if err := req.PopulateSubmissionsAndGrades(ctx); err != nil {
		return internalError(err, "failed to resolve user records")
	}

	if err := s.deps.Plugins.EachSubmission(func(p subplugin.SubmissionPlugin) error {
		return p.DeleteSubmissions(ctx, req)
	}); err != nil {
		return err
	}
	if err := s.deps.Plugins.EachFeedback(func(p subplugin.FeedbackPlugin) error {
		return p.DeleteFeedbackForGrades(ctx, req)
	}); err != nil {
		return err
	}

	if gradeIDs := req.GradeIDs(); len(gradeIDs) > 0 {
		active, err := s.hasController(ctx, contextID)
		if err != nil {
			return err
		}
		if active {
			if err := s.deps.Grading.DeleteDataForInstances(ctx, contextID, gradeIDs); err != nil {
				return internalError(err, "failed to delete advanced grading data")
			}
		}
	}

	if err := s.deleteOverrides(ctx, assignment, userIDs); err != nil {
		return err
	}
	if err := s.deleteRowsForUsers(ctx, assignment.ID, userIDs); err != nil {
		return err
	}

	s.afterDelete(ctx, assignment)
	s.logger.Info("assignment user set deleted", zap.String("context_id", contextID), zap.Int("users", len(userIDs)))
	return nil
}

// resolveAssignmentContext returns the assignment behind a context. A nil assignment means the
// context is not an assignment module or no longer exists.
func resolveAssignmentContext(ctx context.Context, assignments contextAssignmentReader, contextID string) (models.Context, *models.Assignment, error) {
	c, err := assignments.FindContext(ctx, contextID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Context{}, nil, nil
		}
		return models.Context{}, nil, internalError(err, "failed to load context")
	}
	if !c.IsModule() {
		return *c, nil, nil
	}
	assignment, err := assignments.FindByContext(ctx, contextID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return *c, nil, nil
		}
		return *c, nil, internalError(err, "failed to load assignment")
	}
	return *c, assignment, nil
}

func (s *PrivacyDeletionService) newRequest(c models.Context, assignment *models.Assignment) *subplugin.RequestData {
	return subplugin.NewRequestData(c, assignment, s.loader)
}

func (s *PrivacyDeletionService) hasController(ctx context.Context, contextID string) (bool, error) {
	active, err := s.deps.Grading.HasActiveController(ctx, contextID)
	if err != nil {
		return false, internalError(err, "failed to check advanced grading")
	}
	return active, nil
}

// deleteOverrides removes overrides for the given users, or all of them when userIDs is empty.
// Calendar events go before the override rows.
func (s *PrivacyDeletionService) deleteOverrides(ctx context.Context, assignment *models.Assignment, userIDs []string) error {
	overrides, err := s.deps.Overrides.List(ctx, models.OverrideFilter{AssignmentID: assignment.ID, UserIDs: userIDs})
	if err != nil {
		return internalError(err, "failed to load overrides")
	}
	if len(overrides) == 0 {
		return nil
	}

	if len(userIDs) == 0 {
		err = s.deps.Calendar.DeleteForInstance(ctx, assignment.ID)
	} else {
		err = s.deps.Calendar.DeleteForInstanceUsers(ctx, assignment.ID, userIDs)
	}
	if err != nil {
		return internalError(err, "failed to delete override events")
	}

	ids := make([]string, 0, len(overrides))
	for _, o := range overrides {
		ids = append(ids, o.ID)
	}
	if err := s.deps.Overrides.DeleteByIDs(ctx, ids, userIDs); err != nil {
		return internalError(err, "failed to delete overrides")
	}
	return nil
}

func (s *PrivacyDeletionService) deleteRowsForUsers(ctx context.Context, assignmentID string, userIDs []string) error {
	steps := []struct {
		what string
		fn   func(context.Context, string, []string) error
	}{
		{"user flags", s.deps.Flags.DeleteFlagsForUsers},
		{"user mappings", s.deps.Flags.DeleteMappingsForUsers},
		{"grades", s.deps.Grades.DeleteForUsers},
		{"submissions", s.deps.Submissions.DeleteForUsers},
	}
	for _, step := range steps {
		if err := step.fn(ctx, assignmentID, userIDs); err != nil {
			return internalError(err, "failed to delete "+step.what)
		}
	}
	return nil
}

func (s *PrivacyDeletionService) afterDelete(ctx context.Context, assignment *models.Assignment) {
	if err := s.deps.Cache.InvalidateAssignment(ctx, assignment.ID); err != nil {
		s.logger.Warn("override cache invalidation failed", zap.String("assignment_id", assignment.ID), zap.Error(err))
	}
}

func internalError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
