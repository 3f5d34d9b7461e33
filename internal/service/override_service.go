package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"

	"github.com/noah-isme/assign-override-api/internal/models"
	appErrors "github.com/noah-isme/assign-override-api/pkg/errors"
)

type assignmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
}

type overrideStore interface {
	FindByID(ctx context.Context, id string) (*models.Override, error)
	FindBySubject(ctx context.Context, assignmentID string, userID, groupID null.String) (*models.Override, error)
	List(ctx context.Context, filter models.OverrideFilter) ([]models.Override, error)
	Create(ctx context.Context, override *models.Override) error
	Update(ctx context.Context, override *models.Override) error
	UpdateSortOrder(ctx context.Context, id string, sortOrder int) error
	CountGroup(ctx context.Context, assignmentID string) (int, error)
	CountAll(ctx context.Context, assignmentID string) (int, error)
	Delete(ctx context.Context, id string) error
}

type subjectDirectory interface {
	UserExists(ctx context.Context, userID string) (bool, error)
	GroupExists(ctx context.Context, courseID, groupID string) (bool, error)
	GroupIDsForUser(ctx context.Context, courseID, userID string) ([]string, error)
}

type overrideCalendar interface {
	RefreshAssignmentEvents(ctx context.Context, assignment *models.Assignment) error
}

type subjectEventStore interface {
	DeleteForSubject(ctx context.Context, instanceID string, userID, groupID null.String) error
}

type eventTrigger interface {
	Trigger(ctx context.Context, event models.DomainEvent) error
}

// SaveOverrideRequest is the API payload for creating or editing an override.
type SaveOverrideRequest struct {
	UserID                   *string    `json:"user_id" validate:"omitempty,min=1"`
	GroupID                  *string    `json:"group_id" validate:"omitempty,min=1"`
	AllowSubmissionsFromDate *null.Time `json:"allow_submissions_from_date"`
	DueDate                  *null.Time `json:"due_date"`
	CutoffDate               *null.Time `json:"cutoff_date"`
	Reset                    bool       `json:"reset"`
}

// DuplicateOverrideRequest names the subject receiving a copy of an override.
type DuplicateOverrideRequest struct {
	UserID  *string `json:"user_id" validate:"omitempty,min=1"`
	GroupID *string `json:"group_id" validate:"omitempty,min=1"`
}

// ReorderOverridesRequest lists every group override id in the desired order.
type ReorderOverridesRequest struct {
	OverrideIDs []string `json:"override_ids" validate:"required,min=1,dive,required"`
}

// OverrideService manages per-user and per-group schedule overrides.
type OverrideService struct {
	assignments assignmentReader
	overrides   overrideStore
	directory   subjectDirectory
	calendar    overrideCalendar
	events      subjectEventStore
	audit       eventTrigger
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// OverrideServiceDeps bundles the collaborators of OverrideService.
type OverrideServiceDeps struct {
	Assignments assignmentReader
	Overrides   overrideStore
	Directory   subjectDirectory
	Calendar    overrideCalendar
	Events      subjectEventStore
	Audit       eventTrigger
	Cache       *CacheService
	Metrics     *MetricsService
}

// NewOverrideService constructs the service.
func NewOverrideService(deps OverrideServiceDeps, validate *validator.Validate, logger *zap.Logger) *OverrideService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverrideService{
		assignments: deps.Assignments,
		overrides:   deps.Overrides,
		directory:   deps.Directory,
		calendar:    deps.Calendar,
		events:      deps.Events,
		audit:       deps.Audit,
		cache:       deps.Cache,
		metrics:     deps.Metrics,
		validator:   validate,
		logger:      logger,
	}
}

// EditFromRequest converts an API payload into an OverrideEdit.
func (s *OverrideService) EditFromRequest(assignmentID, overrideID string, req SaveOverrideRequest) (models.OverrideEdit, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.OverrideEdit{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid override payload")
	}
	edit := models.OverrideEdit{
		OverrideID:   overrideID,
		AssignmentID: assignmentID,
		UserID:       null.StringFromPtr(req.UserID),
		GroupID:      null.StringFromPtr(req.GroupID),
		Reset:        req.Reset,
	}
	if req.AllowSubmissionsFromDate != nil {
		edit.Schedule.AllowSubmissionsFromDate = *req.AllowSubmissionsFromDate
	}
	if req.DueDate != nil {
		edit.Schedule.DueDate = *req.DueDate
	}
	if req.CutoffDate != nil {
		edit.Schedule.CutoffDate = *req.CutoffDate
	}
	return edit, nil
}

// Get returns one override.
func (s *OverrideService) Get(ctx context.Context, id string) (*models.Override, error) {
	override, err := s.overrides.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "override not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load override")
	}
	return override, nil
}

// List returns the overrides of an assignment, group overrides first in sort order.
func (s *OverrideService) List(ctx context.Context, assignmentID string) ([]models.Override, error) {
	if _, err := s.loadAssignment(ctx, assignmentID); err != nil {
		return nil, err
	}
	overrides, err := s.overrides.List(ctx, models.OverrideFilter{AssignmentID: assignmentID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list overrides")
	}
	return overrides, nil
}

// Save creates an override or updates the one named by edit.OverrideID.
func (s *OverrideService) Save(ctx context.Context, edit models.OverrideEdit) (*models.Override, error) {
	var existing *models.Override
	if edit.OverrideID != "" {
		found, err := s.Get(ctx, edit.OverrideID)
		if err != nil {
			return nil, err
		}
		existing = found
		edit.AssignmentID = existing.AssignmentID
	}
	assignment, err := s.loadAssignment(ctx, edit.AssignmentID)
	if err != nil {
		return nil, err
	}

	groupMode := edit.GroupID.Valid && edit.GroupID.String != ""
	if existing != nil {
		groupMode = existing.IsGroup()
		if blank(edit.UserID) && blank(edit.GroupID) {
			edit.UserID, edit.GroupID = existing.UserID, existing.GroupID
		}
	}
	if err := s.validateSubject(ctx, assignment, &edit, groupMode); err != nil {
		return nil, err
	}

	if existing != nil && !edit.Reset {
		edit.Schedule = FillSchedule(edit.Schedule, existing.Schedule())
	}
	if err := validateDates(FillSchedule(edit.Schedule, assignment.Schedule())); err != nil {
		return nil, err
	}

	subjectChanged := existing == nil
	if existing != nil {
		if groupMode {
			subjectChanged = edit.GroupID.String != existing.GroupID.String
		} else {
			subjectChanged = edit.UserID.String != existing.UserID.String
		}
	}

	var replaced *models.Override
	if subjectChanged {
		replaced, err = s.overrides.FindBySubject(ctx, assignment.ID, edit.UserID, edit.GroupID)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up existing override")
			}
			replaced = nil
		}
	}

	merged := MergeOverride(replaced, edit, assignment.Schedule())
	if merged.Schedule().IsEmpty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "override must change at least one date")
	}

	if replaced != nil {
		if err := s.deleteOverride(ctx, assignment, replaced); err != nil {
			return nil, err
		}
		// Close the gap before the new row is placed last.
		if replaced.IsGroup() {
			if err := s.resequence(ctx, assignment.ID, nil); err != nil {
				return nil, err
			}
		}
	}

	action := "created"
	if existing != nil {
		action = "updated"
		merged.ID = existing.ID
		merged.SortOrder = existing.SortOrder
		if !groupMode {
			merged.SortOrder = null.Int{}
		}
		if err := s.overrides.Update(ctx, &merged); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update override")
		}
		if groupMode && replaced != nil {
			if err := s.resequence(ctx, assignment.ID, &merged); err != nil {
				return nil, err
			}
		}
	} else {
		if err := s.overrides.Create(ctx, &merged); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create override")
		}
		if groupMode {
			if err := s.placeNewGroupOverride(ctx, assignment.ID, &merged); err != nil {
				return nil, err
			}
		}
	}

	if err := s.audit.Trigger(ctx, overrideEvent(&merged, assignment, action)); err != nil {
		return nil, err
	}
	if err := s.afterWrite(ctx, assignment); err != nil {
		return nil, err
	}
	s.metrics.RecordOverrideWrite(action, groupMode)
	s.logger.Info("override saved",
		zap.String("override_id", merged.ID),
		zap.String("assignment_id", assignment.ID),
		zap.String("action", action),
		zap.Bool("group", groupMode),
	)
	return &merged, nil
}

// Duplicate copies an override's dates onto a new subject of the same kind.
func (s *OverrideService) Duplicate(ctx context.Context, overrideID string, req DuplicateOverrideRequest) (*models.Override, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid duplicate payload")
	}
	source, err := s.Get(ctx, overrideID)
	if err != nil {
		return nil, err
	}
	edit := models.OverrideEdit{
		AssignmentID: source.AssignmentID,
		UserID:       null.StringFromPtr(req.UserID),
		GroupID:      null.StringFromPtr(req.GroupID),
		Schedule:     source.Schedule(),
	}
	if source.IsGroup() != !blank(edit.GroupID) {
		return nil, appErrors.ErrInvalidOverrideSubject
	}
	return s.Save(ctx, edit)
}

// Delete removes an override and its calendar events.
func (s *OverrideService) Delete(ctx context.Context, overrideID string) error {
	override, err := s.Get(ctx, overrideID)
	if err != nil {
		return err
	}
	assignment, err := s.loadAssignment(ctx, override.AssignmentID)
	if err != nil {
		return err
	}
	if err := s.deleteOverride(ctx, assignment, override); err != nil {
		return err
	}
	if override.IsGroup() {
		if err := s.resequence(ctx, assignment.ID, nil); err != nil {
			return err
		}
	}
	if err := s.cache.InvalidateAssignment(ctx, assignment.ID); err != nil {
		s.logger.Warn("override cache invalidation failed", zap.String("assignment_id", assignment.ID), zap.Error(err))
	}
	s.metrics.RecordOverrideWrite("deleted", override.IsGroup())
	return nil
}

// Reorder sets the priority of group overrides. ids must list every group override exactly once.
func (s *OverrideService) Reorder(ctx context.Context, assignmentID string, req ReorderOverridesRequest) ([]models.Override, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reorder payload")
	}
	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	groups, err := s.overrides.List(ctx, models.OverrideFilter{AssignmentID: assignmentID, GroupsOnly: true})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list group overrides")
	}
	if !sameIDSet(groups, req.OverrideIDs) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "override_ids must list every group override once")
	}
	for i, id := range req.OverrideIDs {
		if err := s.overrides.UpdateSortOrder(ctx, id, i+1); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reorder overrides")
		}
	}
	if err := s.afterWrite(ctx, assignment); err != nil {
		return nil, err
	}
	return s.List(ctx, assignmentID)
}

// EffectiveForUser resolves the schedule that applies to a user. A user override wins;
// otherwise each date comes from the first group override, by sort order, that sets it.
func (s *OverrideService) EffectiveForUser(ctx context.Context, assignmentID, userID string) (*models.EffectiveSchedule, error) {
	key := EffectiveOverrideKey(assignmentID, userID)
	var cached models.EffectiveSchedule
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	userOverride, err := s.overrides.FindBySubject(ctx, assignmentID, null.StringFrom(userID), null.String{})
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user override")
	}
	groupIDs, err := s.directory.GroupIDsForUser(ctx, assignment.CourseID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user groups")
	}
	var groupOverrides []models.Override
	if len(groupIDs) > 0 {
		groupOverrides, err = s.overrides.List(ctx, models.OverrideFilter{AssignmentID: assignmentID, GroupIDs: groupIDs, GroupsOnly: true})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group overrides")
		}
	}

	result := ResolveEffective(assignment, userID, userOverride, groupOverrides)
	if err := s.cache.Set(ctx, key, result, 0); err != nil {
		s.logger.Debug("effective schedule not cached", zap.String("key", key), zap.Error(err))
	}
	return &result, nil
}

// ResolveEffective combines a user's override and group overrides with the assignment defaults.
func ResolveEffective(assignment *models.Assignment, userID string, userOverride *models.Override, groupOverrides []models.Override) models.EffectiveSchedule {
	sorted := append([]models.Override(nil), groupOverrides...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SortOrder.Int < sorted[j].SortOrder.Int
	})

	names := []string{"allow_submissions_from_date", "due_date", "cutoff_date"}
	result := models.EffectiveSchedule{
		AssignmentID: assignment.ID,
		UserID:       userID,
		Sources:      make(map[string]string, len(names)),
	}
	overrideFields := result.Override.Fields()
	var userFields []*null.Time
	if userOverride != nil {
		userSchedule := userOverride.Schedule()
		userFields = userSchedule.Fields()
	}
	groupFields := make([][]*null.Time, len(sorted))
	for i := range sorted {
		groupSchedule := sorted[i].Schedule()
		groupFields[i] = groupSchedule.Fields()
	}
	for i, name := range names {
		if userFields != nil {
			if value := *userFields[i]; value.Valid {
				*overrideFields[i] = value
				result.Sources[name] = models.SourceUser
				continue
			}
		}
		for g, group := range sorted {
			if value := *groupFields[g][i]; value.Valid {
				*overrideFields[i] = value
				result.Sources[name] = models.SourceGroup + ":" + group.GroupID.String
				break
			}
		}
		if _, ok := result.Sources[name]; !ok {
			result.Sources[name] = models.SourceAssignment
		}
	}
	result.Effective = FillSchedule(result.Override, assignment.Schedule())
	return result
}

func (s *OverrideService) loadAssignment(ctx context.Context, id string) (*models.Assignment, error) {
	assignment, err := s.assignments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return assignment, nil
}

func (s *OverrideService) validateSubject(ctx context.Context, assignment *models.Assignment, edit *models.OverrideEdit, groupMode bool) error {
	if groupMode {
		if blank(edit.GroupID) || !blank(edit.UserID) {
			return appErrors.ErrInvalidOverrideSubject
		}
		edit.UserID = null.String{}
		ok, err := s.directory.GroupExists(ctx, assignment.CourseID, edit.GroupID.String)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate group")
		}
		if !ok {
			return appErrors.ErrInvalidOverrideSubject
		}
		return nil
	}
	if blank(edit.UserID) || !blank(edit.GroupID) {
		return appErrors.ErrInvalidOverrideSubject
	}
	edit.GroupID = null.String{}
	ok, err := s.directory.UserExists(ctx, edit.UserID.String)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate user")
	}
	if !ok {
		return appErrors.ErrInvalidOverrideSubject
	}
	return nil
}

// deleteOverride removes the subject's calendar events, then the row, then records the event.
func (s *OverrideService) deleteOverride(ctx context.Context, assignment *models.Assignment, override *models.Override) error {
	if err := s.events.DeleteForSubject(ctx, assignment.ID, override.UserID, override.GroupID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete override events")
	}
	if err := s.overrides.Delete(ctx, override.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete override")
	}
	return s.audit.Trigger(ctx, overrideEvent(override, assignment, "deleted"))
}

func (s *OverrideService) placeNewGroupOverride(ctx context.Context, assignmentID string, override *models.Override) error {
	groupCount, err := s.overrides.CountGroup(ctx, assignmentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count group overrides")
	}
	allCount, err := s.overrides.CountAll(ctx, assignmentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count overrides")
	}
	sortOrder := groupCount
	if groupCount == 0 && allCount > 0 {
		sortOrder = 1
	}
	if err := s.overrides.UpdateSortOrder(ctx, override.ID, sortOrder); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to place group override")
	}
	override.SortOrder = null.IntFrom(sortOrder)
	return s.resequence(ctx, assignmentID, override)
}

// resequence rewrites group sort orders as 1..n by (sort_order, id). When track is set its
// SortOrder is updated to the final position.
func (s *OverrideService) resequence(ctx context.Context, assignmentID string, track *models.Override) error {
	groups, err := s.overrides.List(ctx, models.OverrideFilter{AssignmentID: assignmentID, GroupsOnly: true})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list group overrides")
	}
	for i, group := range groups {
		position := i + 1
		if track != nil && group.ID == track.ID {
			track.SortOrder = null.IntFrom(position)
		}
		if group.SortOrder.Valid && group.SortOrder.Int == position {
			continue
		}
		if err := s.overrides.UpdateSortOrder(ctx, group.ID, position); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reorder group overrides")
		}
	}
	return nil
}

func (s *OverrideService) afterWrite(ctx context.Context, assignment *models.Assignment) error {
	if err := s.calendar.RefreshAssignmentEvents(ctx, assignment); err != nil {
		return err
	}
	if err := s.cache.InvalidateAssignment(ctx, assignment.ID); err != nil {
		s.logger.Warn("override cache invalidation failed", zap.String("assignment_id", assignment.ID), zap.Error(err))
	}
	return nil
}

func validateDates(effective models.Schedule) error {
	allow, due, cutoff := effective.AllowSubmissionsFromDate, effective.DueDate, effective.CutoffDate
	if allow.Valid && due.Valid && due.Time.Before(allow.Time) {
		return appErrors.Clone(appErrors.ErrValidation, "due date must not be before the allow submissions from date")
	}
	if due.Valid && cutoff.Valid && cutoff.Time.Before(due.Time) {
		return appErrors.Clone(appErrors.ErrValidation, "cut-off date must not be before the due date")
	}
	if allow.Valid && cutoff.Valid && cutoff.Time.Before(allow.Time) {
		return appErrors.Clone(appErrors.ErrValidation, "cut-off date must not be before the allow submissions from date")
	}
	return nil
}

func sameIDSet(overrides []models.Override, ids []string) bool {
	if len(overrides) != len(ids) {
		return false
	}
	want := make(map[string]struct{}, len(overrides))
	for _, o := range overrides {
		want[o.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := want[id]; !ok {
			return false
		}
		delete(want, id)
	}
	return len(want) == 0
}

func blank(s null.String) bool {
	return !s.Valid || s.String == ""
}
