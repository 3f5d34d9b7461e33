package service

import (
	"context"
	"fmt"

	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"

	"github.com/noah-isme/assign-override-api/internal/models"
	appErrors "github.com/noah-isme/assign-override-api/pkg/errors"
)

type calendarEventStore interface {
	Create(ctx context.Context, event *models.CalendarEvent) error
	DeleteForInstance(ctx context.Context, instanceID string) error
}

type overrideLister interface {
	List(ctx context.Context, filter models.OverrideFilter) ([]models.Override, error)
}

// CalendarService publishes assignment due dates to the calendar.
type CalendarService struct {
	events    calendarEventStore
	overrides overrideLister
	logger    *zap.Logger
}

// NewCalendarService constructs the service.
func NewCalendarService(events calendarEventStore, overrides overrideLister, logger *zap.Logger) *CalendarService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarService{events: events, overrides: overrides, logger: logger}
}

// RefreshAssignmentEvents rebuilds the due date events of an assignment and its overrides.
func (s *CalendarService) RefreshAssignmentEvents(ctx context.Context, assignment *models.Assignment) error {
	if err := s.events.DeleteForInstance(ctx, assignment.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear calendar events")
	}

	if assignment.DueDate.Valid {
		event := &models.CalendarEvent{
			InstanceID: assignment.ID,
			CourseID:   assignment.CourseID,
			EventType:  models.CalendarEventDue,
			Name:       fmt.Sprintf("%s is due", assignment.Name),
			TimeStart:  assignment.DueDate.Time,
		}
		if err := s.events.Create(ctx, event); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create calendar event")
		}
	}

	overrides, err := s.overrides.List(ctx, models.OverrideFilter{AssignmentID: assignment.ID})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list overrides")
	}
	created := 0
	for i := range overrides {
		override := overrides[i]
		if !override.DueDate.Valid {
			continue
		}
		event := &models.CalendarEvent{
			InstanceID: assignment.ID,
			CourseID:   assignment.CourseID,
			EventType:  models.CalendarEventDue,
			TimeStart:  override.DueDate.Time,
		}
		if override.IsGroup() {
			event.GroupID = override.GroupID
			event.Priority = override.SortOrder
			event.Name = fmt.Sprintf("%s (group) is due", assignment.Name)
		} else {
			event.UserID = override.UserID
			event.Priority = null.IntFrom(0)
			event.Name = fmt.Sprintf("%s (user) is due", assignment.Name)
		}
		if err := s.events.Create(ctx, event); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create override calendar event")
		}
		created++
	}

	s.logger.Debug("calendar refreshed", zap.String("assignment_id", assignment.ID), zap.Int("override_events", created))
	return nil
}
