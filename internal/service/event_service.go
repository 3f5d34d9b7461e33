package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/assign-override-api/internal/models"
	appErrors "github.com/noah-isme/assign-override-api/pkg/errors"
)

type eventLogStore interface {
	Create(ctx context.Context, event *models.DomainEvent) error
}

type actorKey struct{}

// WithActor records the acting user on the context for audit events.
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorKey{}, userID)
}

func actorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}

// EventService validates and records domain events.
type EventService struct {
	store  eventLogStore
	logger *zap.Logger
}

// NewEventService constructs the service.
func NewEventService(store eventLogStore, logger *zap.Logger) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{store: store, logger: logger}
}

// Trigger validates an event, fills its standard fields and persists it.
func (s *EventService) Trigger(ctx context.Context, event models.DomainEvent) error {
	if err := validateEvent(event); err != nil {
		return err
	}
	event.CRUD = crudFor(event.Name)
	event.EduLevel = "other"
	if event.ObjectTable == "" {
		event.ObjectTable = "assign_overrides"
	}
	if actor := actorFromContext(ctx); actor != "" && !event.ActorID.Valid {
		event.ActorID.SetValid(actor)
	}
	if err := s.store.Create(ctx, &event); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record event")
	}
	s.logger.Info("domain event",
		zap.String("event", event.Name),
		zap.String("context_id", event.ContextID),
		zap.String("object_id", event.ObjectID),
		zap.String("assign_id", event.Other.AssignID),
	)
	return nil
}

func validateEvent(event models.DomainEvent) error {
	if event.Name == "" || event.ContextID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "event name and context are required")
	}
	if event.Other.AssignID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "the 'assign_id' value must be set in other")
	}
	if event.IsGroupEvent() {
		if event.Other.GroupID == "" {
			return appErrors.Clone(appErrors.ErrValidation, "the 'group_id' value must be set in other")
		}
		return nil
	}
	if !event.RelatedUserID.Valid || event.RelatedUserID.String == "" {
		return appErrors.Clone(appErrors.ErrValidation, "the 'related_user_id' must be set")
	}
	return nil
}

func crudFor(name string) string {
	switch {
	case strings.HasSuffix(name, "_created"):
		return "c"
	case strings.HasSuffix(name, "_deleted"):
		return "d"
	default:
		return "u"
	}
}

func overrideEvent(override *models.Override, assignment *models.Assignment, action string) models.DomainEvent {
	event := models.DomainEvent{
		ContextID: assignment.ContextID,
		ObjectID:  override.ID,
		Other:     models.EventOther{AssignID: assignment.ID},
	}
	if override.IsGroup() {
		event.Name = "group_override_" + action
		event.Other.GroupID = override.GroupID.String
	} else {
		event.Name = "user_override_" + action
		event.RelatedUserID = override.UserID
	}
	return event
}
