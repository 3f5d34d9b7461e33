package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/noah-isme/assign-override-api/internal/models"
	appErrors "github.com/noah-isme/assign-override-api/pkg/errors"
)

type memEventLog struct {
	events []models.DomainEvent
	err    error
}

func (m *memEventLog) Create(ctx context.Context, event *models.DomainEvent) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, *event)
	return nil
}

func TestEventServiceTriggerFillsStandardFields(t *testing.T) {
	store := &memEventLog{}
	svc := NewEventService(store, nil)
	ctx := WithActor(context.Background(), "teacher-1")

	err := svc.Trigger(ctx, models.DomainEvent{
		Name:      models.EventGroupOverrideDeleted,
		ContextID: "ctx-1",
		ObjectID:  "ov-1",
		Other:     models.EventOther{AssignID: "asg", GroupID: "g1"},
	})
	require.NoError(t, err)
	require.Len(t, store.events, 1)

	recorded := store.events[0]
	assert.Equal(t, "d", recorded.CRUD)
	assert.Equal(t, "other", recorded.EduLevel)
	assert.Equal(t, "assign_overrides", recorded.ObjectTable)
	assert.Equal(t, null.StringFrom("teacher-1"), recorded.ActorID)
}

func TestEventServiceTriggerValidation(t *testing.T) {
	store := &memEventLog{}
	svc := NewEventService(store, nil)

	cases := map[string]models.DomainEvent{
		"missing assign id": {Name: models.EventUserOverrideCreated, ContextID: "ctx", RelatedUserID: null.StringFrom("u1")},
		"group without id":  {Name: models.EventGroupOverrideCreated, ContextID: "ctx", Other: models.EventOther{AssignID: "asg"}},
		"user without user": {Name: models.EventUserOverrideUpdated, ContextID: "ctx", Other: models.EventOther{AssignID: "asg"}},
		"missing context":   {Name: models.EventUserOverrideUpdated, Other: models.EventOther{AssignID: "asg"}, RelatedUserID: null.StringFrom("u1")},
	}
	for name, event := range cases {
		err := svc.Trigger(context.Background(), event)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, appErrors.ErrValidation), name)
	}
	assert.Empty(t, store.events)
}

func TestEventServiceTriggerStoreFailure(t *testing.T) {
	svc := NewEventService(&memEventLog{err: errors.New("db down")}, nil)

	err := svc.Trigger(context.Background(), models.DomainEvent{
		Name:          models.EventUserOverrideCreated,
		ContextID:     "ctx",
		RelatedUserID: null.StringFrom("u1"),
		Other:         models.EventOther{AssignID: "asg"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}
