package subplugin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assign-override-api/internal/models"
)

type fakeLoader struct {
	calls       int
	submissions map[string][]string
	grades      map[string][]string
}

func (f *fakeLoader) SubmissionIDsForUsers(_ context.Context, _ string, userIDs []string) ([]string, error) {
	f.calls++
	var ids []string
	for _, u := range userIDs {
		ids = append(ids, f.submissions[u]...)
	}
	return ids, nil
}

func (f *fakeLoader) GradeIDsForUsers(_ context.Context, _ string, userIDs []string) ([]string, error) {
	var ids []string
	for _, u := range userIDs {
		ids = append(ids, f.grades[u]...)
	}
	return ids, nil
}

func TestRequestDataPopulate(t *testing.T) {
	loader := &fakeLoader{
		submissions: map[string][]string{"user-a": {"sub-1"}, "user-b": {"sub-2"}},
		grades:      map[string][]string{"user-a": {"grade-1"}},
	}
	req := NewRequestData(models.Context{ID: "ctx-1", Level: models.ContextLevelModule}, &models.Assignment{ID: "asg-1"}, loader)
	req.SetUserIDs([]string{"user-a", "user-b"})

	require.NoError(t, req.PopulateSubmissionsAndGrades(context.Background()))
	assert.Equal(t, []string{"sub-1", "sub-2"}, req.SubmissionIDs())
	assert.Equal(t, []string{"grade-1"}, req.GradeIDs())
}

func TestRequestDataPopulateEmptyUserSet(t *testing.T) {
	loader := &fakeLoader{
		submissions: map[string][]string{"user-a": {"sub-1"}},
		grades:      map[string][]string{"user-a": {"grade-1"}},
	}
	req := NewRequestData(models.Context{ID: "ctx-1"}, &models.Assignment{ID: "asg-1"}, loader)
	req.SetUserIDs([]string{"user-a"})
	require.NoError(t, req.PopulateSubmissionsAndGrades(context.Background()))
	require.Equal(t, []string{"grade-1"}, req.GradeIDs())

	req.SetUserIDs(nil)
	require.NoError(t, req.PopulateSubmissionsAndGrades(context.Background()))
	assert.Equal(t, 1, loader.calls)
	assert.Empty(t, req.GradeIDs())
	assert.Empty(t, req.SubmissionIDs())
}

type stubSubmissionPlugin struct {
	name  string
	err   error
	calls *[]string
}

func (p stubSubmissionPlugin) Name() string { return p.name }

func (p stubSubmissionPlugin) record(ctx context.Context, req *RequestData) error {
	*p.calls = append(*p.calls, p.name)
	return p.err
}

func (p stubSubmissionPlugin) ExportSubmissionUserData(ctx context.Context, req *RequestData, _ ExportWriter) error {
	return p.record(ctx, req)
}

func (p stubSubmissionPlugin) DeleteSubmissionForContext(ctx context.Context, req *RequestData) error {
	return p.record(ctx, req)
}

func (p stubSubmissionPlugin) DeleteSubmissionForUserID(ctx context.Context, req *RequestData) error {
	return p.record(ctx, req)
}

func (p stubSubmissionPlugin) DeleteSubmissions(ctx context.Context, req *RequestData) error {
	return p.record(ctx, req)
}

func TestRegistryEachSubmissionReturnsPluginError(t *testing.T) {
	sentinel := errors.New("disk full")
	var calls []string
	registry := NewRegistry()
	registry.RegisterSubmission(stubSubmissionPlugin{name: "a", calls: &calls})
	registry.RegisterSubmission(stubSubmissionPlugin{name: "b", err: sentinel, calls: &calls})
	registry.RegisterSubmission(stubSubmissionPlugin{name: "c", calls: &calls})

	req := NewRequestData(models.Context{ID: "ctx-1"}, &models.Assignment{ID: "asg-1"}, nil)
	err := registry.EachSubmission(func(p SubmissionPlugin) error {
		return p.DeleteSubmissionForContext(context.Background(), req)
	})
	require.Same(t, sentinel, err)
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestRegistryEmptyDispatchesNothing(t *testing.T) {
	var registry *Registry
	called := false
	require.NoError(t, registry.EachFeedback(func(FeedbackPlugin) error {
		called = true
		return nil
	}))
	assert.False(t, called)
}

func TestUnique(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Unique([]string{"b", "", "a", "b"}))
}
