package subplugin

import (
	"context"
	"sort"
)

// Registry holds the installed sub-plugins in registration order.
type Registry struct {
	submissions []SubmissionPlugin
	feedback    []FeedbackPlugin
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// RegisterSubmission installs a submission plugin.
func (r *Registry) RegisterSubmission(p SubmissionPlugin) {
	r.submissions = append(r.submissions, p)
}

// RegisterFeedback installs a feedback plugin.
func (r *Registry) RegisterFeedback(p FeedbackPlugin) {
	r.feedback = append(r.feedback, p)
}

// Submissions returns the submission plugins.
func (r *Registry) Submissions() []SubmissionPlugin {
	if r == nil {
		return nil
	}
	return r.submissions
}

// Feedback returns the feedback plugins.
func (r *Registry) Feedback() []FeedbackPlugin {
	if r == nil {
		return nil
	}
	return r.feedback
}

// EachSubmission calls fn for every submission plugin, stopping at the first error.
// The plugin's error is returned unmodified.
func (r *Registry) EachSubmission(fn func(SubmissionPlugin) error) error {
	for _, p := range r.Submissions() {
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

// EachFeedback calls fn for every feedback plugin, stopping at the first error.
func (r *Registry) EachFeedback(fn func(FeedbackPlugin) error) error {
	for _, p := range r.Feedback() {
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) all() []Plugin {
	plugins := make([]Plugin, 0, len(r.Submissions())+len(r.Feedback()))
	for _, p := range r.Feedback() {
		plugins = append(plugins, p)
	}
	for _, p := range r.Submissions() {
		plugins = append(plugins, p)
	}
	return plugins
}

// ContextIDsForUser collects the contexts reported by plugins implementing ContextLocator.
func (r *Registry) ContextIDsForUser(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	for _, p := range r.all() {
		locator, ok := p.(ContextLocator)
		if !ok {
			continue
		}
		found, err := locator.ContextIDsForUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, found...)
	}
	return ids, nil
}

// UserIDsInContext collects the users reported by plugins implementing ContextLocator.
func (r *Registry) UserIDsInContext(ctx context.Context, req *RequestData) ([]string, error) {
	var ids []string
	for _, p := range r.all() {
		locator, ok := p.(ContextLocator)
		if !ok {
			continue
		}
		found, err := locator.UserIDsInContext(ctx, req)
		if err != nil {
			return nil, err
		}
		ids = append(ids, found...)
	}
	return ids, nil
}

// StudentUserIDs collects students reported by plugins implementing StudentLocator.
func (r *Registry) StudentUserIDs(ctx context.Context, assignmentID, teacherID string) ([]string, error) {
	var ids []string
	for _, p := range r.all() {
		locator, ok := p.(StudentLocator)
		if !ok {
			continue
		}
		found, err := locator.StudentUserIDs(ctx, assignmentID, teacherID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, found...)
	}
	return ids, nil
}

// Unique returns the sorted distinct non-empty values of ids.
func Unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
