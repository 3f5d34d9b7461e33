package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/noah-isme/assign-override-api/internal/models"
	appErrors "github.com/noah-isme/assign-override-api/pkg/errors"
)

type memAssignments struct {
	items map[string]*models.Assignment
}

func (m *memAssignments) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	a, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	assignment := *a
	return &assignment, nil
}

type memOverrideStore struct {
	rows map[string]models.Override
	seq  int
	log  *[]string
}

func newMemOverrideStore(log *[]string, rows ...models.Override) *memOverrideStore {
	store := &memOverrideStore{rows: make(map[string]models.Override), log: log}
	for _, row := range rows {
		store.rows[row.ID] = row
	}
	return store
}

func (m *memOverrideStore) record(entry string) {
	*m.log = append(*m.log, entry)
}

func (m *memOverrideStore) FindByID(ctx context.Context, id string) (*models.Override, error) {
	row, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &row, nil
}

func (m *memOverrideStore) FindBySubject(ctx context.Context, assignmentID string, userID, groupID null.String) (*models.Override, error) {
	for _, row := range m.rows {
		if row.AssignmentID == assignmentID && row.UserID == userID && row.GroupID == groupID {
			found := row
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memOverrideStore) List(ctx context.Context, filter models.OverrideFilter) ([]models.Override, error) {
	var result []models.Override
	for _, row := range m.rows {
		if row.AssignmentID != filter.AssignmentID {
			continue
		}
		if filter.GroupsOnly && !row.IsGroup() {
			continue
		}
		if len(filter.GroupIDs) > 0 && !containsString(filter.GroupIDs, row.GroupID.String) {
			continue
		}
		result = append(result, row)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.IsGroup() != b.IsGroup() {
			return a.IsGroup()
		}
		if a.SortOrder.Valid != b.SortOrder.Valid {
			return a.SortOrder.Valid
		}
		if a.SortOrder.Int != b.SortOrder.Int {
			return a.SortOrder.Int < b.SortOrder.Int
		}
		return a.ID < b.ID
	})
	return result, nil
}

func (m *memOverrideStore) Create(ctx context.Context, override *models.Override) error {
	m.seq++
	override.ID = fmt.Sprintf("new-%d", m.seq)
	m.rows[override.ID] = *override
	m.record("create:" + override.ID)
	return nil
}

func (m *memOverrideStore) Update(ctx context.Context, override *models.Override) error {
	m.rows[override.ID] = *override
	m.record("update:" + override.ID)
	return nil
}

func (m *memOverrideStore) UpdateSortOrder(ctx context.Context, id string, sortOrder int) error {
	row := m.rows[id]
	row.SortOrder = null.IntFrom(sortOrder)
	m.rows[id] = row
	return nil
}

func (m *memOverrideStore) CountGroup(ctx context.Context, assignmentID string) (int, error) {
	count := 0
	for _, row := range m.rows {
		if row.AssignmentID == assignmentID && !row.UserID.Valid {
			count++
		}
	}
	return count, nil
}

func (m *memOverrideStore) CountAll(ctx context.Context, assignmentID string) (int, error) {
	count := 0
	for _, row := range m.rows {
		if row.AssignmentID == assignmentID {
			count++
		}
	}
	return count, nil
}

func (m *memOverrideStore) Delete(ctx context.Context, id string) error {
	delete(m.rows, id)
	m.record("delete:" + id)
	return nil
}

type memDirectory struct {
	users   map[string]bool
	groups  map[string]bool
	members map[string][]string
}

func (m *memDirectory) UserExists(ctx context.Context, userID string) (bool, error) {
	return m.users[userID], nil
}

func (m *memDirectory) GroupExists(ctx context.Context, courseID, groupID string) (bool, error) {
	return m.groups[groupID], nil
}

func (m *memDirectory) GroupIDsForUser(ctx context.Context, courseID, userID string) ([]string, error) {
	return m.members[userID], nil
}

type countingCalendar struct {
	refreshed int
}

func (c *countingCalendar) RefreshAssignmentEvents(ctx context.Context, assignment *models.Assignment) error {
	c.refreshed++
	return nil
}

type loggingSubjectEvents struct {
	log *[]string
}

func (l *loggingSubjectEvents) DeleteForSubject(ctx context.Context, instanceID string, userID, groupID null.String) error {
	subject := userID.String
	if groupID.Valid {
		subject = "group:" + groupID.String
	}
	*l.log = append(*l.log, "events:"+subject)
	return nil
}

type recordingTrigger struct {
	events []models.DomainEvent
}

func (r *recordingTrigger) Trigger(ctx context.Context, event models.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recordingTrigger) names() []string {
	names := make([]string, 0, len(r.events))
	for _, e := range r.events {
		names = append(names, e.Name)
	}
	return names
}

func containsString(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}

type overrideFixture struct {
	svc      *OverrideService
	store    *memOverrideStore
	calendar *countingCalendar
	trigger  *recordingTrigger
	log      *[]string
}

func newOverrideFixture(rows ...models.Override) *overrideFixture {
	log := &[]string{}
	store := newMemOverrideStore(log, rows...)
	calendar := &countingCalendar{}
	trigger := &recordingTrigger{}
	svc := NewOverrideService(OverrideServiceDeps{
		Assignments: &memAssignments{items: map[string]*models.Assignment{
			"asg": {ID: "asg", CourseID: "course", ContextID: "ctx-asg", Name: "Essay", DueDate: at(100)},
		}},
		Overrides: store,
		Directory: &memDirectory{
			users:   map[string]bool{"u1": true, "u2": true, "u3": true},
			groups:  map[string]bool{"g1": true, "g2": true, "g3": true},
			members: map[string][]string{"u3": {"g1", "g2"}},
		},
		Calendar: calendar,
		Events:   &loggingSubjectEvents{log: log},
		Audit:    trigger,
	}, nil, nil)
	return &overrideFixture{svc: svc, store: store, calendar: calendar, trigger: trigger, log: log}
}

func userOverride(id, userID string, s models.Schedule) models.Override {
	o := models.Override{ID: id, AssignmentID: "asg", UserID: null.StringFrom(userID)}
	o.SetSchedule(s)
	return o
}

func groupOverride(id, groupID string, sortOrder int, s models.Schedule) models.Override {
	o := models.Override{ID: id, AssignmentID: "asg", GroupID: null.StringFrom(groupID), SortOrder: null.IntFrom(sortOrder)}
	o.SetSchedule(s)
	return o
}

func TestOverrideServiceRetargetMergesReplacedOverride(t *testing.T) {
	f := newOverrideFixture(
		userOverride("A", "u1", models.Schedule{DueDate: at(200)}),
		userOverride("B", "u2", models.Schedule{CutoffDate: at(300)}),
	)

	saved, err := f.svc.Save(context.Background(), models.OverrideEdit{
		OverrideID: "A",
		UserID:     null.StringFrom("u2"),
		Schedule:   models.Schedule{DueDate: at(200)},
	})
	require.NoError(t, err)

	assert.Equal(t, "A", saved.ID)
	assert.Equal(t, "u2", saved.UserID.String)
	assert.Equal(t, at(200), saved.DueDate)
	assert.Equal(t, at(300), saved.CutoffDate)

	require.Len(t, f.store.rows, 1)
	assert.Equal(t, "u2", f.store.rows["A"].UserID.String)
	assert.Equal(t, []string{"events:u2", "delete:B", "update:A"}, *f.log)
	assert.Equal(t, []string{models.EventUserOverrideDeleted, models.EventUserOverrideUpdated}, f.trigger.names())
	assert.Equal(t, 1, f.calendar.refreshed)
}

func TestOverrideServiceRetargetFillsBlankDatesFromEditedOverride(t *testing.T) {
	f := newOverrideFixture(
		userOverride("A", "u1", models.Schedule{DueDate: at(200)}),
		userOverride("B", "u2", models.Schedule{CutoffDate: at(300)}),
	)

	saved, err := f.svc.Save(context.Background(), models.OverrideEdit{
		OverrideID: "A",
		UserID:     null.StringFrom("u2"),
	})
	require.NoError(t, err)

	assert.Equal(t, at(200), saved.DueDate)
	assert.Equal(t, at(300), saved.CutoffDate)
	require.Len(t, f.store.rows, 1)
	stored := f.store.rows["A"]
	assert.Equal(t, "u2", stored.UserID.String)
	assert.Equal(t, at(200), stored.DueDate)
	assert.Equal(t, at(300), stored.CutoffDate)
}

func TestOverrideServiceCreateNormalizesDefaults(t *testing.T) {
	f := newOverrideFixture()

	saved, err := f.svc.Save(context.Background(), models.OverrideEdit{
		AssignmentID: "asg",
		UserID:       null.StringFrom("u1"),
		Schedule:     models.Schedule{DueDate: at(100), CutoffDate: at(300)},
	})
	require.NoError(t, err)

	stored := f.store.rows[saved.ID]
	assert.False(t, stored.DueDate.Valid)
	assert.Equal(t, at(300), stored.CutoffDate)
	assert.False(t, stored.SortOrder.Valid)
	assert.Equal(t, []string{models.EventUserOverrideCreated}, f.trigger.names())
}

func TestOverrideServiceRejectsUnchangedSchedule(t *testing.T) {
	f := newOverrideFixture()

	_, err := f.svc.Save(context.Background(), models.OverrideEdit{
		AssignmentID: "asg",
		UserID:       null.StringFrom("u1"),
		Schedule:     models.Schedule{DueDate: at(100)},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, f.store.rows)
	assert.Empty(t, *f.log)
}

func TestOverrideServiceInvalidSubjectWritesNothing(t *testing.T) {
	f := newOverrideFixture(userOverride("A", "u1", models.Schedule{DueDate: at(200)}))

	cases := []models.OverrideEdit{
		{AssignmentID: "asg", UserID: null.StringFrom("ghost"), Schedule: models.Schedule{DueDate: at(150)}},
		{AssignmentID: "asg", UserID: null.StringFrom("u1"), GroupID: null.StringFrom("g1"), Schedule: models.Schedule{DueDate: at(150)}},
		{AssignmentID: "asg", GroupID: null.StringFrom("unknown"), Schedule: models.Schedule{DueDate: at(150)}},
		{OverrideID: "A", GroupID: null.StringFrom("g1"), Schedule: models.Schedule{DueDate: at(150)}},
	}
	for i, edit := range cases {
		_, err := f.svc.Save(context.Background(), edit)
		require.Error(t, err, "case %d", i)
		assert.True(t, errors.Is(err, appErrors.ErrInvalidOverrideSubject), "case %d", i)
	}
	assert.Len(t, f.store.rows, 1)
	assert.Empty(t, *f.log)
	assert.Empty(t, f.trigger.events)
	assert.Zero(t, f.calendar.refreshed)
}

func TestOverrideServiceRejectsDueBeforeAllow(t *testing.T) {
	f := newOverrideFixture()

	_, err := f.svc.Save(context.Background(), models.OverrideEdit{
		AssignmentID: "asg",
		UserID:       null.StringFrom("u1"),
		Schedule:     models.Schedule{AllowSubmissionsFromDate: at(150), DueDate: at(120)},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, f.store.rows)
}

func TestOverrideServiceGroupSortOrder(t *testing.T) {
	f := newOverrideFixture(userOverride("A", "u1", models.Schedule{DueDate: at(200)}))
	ctx := context.Background()

	first, err := f.svc.Save(ctx, models.OverrideEdit{AssignmentID: "asg", GroupID: null.StringFrom("g1"), Schedule: models.Schedule{DueDate: at(110)}})
	require.NoError(t, err)
	second, err := f.svc.Save(ctx, models.OverrideEdit{AssignmentID: "asg", GroupID: null.StringFrom("g2"), Schedule: models.Schedule{DueDate: at(120)}})
	require.NoError(t, err)

	assert.Equal(t, null.IntFrom(1), first.SortOrder)
	assert.Equal(t, null.IntFrom(2), second.SortOrder)
	assert.Equal(t, null.IntFrom(2), f.store.rows[second.ID].SortOrder)

	require.NoError(t, f.svc.Delete(ctx, first.ID))
	assert.Equal(t, null.IntFrom(1), f.store.rows[second.ID].SortOrder)
	assert.Equal(t, models.EventGroupOverrideDeleted, f.trigger.names()[len(f.trigger.events)-1])
}

func TestOverrideServiceReplacedGroupOverrideMovesLast(t *testing.T) {
	for _, otherID := range []string{"a-g2", "z-g2"} {
		t.Run(otherID, func(t *testing.T) {
			f := newOverrideFixture(
				groupOverride("g1-old", "g1", 1, models.Schedule{DueDate: at(110)}),
				groupOverride(otherID, "g2", 2, models.Schedule{DueDate: at(120)}),
			)

			saved, err := f.svc.Save(context.Background(), models.OverrideEdit{
				AssignmentID: "asg",
				GroupID:      null.StringFrom("g1"),
				Schedule:     models.Schedule{DueDate: at(130)},
			})
			require.NoError(t, err)

			require.Len(t, f.store.rows, 2)
			assert.NotContains(t, f.store.rows, "g1-old")
			assert.Equal(t, null.IntFrom(1), f.store.rows[otherID].SortOrder)
			assert.Equal(t, null.IntFrom(2), f.store.rows[saved.ID].SortOrder)
			assert.Equal(t, null.IntFrom(2), saved.SortOrder)
		})
	}
}

func TestOverrideServiceEditKeepsStoredDatesUnlessReset(t *testing.T) {
	f := newOverrideFixture(userOverride("A", "u1", models.Schedule{DueDate: at(200), CutoffDate: at(300)}))
	ctx := context.Background()

	saved, err := f.svc.Save(ctx, models.OverrideEdit{OverrideID: "A", Schedule: models.Schedule{DueDate: at(250)}})
	require.NoError(t, err)
	assert.Equal(t, "u1", saved.UserID.String)
	assert.Equal(t, at(250), saved.DueDate)
	assert.Equal(t, at(300), saved.CutoffDate)

	saved, err = f.svc.Save(ctx, models.OverrideEdit{OverrideID: "A", Reset: true, Schedule: models.Schedule{DueDate: at(260)}})
	require.NoError(t, err)
	assert.Equal(t, at(260), saved.DueDate)
	assert.False(t, saved.CutoffDate.Valid)
}

func TestOverrideServiceReorder(t *testing.T) {
	f := newOverrideFixture(
		groupOverride("G1", "g1", 1, models.Schedule{DueDate: at(110)}),
		groupOverride("G2", "g2", 2, models.Schedule{DueDate: at(120)}),
	)
	ctx := context.Background()

	_, err := f.svc.Reorder(ctx, "asg", ReorderOverridesRequest{OverrideIDs: []string{"G2"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	list, err := f.svc.Reorder(ctx, "asg", ReorderOverridesRequest{OverrideIDs: []string{"G2", "G1"}})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "G2", list[0].ID)
	assert.Equal(t, null.IntFrom(2), f.store.rows["G1"].SortOrder)
}

func TestOverrideServiceDuplicateRequiresSameKind(t *testing.T) {
	f := newOverrideFixture(userOverride("A", "u1", models.Schedule{DueDate: at(200)}))
	ctx := context.Background()
	group := "g1"
	user := "u2"

	_, err := f.svc.Duplicate(ctx, "A", DuplicateOverrideRequest{GroupID: &group})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidOverrideSubject))

	copied, err := f.svc.Duplicate(ctx, "A", DuplicateOverrideRequest{UserID: &user})
	require.NoError(t, err)
	assert.Equal(t, "u2", copied.UserID.String)
	assert.Equal(t, at(200), copied.DueDate)
	assert.Len(t, f.store.rows, 2)
}

func TestOverrideServiceEffectiveForUser(t *testing.T) {
	f := newOverrideFixture(
		groupOverride("G1", "g1", 1, models.Schedule{DueDate: at(150)}),
		groupOverride("G2", "g2", 2, models.Schedule{DueDate: at(160), CutoffDate: at(400)}),
	)
	ctx := context.Background()

	effective, err := f.svc.EffectiveForUser(ctx, "asg", "u3")
	require.NoError(t, err)
	assert.Equal(t, at(150), effective.Effective.DueDate)
	assert.Equal(t, at(400), effective.Effective.CutoffDate)
	assert.Equal(t, "group:g1", effective.Sources["due_date"])
	assert.Equal(t, "group:g2", effective.Sources["cutoff_date"])
	assert.Equal(t, models.SourceAssignment, effective.Sources["allow_submissions_from_date"])

	f.store.rows["U"] = userOverride("U", "u3", models.Schedule{DueDate: at(170)})
	effective, err = f.svc.EffectiveForUser(ctx, "asg", "u3")
	require.NoError(t, err)
	assert.Equal(t, at(170), effective.Effective.DueDate)
	assert.Equal(t, models.SourceUser, effective.Sources["due_date"])
	assert.Equal(t, at(400), effective.Effective.CutoffDate)

	plain, err := f.svc.EffectiveForUser(ctx, "asg", "u1")
	require.NoError(t, err)
	assert.False(t, plain.HasOverride())
	assert.Equal(t, at(100), plain.Effective.DueDate)
}

func TestOverrideServiceMissingAssignment(t *testing.T) {
	f := newOverrideFixture()

	_, err := f.svc.List(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
