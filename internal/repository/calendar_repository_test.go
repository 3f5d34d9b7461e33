package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"
)

func TestCalendarRepositoryDeleteScopes(t *testing.T) {
	db, mock, cleanup := newOverrideRepoMock(t)
	defer cleanup()
	repo := NewCalendarRepository(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM calendar_events WHERE module_name = $1 AND instance_id = $2")).
		WithArgs("assign", "asg-1").
		WillReturnResult(sqlmock.NewResult(0, 4))
	require.NoError(t, repo.DeleteForInstance(ctx, "asg-1"))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM calendar_events WHERE module_name = $1 AND instance_id = $2 AND user_id = ANY($3)")).
		WithArgs("assign", "asg-1", pq.Array([]string{"user-a"})).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.DeleteForInstanceUsers(ctx, "asg-1", []string{"user-a"}))

	// no users, no statement
	require.NoError(t, repo.DeleteForInstanceUsers(ctx, "asg-1", nil))

	mock.ExpectExec(regexp.QuoteMeta("AND user_id IS NOT DISTINCT FROM $3 AND group_id IS NOT DISTINCT FROM $4")).
		WithArgs("assign", "asg-1", nil, "grp-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.DeleteForSubject(ctx, "asg-1", null.String{}, null.StringFrom("grp-1")))

	require.NoError(t, mock.ExpectationsWereMet())
}
