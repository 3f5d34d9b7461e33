package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGradingRepositoryHasActiveController(t *testing.T) {
	db, mock, cleanup := newOverrideRepoMock(t)
	defer cleanup()
	repo := NewGradingRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM grading_areas ga")).
		WithArgs("ctx-1", GradingArea).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	active, err := repo.HasActiveController(context.Background(), "ctx-1")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestGradingRepositoryDeleteInstanceData(t *testing.T) {
	db, mock, cleanup := newOverrideRepoMock(t)
	defer cleanup()
	repo := NewGradingRepository(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM grading_instances WHERE context_id = $1 AND item_id = $2")).
		WithArgs("ctx-1", "grade-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.DeleteInstanceData(ctx, "ctx-1", "grade-1"))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM grading_instances WHERE context_id = $1")).
		WithArgs("ctx-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	require.NoError(t, repo.DeleteInstanceData(ctx, "ctx-1", ""))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM grading_instances WHERE context_id = $1 AND item_id = ANY($2)")).
		WithArgs("ctx-1", pq.Array([]string{"grade-1", "grade-2"})).
		WillReturnResult(sqlmock.NewResult(0, 2))
	require.NoError(t, repo.DeleteDataForInstances(ctx, "ctx-1", []string{"grade-1", "grade-2"}))

	require.Error(t, repo.DeleteDataForInstances(ctx, "ctx-1", nil))
	require.NoError(t, mock.ExpectationsWereMet())
}
