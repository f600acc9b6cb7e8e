package repo

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var routineCols = []string{"id", "user_id", "name", "description", "frequency", "time_of_day", "tasks",
	"success_rate", "completion_count", "last_completed", "is_active", "created_at", "updated_at"}

func newMockRepo(t *testing.T) (*RoutineRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mk, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRoutineRepo(sqlx.NewDb(db, "postgres")), mk
}

func TestListByUser_EmptyEncodesAsArray(t *testing.T) {
	r, mk := newMockRepo(t)
	mk.ExpectQuery(`FROM routines WHERE user_id=\$1 ORDER BY created_at DESC, id DESC`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(routineCols))

	got, err := r.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	b, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(b))
	assert.NoError(t, mk.ExpectationsWereMet())
}

func TestListByUser_ScansTasks(t *testing.T) {
	r, mk := newMockRepo(t)
	ts := time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)
	mk.ExpectQuery(`FROM routines WHERE user_id=\$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(routineCols).AddRow(
			"r1", "u1", "Wind down", "", "daily", "night",
			[]byte(`[{"task_id":"t1","title":"Tea","order":1,"is_completed":false}]`),
			50, 2, nil, true, ts, ts))

	got, err := r.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0].Tasks, 1)
	assert.Equal(t, "Tea", got[0].Tasks[0].Title)
	assert.Nil(t, got[0].LastCompleted)
}
