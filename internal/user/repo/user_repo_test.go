package repo

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/neuroflow/service-core/internal/facematch"
	"github.com/ovaphlow/neuroflow/service-core/internal/user/entity"
	"github.com/ovaphlow/neuroflow/service-core/pkg/database"
)

func newMockRepo(t *testing.T) (*UserRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mk, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewUserRepo(sqlx.NewDb(db, "postgres")), mk
}

func TestListFaceCandidates_EnrollmentOrder(t *testing.T) {
	r, mk := newMockRepo(t)
	mk.ExpectQuery(`WHERE face_descriptor IS NOT NULL AND status <> 'disabled'\s+ORDER BY created_at, id$`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "face_descriptor"}).
			AddRow("first", "{0.1,0.2}").
			AddRow("second", "{0.3,0.4}").
			AddRow("third", "{0.5,0.6}"))

	got, err := r.ListFaceCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, facematch.Descriptor{0.3, 0.4}, got[1].Descriptor)
	assert.NoError(t, mk.ExpectationsWereMet())
}

func TestListFaceCandidates_MalformedRowsDoNotAbort(t *testing.T) {
	r, mk := newMockRepo(t)
	mk.ExpectQuery(`SELECT id, face_descriptor FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "face_descriptor"}).
			AddRow("null-elem", "{0.1,NULL}").
			AddRow("empty", "{}").
			AddRow("garbled", "{0.1,abc}").
			AddRow("good", "{0.1,0.2}"))

	got, err := r.ListFaceCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Nil(t, got[0].Descriptor)
	assert.Nil(t, got[1].Descriptor)
	assert.Nil(t, got[2].Descriptor)
	assert.Equal(t, facematch.Descriptor{0.1, 0.2}, got[3].Descriptor)

	m, err := facematch.NewMatcher(facematch.Config{Threshold: 0.5, Dimensions: 2})
	require.NoError(t, err)
	res, err := m.Match(facematch.Descriptor{0.1, 0.2}, got)
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, "good", res.ID)
	assert.Equal(t, 1, res.Compared)
}

func TestDecodeDescriptor(t *testing.T) {
	assert.Nil(t, decodeDescriptor(nil))
	assert.Nil(t, decodeDescriptor([]byte("not an array")))
	assert.Nil(t, decodeDescriptor([]byte("{{1,2},{3,4}}")))
	assert.Equal(t, facematch.Descriptor{-1.5, 0, 2e-3}, decodeDescriptor([]byte("{-1.5,0,2e-3}")))
}

func TestCreate_ReturnsTimestamps(t *testing.T) {
	r, mk := newMockRepo(t)
	created := time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)
	mk.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(created, created))

	u := &entity.User{ID: "1", Username: "sam", Email: "sam@b.co", FaceDescriptor: []float64{0.1, 0.2},
		ADHDSubtype: "combined", Preferences: entity.DefaultPreferences(), Status: entity.StatusActive}
	require.NoError(t, r.Create(context.Background(), u))
	assert.Equal(t, created, u.CreatedAt)
	assert.NoError(t, mk.ExpectationsWereMet())
}

func TestCreate_UniqueViolation(t *testing.T) {
	r, mk := newMockRepo(t)
	mk.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	err := r.Create(context.Background(), &entity.User{ID: "1", Username: "sam", Email: "sam@b.co",
		Preferences: entity.DefaultPreferences(), Status: entity.StatusActive})
	require.Error(t, err)
	constraint, ok := database.UniqueViolation(err)
	assert.True(t, ok)
	assert.Equal(t, "users_email_key", constraint)
}

func TestEnsureTable_GuardsDescriptors(t *testing.T) {
	r, mk := newMockRepo(t)
	mk.ExpectExec(`CONSTRAINT users_face_descriptor_check CHECK \(\s+array_position\(face_descriptor, NULL\) IS NULL AND cardinality\(face_descriptor\) > 0`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, r.EnsureTable(context.Background()))
	assert.NoError(t, mk.ExpectationsWereMet())
}
