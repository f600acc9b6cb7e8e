package routine

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/neuroflow/service-core/internal/auth"
	"github.com/ovaphlow/neuroflow/service-core/internal/routine/entity"
)

type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) Create(ctx context.Context, rt *entity.Routine) error {
	return m.Called(ctx, rt).Error(0)
}

func (m *MockRepo) ListByUser(ctx context.Context, userID string) ([]*entity.Routine, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.Routine), args.Error(1)
}

func (m *MockRepo) Get(ctx context.Context, userID, id string) (*entity.Routine, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Routine), args.Error(1)
}

func (m *MockRepo) Save(ctx context.Context, rt *entity.Routine) error {
	return m.Called(ctx, rt).Error(0)
}

var now = time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)

func newService(repo *MockRepo) *Service {
	svc := NewService(repo)
	svc.now = func() time.Time { return now }
	svc.newID = func() string { return "r1" }
	n := 0
	svc.taskID = func() string {
		n++
		return "t" + string(rune('0'+n))
	}
	return svc
}

func TestSuccessRate(t *testing.T) {
	daysAgo := func(d int) time.Time { return now.AddDate(0, 0, -d) }
	tests := []struct {
		name string
		rt   entity.Routine
		want int
	}{
		{"daily created today once", entity.Routine{Frequency: entity.FrequencyDaily, CreatedAt: now, CompletionCount: 1}, 100},
		{"daily half", entity.Routine{Frequency: entity.FrequencyDaily, CreatedAt: daysAgo(3), CompletionCount: 2}, 50},
		{"daily rounded", entity.Routine{Frequency: entity.FrequencyDaily, CreatedAt: daysAgo(2), CompletionCount: 2}, 67},
		{"daily clamped", entity.Routine{Frequency: entity.FrequencyDaily, CreatedAt: now, CompletionCount: 5}, 100},
		{"daily none", entity.Routine{Frequency: entity.FrequencyDaily, CreatedAt: daysAgo(9)}, 0},
		{"weekly second week", entity.Routine{Frequency: entity.FrequencyWeekly, CreatedAt: daysAgo(7), CompletionCount: 1}, 50},
		{"weekly first week", entity.Routine{Frequency: entity.FrequencyWeekly, CreatedAt: daysAgo(6), CompletionCount: 1}, 100},
		{"custom share of tasks", entity.Routine{Frequency: entity.FrequencyCustom, Tasks: entity.Tasks{
			{IsCompleted: true}, {IsCompleted: false}, {IsCompleted: false},
		}}, 33},
		{"custom without tasks", entity.Routine{Frequency: entity.FrequencyCustom}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := tt.rt
			assert.Equal(t, tt.want, SuccessRate(&rt, now))
		})
	}
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	repo := new(MockRepo)
	svc := newService(repo)

	_, err := svc.Create(ctx, "u1", CreateInput{Name: "Morning", TimeOfDay: "dawn"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Create(ctx, "u1", CreateInput{Name: "Morning", TimeOfDay: entity.Morning, Frequency: "hourly"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Create(ctx, "u1", CreateInput{TimeOfDay: entity.Morning})
	assert.ErrorIs(t, err, ErrInvalidInput)

	repo.On("Create", ctx, mock.Anything).Return(nil)
	rt, err := svc.Create(ctx, "u1", CreateInput{
		Name:      "Morning",
		TimeOfDay: entity.Morning,
		Tasks: entity.Tasks{
			{Title: "Brush teeth", Order: 2},
			{TaskID: "keep", Title: "Meds", Order: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, entity.FrequencyDaily, rt.Frequency)
	assert.True(t, rt.IsActive)
	require.Len(t, rt.Tasks, 2)
	assert.Equal(t, "keep", rt.Tasks[0].TaskID)
	assert.Equal(t, "t1", rt.Tasks[1].TaskID)
}

func TestService_Complete(t *testing.T) {
	ctx := context.Background()
	repo := new(MockRepo)
	svc := newService(repo)

	stored := &entity.Routine{
		ID: "r1", UserID: "u1", Frequency: entity.FrequencyDaily, CreatedAt: now.AddDate(0, 0, -1),
		Tasks: entity.Tasks{{TaskID: "a"}, {TaskID: "b"}},
	}
	repo.On("Get", ctx, "u1", "r1").Return(stored, nil)
	repo.On("Save", ctx, stored).Return(nil)

	rt, err := svc.Complete(ctx, "u1", "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, rt.CompletionCount)
	assert.Equal(t, 50, rt.SuccessRate)
	assert.Equal(t, now, *rt.LastCompleted)
	for _, task := range rt.Tasks {
		assert.True(t, task.IsCompleted)
	}

	repo.On("Get", ctx, "u1", "other").Return(nil, sql.ErrNoRows)
	_, err = svc.Complete(ctx, "u1", "other")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	repo := new(MockRepo)
	svc := newService(repo)

	stored := &entity.Routine{ID: "r1", UserID: "u1", Name: "Old", Frequency: entity.FrequencyDaily, TimeOfDay: entity.Night, IsActive: true, CreatedAt: now}
	repo.On("Get", ctx, "u1", "r1").Return(stored, nil)
	repo.On("Save", ctx, stored).Return(nil)

	name, freq, off := "New", entity.FrequencyWeekly, false
	rt, err := svc.Update(ctx, "u1", "r1", Patch{Name: &name, Frequency: &freq, IsActive: &off})
	require.NoError(t, err)
	assert.Equal(t, "New", rt.Name)
	assert.Equal(t, entity.FrequencyWeekly, rt.Frequency)
	assert.Equal(t, entity.Night, rt.TimeOfDay)
	assert.False(t, rt.IsActive)

	bad := "noon"
	_, err = svc.Update(ctx, "u1", "r1", Patch{TimeOfDay: &bad})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestHandler_NotFoundAndCreated(t *testing.T) {
	repo := new(MockRepo)
	h := NewHandler(newService(repo), zap.NewNop().Sugar())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/routines", h.Create)
	mux.HandleFunc("PUT /api/routines/{id}", h.Update)

	claims := &auth.Claims{}
	claims.Subject = "u1"
	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req = req.WithContext(auth.WithClaims(req.Context(), claims))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	rec := do(http.MethodPost, "/api/routines", `{"name":"Wind down","time_of_day":"night"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"frequency":"daily"`)

	rec = do(http.MethodPost, "/api/routines", `{"name":"Wind down"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	repo.On("Get", mock.Anything, "u1", "nope").Return(nil, sql.ErrNoRows)
	rec = do(http.MethodPut, "/api/routines/nope", `{"name":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_ListEmptyIsArray(t *testing.T) {
	repo := new(MockRepo)
	h := NewHandler(newService(repo), zap.NewNop().Sugar())
	repo.On("ListByUser", mock.Anything, "u1").Return(nil, nil)

	claims := &auth.Claims{}
	claims.Subject = "u1"
	req := httptest.NewRequest(http.MethodGet, "/api/routines", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), claims))
	rec := httptest.NewRecorder()
	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
