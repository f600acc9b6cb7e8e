package routine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ovaphlow/neuroflow/service-core/internal/routine/entity"
	"github.com/ovaphlow/neuroflow/service-core/pkg/utilities"
)

type Repository interface {
	Create(ctx context.Context, rt *entity.Routine) error
	ListByUser(ctx context.Context, userID string) ([]*entity.Routine, error)
	Get(ctx context.Context, userID, id string) (*entity.Routine, error)
	Save(ctx context.Context, rt *entity.Routine) error
}

var (
	ErrNotFound     = errors.New("routine not found")
	ErrInvalidInput = errors.New("invalid input")
)

type Service struct {
	repo   Repository
	now    func() time.Time
	newID  func() string
	taskID func() string
}

func NewService(r Repository) *Service {
	return &Service{repo: r, now: time.Now, newID: utilities.NewSnowflakeID, taskID: utilities.NewKSUID}
}

type CreateInput struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Frequency   string       `json:"frequency"`
	TimeOfDay   string       `json:"time_of_day"`
	Tasks       entity.Tasks `json:"tasks"`
}

// Patch holds optional fields of an update; nil means unchanged.
type Patch struct {
	Name        *string       `json:"name"`
	Description *string       `json:"description"`
	Frequency   *string       `json:"frequency"`
	TimeOfDay   *string       `json:"time_of_day"`
	Tasks       *entity.Tasks `json:"tasks"`
	IsActive    *bool         `json:"is_active"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func validFrequency(f string) bool {
	switch f {
	case entity.FrequencyDaily, entity.FrequencyWeekly, entity.FrequencyCustom:
		return true
	}
	return false
}

func validTimeOfDay(t string) bool {
	switch t {
	case entity.Morning, entity.Afternoon, entity.Evening, entity.Night:
		return true
	}
	return false
}

// normalizeTasks assigns missing task ids and orders tasks by Order.
func (s *Service) normalizeTasks(ts entity.Tasks) entity.Tasks {
	out := make(entity.Tasks, len(ts))
	copy(out, ts)
	for i := range out {
		out[i].Title = strings.TrimSpace(out[i].Title)
		if out[i].TaskID == "" {
			out[i].TaskID = s.taskID()
		}
	}
	SortTasks(out)
	return out
}

// SortTasks orders tasks by Order, keeping input order for equal values.
func SortTasks(ts entity.Tasks) {
	sort.SliceStable(ts, func(i, j int) bool { return ts[i].Order < ts[j].Order })
}

func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*entity.Routine, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name is required")
	}
	freq := in.Frequency
	if freq == "" {
		freq = entity.FrequencyDaily
	}
	if !validFrequency(freq) {
		return nil, invalid("invalid frequency %q", in.Frequency)
	}
	if !validTimeOfDay(in.TimeOfDay) {
		return nil, invalid("time_of_day must be one of morning, afternoon, evening or night")
	}
	rt := &entity.Routine{
		ID:          s.newID(),
		UserID:      userID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Frequency:   freq,
		TimeOfDay:   in.TimeOfDay,
		Tasks:       s.normalizeTasks(in.Tasks),
		IsActive:    true,
	}
	if err := s.repo.Create(ctx, rt); err != nil {
		return nil, err
	}
	return rt, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]*entity.Routine, error) {
	rts, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rts == nil {
		rts = []*entity.Routine{}
	}
	for _, rt := range rts {
		SortTasks(rt.Tasks)
	}
	return rts, nil
}

func (s *Service) get(ctx context.Context, userID, id string) (*entity.Routine, error) {
	rt, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rt, nil
}

func (s *Service) save(ctx context.Context, rt *entity.Routine) error {
	if err := s.repo.Save(ctx, rt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Service) Update(ctx context.Context, userID, id string, p Patch) (*entity.Routine, error) {
	rt, err := s.get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, invalid("name is required")
		}
		rt.Name = name
	}
	if p.Description != nil {
		rt.Description = strings.TrimSpace(*p.Description)
	}
	if p.Frequency != nil {
		if !validFrequency(*p.Frequency) {
			return nil, invalid("invalid frequency %q", *p.Frequency)
		}
		rt.Frequency = *p.Frequency
	}
	if p.TimeOfDay != nil {
		if !validTimeOfDay(*p.TimeOfDay) {
			return nil, invalid("invalid time_of_day %q", *p.TimeOfDay)
		}
		rt.TimeOfDay = *p.TimeOfDay
	}
	if p.Tasks != nil {
		rt.Tasks = s.normalizeTasks(*p.Tasks)
	}
	if p.IsActive != nil {
		rt.IsActive = *p.IsActive
	}
	rt.SuccessRate = SuccessRate(rt, s.now())
	if err := s.save(ctx, rt); err != nil {
		return nil, err
	}
	return rt, nil
}

// Complete marks every task done and records one completion.
func (s *Service) Complete(ctx context.Context, userID, id string) (*entity.Routine, error) {
	rt, err := s.get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range rt.Tasks {
		rt.Tasks[i].IsCompleted = true
	}
	rt.CompletionCount++
	rt.LastCompleted = &now
	rt.SuccessRate = SuccessRate(rt, now)
	if err := s.save(ctx, rt); err != nil {
		return nil, err
	}
	return rt, nil
}

// SuccessRate returns a 0..100 score. Daily routines compare completions
// with the days since creation, weekly ones with the weeks; both counts
// include the current period. Custom routines report the share of tasks
// completed.
func SuccessRate(rt *entity.Routine, now time.Time) int {
	var rate float64
	switch rt.Frequency {
	case entity.FrequencyCustom:
		if len(rt.Tasks) == 0 {
			if rt.CompletionCount > 0 {
				rate = 100
			}
			break
		}
		done := 0
		for _, t := range rt.Tasks {
			if t.IsCompleted {
				done++
			}
		}
		rate = float64(done) * 100 / float64(len(rt.Tasks))
	default:
		periods := periodsSince(rt.CreatedAt, now, rt.Frequency)
		rate = float64(rt.CompletionCount) * 100 / float64(periods)
	}
	return int(math.Round(math.Max(0, math.Min(100, rate))))
}

func periodsSince(created, now time.Time, freq string) int {
	days := int(utcDay(now).Sub(utcDay(created)).Hours()/24) + 1
	if days < 1 {
		days = 1
	}
	if freq == entity.FrequencyWeekly {
		return (days-1)/7 + 1
	}
	return days
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
