package habit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ovaphlow/neuroflow/service-core/internal/habit/entity"
	"github.com/ovaphlow/neuroflow/service-core/pkg/utilities"
)

type Repository interface {
	Create(ctx context.Context, h *entity.Habit) error
	ListByUser(ctx context.Context, userID string) ([]*entity.Habit, error)
	Get(ctx context.Context, userID, id string) (*entity.Habit, error)
	SaveProgress(ctx context.Context, h *entity.Habit) error
	Delete(ctx context.Context, userID, id string) (int64, error)
}

var (
	ErrNotFound     = errors.New("habit not found")
	ErrInvalidInput = errors.New("invalid input")
)

type Service struct {
	repo  Repository
	now   func() time.Time
	newID func() string
}

func NewService(r Repository) *Service {
	return &Service{repo: r, now: time.Now, newID: utilities.NewSnowflakeID}
}

// CreateInput is the body of a create request.
type CreateInput struct {
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Trigger         string  `json:"trigger"`
	StackedTo       *string `json:"stacked_to"`
	ReminderEnabled *bool   `json:"reminder_enabled"`
}

func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*entity.Habit, error) {
	name := strings.TrimSpace(in.Name)
	trigger := strings.TrimSpace(in.Trigger)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if trigger == "" {
		return nil, fmt.Errorf("%w: trigger is required", ErrInvalidInput)
	}

	h := &entity.Habit{
		ID:                s.newID(),
		UserID:            userID,
		Name:              name,
		Description:       strings.TrimSpace(in.Description),
		Trigger:           trigger,
		CompletionHistory: entity.History{},
		ReminderEnabled:   true,
		IsActive:          true,
	}
	if in.ReminderEnabled != nil {
		h.ReminderEnabled = *in.ReminderEnabled
	}
	if in.StackedTo != nil && *in.StackedTo != "" {
		anchor, err := s.repo.Get(ctx, userID, *in.StackedTo)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: stacked_to is not one of your habits", ErrInvalidInput)
			}
			return nil, err
		}
		h.StackedTo = &anchor.ID
		h.Anchor = &entity.AnchorRef{ID: anchor.ID, Name: anchor.Name}
	}
	if err := s.repo.Create(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// List returns the user's habits with streaks evaluated against today.
func (s *Service) List(ctx context.Context, userID string) ([]*entity.Habit, error) {
	hs, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	today := s.now()
	for _, h := range hs {
		h.StreakCount = CalculateStreak(h.CompletionHistory, today)
	}
	return hs, nil
}

func (s *Service) Streaks(ctx context.Context, userID string) ([]entity.Streak, error) {
	hs, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]entity.Streak, 0, len(hs))
	for _, h := range hs {
		out = append(out, entity.Streak{ID: h.ID, Name: h.Name, Streak: h.StreakCount})
	}
	return out, nil
}

// Complete marks today's entry completed and recomputes the streak.
func (s *Service) Complete(ctx context.Context, userID, id string) (*entity.Habit, error) {
	h, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	now := s.now()
	h.CompletionHistory = MarkCompleted(h.CompletionHistory, now)
	SortHistory(h.CompletionHistory)
	h.StreakCount = CalculateStreak(h.CompletionHistory, now)
	if err := s.repo.SaveProgress(ctx, h); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return h, nil
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	n, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MarkCompleted sets the entry for now's day completed, appending one if absent.
func MarkCompleted(h entity.History, now time.Time) entity.History {
	today := Day(now)
	for i := range h {
		if Day(h[i].Date).Equal(today) {
			h[i].Completed = true
			return h
		}
	}
	return append(h, entity.Completion{Date: today, Completed: true})
}

// CalculateStreak counts consecutive completed days ending today, or ending
// yesterday when today has no completed entry yet. A missing day or a
// not-completed entry ends the run.
func CalculateStreak(h entity.History, now time.Time) int {
	done := make(map[time.Time]bool, len(h))
	for _, c := range h {
		d := Day(c.Date)
		if c.Completed {
			done[d] = true
		} else if _, seen := done[d]; !seen {
			done[d] = false
		}
	}

	day := Day(now)
	if !done[day] {
		day = day.AddDate(0, 0, -1)
	}
	streak := 0
	for done[day] {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}

// SortHistory orders entries oldest first.
func SortHistory(h entity.History) {
	sort.SliceStable(h, func(i, j int) bool { return h[i].Date.Before(h[j].Date) })
}
