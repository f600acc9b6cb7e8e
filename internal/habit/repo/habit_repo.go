package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/neuroflow/service-core/internal/habit/entity"
)

type HabitRepo struct {
	db *sqlx.DB
}

func NewHabitRepo(db *sqlx.DB) *HabitRepo { return &HabitRepo{db: db} }

// EnsureTable creates the habits table. Requires the users table.
func (r *HabitRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS habits (
  id VARCHAR(32) PRIMARY KEY,
  user_id VARCHAR(32) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  trigger TEXT NOT NULL,
  stacked_to VARCHAR(32) REFERENCES habits(id) ON DELETE SET NULL,
  streak_count INT NOT NULL DEFAULT 0 CHECK (streak_count >= 0),
  completion_history JSONB NOT NULL DEFAULT '[]'::jsonb,
  reminder_enabled BOOLEAN NOT NULL DEFAULT TRUE,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_habits_user_created ON habits (user_id, created_at DESC);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

type habitRow struct {
	ID                string         `db:"id"`
	UserID            string         `db:"user_id"`
	Name              string         `db:"name"`
	Description       string         `db:"description"`
	Trigger           string         `db:"trigger"`
	StackedTo         sql.NullString `db:"stacked_to"`
	StreakCount       int            `db:"streak_count"`
	CompletionHistory entity.History `db:"completion_history"`
	ReminderEnabled   bool           `db:"reminder_enabled"`
	IsActive          bool           `db:"is_active"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
	AnchorName        sql.NullString `db:"anchor_name"`
}

func (row *habitRow) toEntity() *entity.Habit {
	h := &entity.Habit{
		ID:                row.ID,
		UserID:            row.UserID,
		Name:              row.Name,
		Description:       row.Description,
		Trigger:           row.Trigger,
		StreakCount:       row.StreakCount,
		CompletionHistory: row.CompletionHistory,
		ReminderEnabled:   row.ReminderEnabled,
		IsActive:          row.IsActive,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}
	if row.StackedTo.Valid {
		id := row.StackedTo.String
		h.StackedTo = &id
		if row.AnchorName.Valid {
			h.Anchor = &entity.AnchorRef{ID: id, Name: row.AnchorName.String}
		}
	}
	return h
}

const selectHabit = `SELECT h.id, h.user_id, h.name, h.description, h.trigger, h.stacked_to,
	h.streak_count, h.completion_history, h.reminder_enabled, h.is_active,
	h.created_at, h.updated_at, a.name AS anchor_name
	FROM habits h LEFT JOIN habits a ON a.id = h.stacked_to`

func (r *HabitRepo) Create(ctx context.Context, h *entity.Habit) error {
	const q = `INSERT INTO habits (id, user_id, name, description, trigger, stacked_to, completion_history, reminder_enabled, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING created_at, updated_at`
	return r.db.QueryRowxContext(ctx, q,
		h.ID, h.UserID, h.Name, h.Description, h.Trigger, h.StackedTo,
		h.CompletionHistory, h.ReminderEnabled, h.IsActive,
	).Scan(&h.CreatedAt, &h.UpdatedAt)
}

// ListByUser returns the user's habits newest first with anchors populated.
func (r *HabitRepo) ListByUser(ctx context.Context, userID string) ([]*entity.Habit, error) {
	var rows []habitRow
	if err := r.db.SelectContext(ctx, &rows, selectHabit+` WHERE h.user_id=$1 ORDER BY h.created_at DESC, h.id DESC`, userID); err != nil {
		return nil, err
	}
	out := make([]*entity.Habit, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toEntity())
	}
	return out, nil
}

// Get returns sql.ErrNoRows when the habit does not belong to userID.
func (r *HabitRepo) Get(ctx context.Context, userID, id string) (*entity.Habit, error) {
	var row habitRow
	if err := r.db.GetContext(ctx, &row, selectHabit+` WHERE h.id=$1 AND h.user_id=$2`, id, userID); err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

// SaveProgress persists history and streak.
func (r *HabitRepo) SaveProgress(ctx context.Context, h *entity.Habit) error {
	const q = `UPDATE habits SET completion_history=$3, streak_count=$4, updated_at=NOW()
		WHERE id=$1 AND user_id=$2 RETURNING updated_at`
	return r.db.QueryRowxContext(ctx, q, h.ID, h.UserID, h.CompletionHistory, h.StreakCount).Scan(&h.UpdatedAt)
}

func (r *HabitRepo) Delete(ctx context.Context, userID, id string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM habits WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
