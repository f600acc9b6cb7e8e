package repo

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/neuroflow/service-core/internal/routine/entity"
)

type RoutineRepo struct {
	db *sqlx.DB
}

func NewRoutineRepo(db *sqlx.DB) *RoutineRepo { return &RoutineRepo{db: db} }

// EnsureTable creates the routines table. Requires the users table.
func (r *RoutineRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS routines (
  id VARCHAR(32) PRIMARY KEY,
  user_id VARCHAR(32) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  frequency TEXT NOT NULL DEFAULT 'daily' CHECK (frequency IN ('daily','weekly','custom')),
  time_of_day TEXT NOT NULL CHECK (time_of_day IN ('morning','afternoon','evening','night')),
  tasks JSONB NOT NULL DEFAULT '[]'::jsonb,
  success_rate INT NOT NULL DEFAULT 0 CHECK (success_rate BETWEEN 0 AND 100),
  completion_count INT NOT NULL DEFAULT 0,
  last_completed TIMESTAMPTZ,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_routines_user_created ON routines (user_id, created_at DESC);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

const routineColumns = `id, user_id, name, description, frequency, time_of_day, tasks,
	success_rate, completion_count, last_completed, is_active, created_at, updated_at`

func (r *RoutineRepo) Create(ctx context.Context, rt *entity.Routine) error {
	const q = `INSERT INTO routines (id, user_id, name, description, frequency, time_of_day, tasks, is_active)
		VALUES (:id, :user_id, :name, :description, :frequency, :time_of_day, :tasks, :is_active)
		RETURNING created_at, updated_at`
	rows, err := r.db.NamedQueryContext(ctx, q, rt)
	if err != nil {
		return err
	}
	defer rows.Close()
	if rows.Next() {
		return rows.Scan(&rt.CreatedAt, &rt.UpdatedAt)
	}
	return rows.Err()
}

// ListByUser returns newest first.
func (r *RoutineRepo) ListByUser(ctx context.Context, userID string) ([]*entity.Routine, error) {
	out := []*entity.Routine{}
	err := r.db.SelectContext(ctx, &out,
		`SELECT `+routineColumns+` FROM routines WHERE user_id=$1 ORDER BY created_at DESC, id DESC`, userID)
	return out, err
}

// Get returns sql.ErrNoRows when the routine does not belong to userID.
func (r *RoutineRepo) Get(ctx context.Context, userID, id string) (*entity.Routine, error) {
	var rt entity.Routine
	if err := r.db.GetContext(ctx, &rt, `SELECT `+routineColumns+` FROM routines WHERE id=$1 AND user_id=$2`, id, userID); err != nil {
		return nil, err
	}
	return &rt, nil
}

// Save writes every mutable column back.
func (r *RoutineRepo) Save(ctx context.Context, rt *entity.Routine) error {
	const q = `UPDATE routines SET name=:name, description=:description, frequency=:frequency,
		time_of_day=:time_of_day, tasks=:tasks, success_rate=:success_rate,
		completion_count=:completion_count, last_completed=:last_completed,
		is_active=:is_active, updated_at=NOW()
		WHERE id=:id AND user_id=:user_id RETURNING updated_at`
	rows, err := r.db.NamedQueryContext(ctx, q, rt)
	if err != nil {
		return err
	}
	defer rows.Close()
	if rows.Next() {
		return rows.Scan(&rt.UpdatedAt)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return sql.ErrNoRows
}
