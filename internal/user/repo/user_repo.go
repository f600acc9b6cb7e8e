package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/neuroflow/service-core/internal/facematch"
	"github.com/ovaphlow/neuroflow/service-core/internal/user/entity"
)

// UserRepo provides data access for users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates the users table if not exists (idempotent).
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE EXTENSION IF NOT EXISTS citext;
CREATE TABLE IF NOT EXISTS users (
  id VARCHAR(32) PRIMARY KEY,
  username TEXT NOT NULL,
  email CITEXT NOT NULL,
  password_hash TEXT,
  password_algo TEXT,
  face_descriptor DOUBLE PRECISION[],
  adhd_subtype TEXT NOT NULL DEFAULT 'combined',
  preferences JSONB NOT NULL DEFAULT '{}'::jsonb,
  status TEXT NOT NULL DEFAULT 'active',
  login_failed_attempts INT NOT NULL DEFAULT 0,
  locked_until TIMESTAMPTZ,
  last_login_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  CONSTRAINT users_username_key UNIQUE (username),
  CONSTRAINT users_email_key UNIQUE (email),
  CONSTRAINT users_face_descriptor_check CHECK (
    array_position(face_descriptor, NULL) IS NULL AND cardinality(face_descriptor) > 0
  )
);
CREATE INDEX IF NOT EXISTS idx_users_face_created ON users (created_at, id) WHERE face_descriptor IS NOT NULL;
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

const userColumns = `id, username, email, password_hash, password_algo, face_descriptor,
	adhd_subtype, preferences, status, login_failed_attempts, locked_until,
	last_login_at, created_at, updated_at`

type userRow struct {
	ID                  string             `db:"id"`
	Username            string             `db:"username"`
	Email               string             `db:"email"`
	PasswordHash        *string            `db:"password_hash"`
	PasswordAlgo        *string            `db:"password_algo"`
	FaceDescriptor      pq.Float64Array    `db:"face_descriptor"`
	ADHDSubtype         string             `db:"adhd_subtype"`
	Preferences         entity.Preferences `db:"preferences"`
	Status              string             `db:"status"`
	LoginFailedAttempts int                `db:"login_failed_attempts"`
	LockedUntil         *time.Time         `db:"locked_until"`
	LastLoginAt         *time.Time         `db:"last_login_at"`
	CreatedAt           time.Time          `db:"created_at"`
	UpdatedAt           time.Time          `db:"updated_at"`
}

func (row *userRow) toEntity() *entity.User {
	var desc []float64
	if len(row.FaceDescriptor) > 0 {
		desc = []float64(row.FaceDescriptor)
	}
	return &entity.User{
		ID:                  row.ID,
		Username:            row.Username,
		Email:               row.Email,
		PasswordHash:        row.PasswordHash,
		PasswordAlgo:        row.PasswordAlgo,
		FaceDescriptor:      desc,
		ADHDSubtype:         row.ADHDSubtype,
		Preferences:         row.Preferences,
		Status:              row.Status,
		LoginFailedAttempts: row.LoginFailedAttempts,
		LockedUntil:         row.LockedUntil,
		LastLoginAt:         row.LastLoginAt,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
}

// Create inserts a new user row. The id must already be assigned.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO users (id, username, email, password_hash, password_algo, face_descriptor, adhd_subtype, preferences, status)
		VALUES (:id, :username, :email, :password_hash, :password_algo, :face_descriptor, :adhd_subtype, :preferences, :status)
		RETURNING created_at, updated_at`
	var desc any
	if len(u.FaceDescriptor) > 0 {
		desc = pq.Float64Array(u.FaceDescriptor)
	}
	params := map[string]any{
		"id":              u.ID,
		"username":        u.Username,
		"email":           u.Email,
		"password_hash":   u.PasswordHash,
		"password_algo":   u.PasswordAlgo,
		"face_descriptor": desc,
		"adhd_subtype":    u.ADHDSubtype,
		"preferences":     u.Preferences,
		"status":          u.Status,
	}
	rows, err := r.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return err
	}
	defer rows.Close()
	if rows.Next() {
		return rows.Scan(&u.CreatedAt, &u.UpdatedAt)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return errors.New("insert returned no row")
}

func (r *UserRepo) getBy(ctx context.Context, column, value string) (*entity.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE ` + column + `=$1`
	var row userRow
	if err := r.db.GetContext(ctx, &row, q, value); err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

// GetByID fetches a full user row or sql.ErrNoRows.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	return r.getBy(ctx, "id", id)
}

// GetByEmail matches case-insensitively (citext) or returns sql.ErrNoRows.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.getBy(ctx, "email", email)
}

// GetByUsername fetches by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	return r.getBy(ctx, "username", username)
}

// FindConflict reports whether username or email are already registered.
func (r *UserRepo) FindConflict(ctx context.Context, username, email string) (usernameTaken, emailTaken bool, err error) {
	const q = `SELECT
		EXISTS (SELECT 1 FROM users WHERE username=$1),
		EXISTS (SELECT 1 FROM users WHERE email=$2)`
	err = r.db.QueryRowxContext(ctx, q, username, email).Scan(&usernameTaken, &emailTaken)
	return usernameTaken, emailTaken, err
}

// ListFaceCandidates returns every enrolled identity in enrollment order.
// The order is part of the matcher's tie-break contract and must stay stable.
func (r *UserRepo) ListFaceCandidates(ctx context.Context) ([]facematch.Candidate, error) {
	const q = `SELECT id, face_descriptor FROM users
		WHERE face_descriptor IS NOT NULL AND status <> 'disabled'
		ORDER BY created_at, id`
	rows, err := r.db.QueryxContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []facematch.Candidate
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		// a malformed row stays in the list without a descriptor, so the
		// matcher skips it instead of failing every login
		out = append(out, facematch.Candidate{ID: id, Descriptor: decodeDescriptor(raw)})
	}
	return out, rows.Err()
}

// decodeDescriptor parses a DOUBLE PRECISION[] literal. It returns nil for
// unparsable input or arrays holding NULL elements.
func decodeDescriptor(raw []byte) facematch.Descriptor {
	if raw == nil {
		return nil
	}
	var elems []sql.NullFloat64
	if err := (pq.GenericArray{A: &elems}).Scan(raw); err != nil {
		return nil
	}
	if len(elems) == 0 {
		return nil
	}
	out := make(facematch.Descriptor, len(elems))
	for i, e := range elems {
		if !e.Valid {
			return nil
		}
		out[i] = e.Float64
	}
	return out
}

// UpdateFaceDescriptor replaces the enrolled descriptor wholesale.
func (r *UserRepo) UpdateFaceDescriptor(ctx context.Context, id string, desc []float64) (int64, error) {
	const q = `UPDATE users SET face_descriptor=$2, updated_at=NOW() WHERE id=$1`
	res, err := r.db.ExecContext(ctx, q, id, pq.Float64Array(desc))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpdatePreferences overwrites the preferences document.
func (r *UserRepo) UpdatePreferences(ctx context.Context, id string, p entity.Preferences) (int64, error) {
	const q = `UPDATE users SET preferences=$2, updated_at=NOW() WHERE id=$1`
	res, err := r.db.ExecContext(ctx, q, id, p)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete removes the user; habits and routines go with it (ON DELETE CASCADE).
func (r *UserRepo) Delete(ctx context.Context, id string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// IncrementFailedLogin increments the failure counter atomically and returns new value.
func (r *UserRepo) IncrementFailedLogin(ctx context.Context, id string) (int, error) {
	const q = `UPDATE users SET login_failed_attempts = login_failed_attempts + 1, updated_at=NOW() WHERE id=$1 RETURNING login_failed_attempts`
	var v int
	if err := r.db.GetContext(ctx, &v, q, id); err != nil {
		return 0, err
	}
	return v, nil
}

// LockIfThreshold locks the user if attempts >= threshold and currently active.
func (r *UserRepo) LockIfThreshold(ctx context.Context, id string, threshold int, lockMinutes int) (bool, error) {
	const q = `UPDATE users SET status='locked', locked_until = NOW() + make_interval(mins => $2), updated_at=NOW()
              WHERE id=$1 AND status='active' AND login_failed_attempts >= $3 RETURNING 1`
	var one int
	err := r.db.GetContext(ctx, &one, q, id, lockMinutes, threshold)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ResetLoginSuccess resets failure metrics on successful authentication.
func (r *UserRepo) ResetLoginSuccess(ctx context.Context, id string) error {
	const q = `UPDATE users SET login_failed_attempts=0, last_login_at=NOW(), locked_until=NULL, updated_at=NOW() WHERE id=$1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

// UnlockIfExpired sets status back to active if locked_until passed.
func (r *UserRepo) UnlockIfExpired(ctx context.Context, id string) (bool, error) {
	const q = `UPDATE users SET status='active', locked_until=NULL, login_failed_attempts=0, updated_at=NOW()
               WHERE id=$1 AND status='locked' AND locked_until IS NOT NULL AND locked_until < NOW() RETURNING 1`
	var one int
	err := r.db.GetContext(ctx, &one, q, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
