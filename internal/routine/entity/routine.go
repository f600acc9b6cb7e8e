package entity

import (
	"database/sql/driver"
	"time"

	"github.com/ovaphlow/neuroflow/service-core/pkg/database"
)

const (
	FrequencyDaily  = "daily"
	FrequencyWeekly = "weekly"
	FrequencyCustom = "custom"
)

const (
	Morning   = "morning"
	Afternoon = "afternoon"
	Evening   = "evening"
	Night     = "night"
)

// Routine represents a row in the `routines` table.
type Routine struct {
	ID              string     `db:"id" json:"id"`
	UserID          string     `db:"user_id" json:"user_id"`
	Name            string     `db:"name" json:"name"`
	Description     string     `db:"description" json:"description"`
	Frequency       string     `db:"frequency" json:"frequency"`
	TimeOfDay       string     `db:"time_of_day" json:"time_of_day"`
	Tasks           Tasks      `db:"tasks" json:"tasks"`
	SuccessRate     int        `db:"success_rate" json:"success_rate"`
	CompletionCount int        `db:"completion_count" json:"completion_count"`
	LastCompleted   *time.Time `db:"last_completed" json:"last_completed"`
	IsActive        bool       `db:"is_active" json:"is_active"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

type Task struct {
	TaskID      string `json:"task_id"`
	Title       string `json:"title"`
	Order       int    `json:"order"`
	IsCompleted bool   `json:"is_completed"`
}

// Tasks is stored as a JSONB array.
type Tasks []Task

func (t Tasks) Value() (driver.Value, error) {
	if t == nil {
		t = Tasks{}
	}
	return database.JSONValue(t)
}

func (t *Tasks) Scan(src any) error {
	var out Tasks
	if err := database.ScanJSON(src, &out); err != nil {
		return err
	}
	*t = out
	return nil
}
