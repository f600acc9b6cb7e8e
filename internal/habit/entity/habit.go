package entity

import (
	"database/sql/driver"
	"time"

	"github.com/ovaphlow/neuroflow/service-core/pkg/database"
)

// Habit represents a row in the `habits` table.
type Habit struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	Name              string     `json:"name"`
	Description       string     `json:"description"`
	Trigger           string     `json:"trigger"`
	StackedTo         *string    `json:"-"`
	StreakCount       int        `json:"streak_count"`
	CompletionHistory History    `json:"completion_history"`
	ReminderEnabled   bool       `json:"reminder_enabled"`
	IsActive          bool       `json:"is_active"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	Anchor            *AnchorRef `json:"stacked_to"`
}

// AnchorRef is the habit another habit is stacked onto.
type AnchorRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Completion is one calendar day of history. Date is midnight UTC.
type Completion struct {
	Date      time.Time `json:"date"`
	Completed bool      `json:"completed"`
}

// History is stored as a JSONB array.
type History []Completion

func (h History) Value() (driver.Value, error) {
	if h == nil {
		h = History{}
	}
	return database.JSONValue(h)
}

func (h *History) Scan(src any) error {
	var out History
	if err := database.ScanJSON(src, &out); err != nil {
		return err
	}
	*h = out
	return nil
}

// Streak is the projection served by the streaks endpoint.
type Streak struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Streak int    `json:"streak"`
}
