package entity

import (
	"database/sql/driver"
	"time"

	"github.com/ovaphlow/neuroflow/service-core/pkg/database"
)

const (
	StatusActive   = "active"
	StatusLocked   = "locked"
	StatusDisabled = "disabled"
)

// ADHD presentation the user identifies with; drives UI defaults.
const (
	SubtypeInattentive = "inattentive"
	SubtypeHyperactive = "hyperactive"
	SubtypeCombined    = "combined"
)

const (
	RewardVisual = "visual"
	RewardAudio  = "audio"
	RewardBoth   = "both"
)

// User represents an account row in the `users` table.
type User struct {
	ID                  string
	Username            string
	Email               string
	PasswordHash        *string
	PasswordAlgo        *string
	FaceDescriptor      []float64 // nil when no face is enrolled
	ADHDSubtype         string
	Preferences         Preferences
	Status              string // active / locked / disabled
	LoginFailedAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HasFace reports whether a descriptor is enrolled.
func (u *User) HasFace() bool { return len(u.FaceDescriptor) > 0 }

// Preferences is stored as a JSONB document.
type Preferences struct {
	Notifications     bool   `json:"notifications"`
	ReminderFrequency string `json:"reminder_frequency"`
	RewardType        string `json:"reward_type"`
}

func DefaultPreferences() Preferences {
	return Preferences{Notifications: true, ReminderFrequency: "medium", RewardType: RewardBoth}
}

func (p Preferences) Value() (driver.Value, error) {
	return database.JSONValue(p)
}

// Scan fills keys missing from the stored document with defaults.
func (p *Preferences) Scan(src any) error {
	out := DefaultPreferences()
	if err := database.ScanJSON(src, &out); err != nil {
		return err
	}
	*p = out
	return nil
}

// Profile is the public projection returned to clients; it never carries
// the descriptor or password hash.
type Profile struct {
	ID           string      `json:"id"`
	Username     string      `json:"username"`
	Email        string      `json:"email"`
	ADHDSubtype  string      `json:"adhd_subtype"`
	Preferences  Preferences `json:"preferences"`
	FaceEnrolled bool        `json:"face_enrolled"`
	CreatedAt    time.Time   `json:"created_at"`
}

func (u *User) Profile() Profile {
	return Profile{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		ADHDSubtype:  u.ADHDSubtype,
		Preferences:  u.Preferences,
		FaceEnrolled: u.HasFace(),
		CreatedAt:    u.CreatedAt,
	}
}
