package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/neuroflow/service-core/internal/facematch"
	"github.com/ovaphlow/neuroflow/service-core/internal/user/entity"
	"github.com/ovaphlow/neuroflow/service-core/pkg/database"
	"github.com/ovaphlow/neuroflow/service-core/pkg/utilities"
)

// Repository is the persistence surface the service needs; *repo.UserRepo satisfies it.
type Repository interface {
	Create(ctx context.Context, u *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
	FindConflict(ctx context.Context, username, email string) (usernameTaken, emailTaken bool, err error)
	ListFaceCandidates(ctx context.Context) ([]facematch.Candidate, error)
	UpdateFaceDescriptor(ctx context.Context, id string, desc []float64) (int64, error)
	UpdatePreferences(ctx context.Context, id string, p entity.Preferences) (int64, error)
	Delete(ctx context.Context, id string) (int64, error)
	IncrementFailedLogin(ctx context.Context, id string) (int, error)
	LockIfThreshold(ctx context.Context, id string, threshold int, lockMinutes int) (bool, error)
	ResetLoginSuccess(ctx context.Context, id string) error
	UnlockIfExpired(ctx context.Context, id string) (bool, error)
}

// PasswordHasher defines minimal hashing interface.
type PasswordHasher interface {
	Hash(pw string) (hash string, algo string, err error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", "", err
	}
	return string(h), fmt.Sprintf("bcrypt:%d", cost), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrLocked            = errors.New("user locked")
	ErrDisabled          = errors.New("user disabled")
	ErrBadCredentials    = errors.New("invalid credentials")
	ErrUsernameTaken     = errors.New("username already taken")
	ErrEmailTaken        = errors.New("email already registered")
	ErrFaceEnrolled      = errors.New("face already enrolled")
	ErrFaceNotRecognized = errors.New("face not recognized")
	ErrInvalidInput      = errors.New("invalid input")
)

// Service orchestrates enrollment, authentication and account lifecycle.
type Service struct {
	repo    Repository
	hasher  PasswordHasher
	matcher *facematch.Matcher
	newID   func() string

	MaxFailed   int
	LockMinutes int
	// LoadTimeout bounds the candidate load of a face login.
	LoadTimeout time.Duration
}

func NewService(r Repository, matcher *facematch.Matcher, hasher PasswordHasher) *Service {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	return &Service{
		repo:        r,
		hasher:      hasher,
		matcher:     matcher,
		newID:       utilities.NewSnowflakeID,
		MaxFailed:   6,
		LockMinutes: 15,
		LoadTimeout: 5 * time.Second,
	}
}

// SignupInput carries a face enrollment request.
type SignupInput struct {
	Username    string
	Email       string
	Descriptor  []float64
	ADHDSubtype string
	Password    string
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func validSubtype(s string) bool {
	switch s {
	case entity.SubtypeInattentive, entity.SubtypeHyperactive, entity.SubtypeCombined:
		return true
	}
	return false
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalid("invalid email")
	}
	return email, nil
}

// SignupFace registers a user with an enrolled face descriptor. The
// descriptor must not already match an enrolled identity.
func (s *Service) SignupFace(ctx context.Context, in SignupInput) (*entity.User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || strings.TrimSpace(in.Email) == "" || in.Descriptor == nil {
		return nil, invalid("username, email and descriptor are required")
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := s.matcher.Validate(in.Descriptor); err != nil {
		return nil, err
	}
	subtype := strings.TrimSpace(in.ADHDSubtype)
	if subtype == "" {
		subtype = entity.SubtypeCombined
	}
	if !validSubtype(subtype) {
		return nil, invalid("invalid adhd_subtype %q", subtype)
	}

	usernameTaken, emailTaken, err := s.repo.FindConflict(ctx, username, email)
	if err != nil {
		return nil, err
	}
	if usernameTaken {
		return nil, ErrUsernameTaken
	}
	if emailTaken {
		return nil, ErrEmailTaken
	}

	candidates, err := s.repo.ListFaceCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	res, err := s.matcher.Match(in.Descriptor, candidates)
	if err != nil {
		return nil, err
	}
	if res.Matched {
		return nil, ErrFaceEnrolled
	}

	u := &entity.User{
		ID:             s.newID(),
		Username:       username,
		Email:          email,
		FaceDescriptor: append([]float64(nil), in.Descriptor...),
		ADHDSubtype:    subtype,
		Preferences:    entity.DefaultPreferences(),
		Status:         entity.StatusActive,
	}
	if in.Password != "" {
		hash, algo, err := s.hasher.Hash(in.Password)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = &hash
		u.PasswordAlgo = &algo
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, mapUniqueViolation(err)
	}
	return u, nil
}

// mapUniqueViolation covers the race between FindConflict and insert.
func mapUniqueViolation(err error) error {
	constraint, ok := database.UniqueViolation(err)
	if !ok {
		return err
	}
	switch {
	case strings.Contains(constraint, "email"):
		return ErrEmailTaken
	case strings.Contains(constraint, "username"):
		return ErrUsernameTaken
	}
	return err
}

// AuthenticateFace matches probe against every enrolled identity. The
// Result is returned on rejection too so callers can report the distance.
func (s *Service) AuthenticateFace(ctx context.Context, probe []float64) (*entity.User, facematch.Result, error) {
	if err := s.matcher.Validate(probe); err != nil {
		return nil, facematch.Result{}, err
	}

	loadCtx := ctx
	if s.LoadTimeout > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(ctx, s.LoadTimeout)
		defer cancel()
	}
	candidates, err := s.repo.ListFaceCandidates(loadCtx)
	if err != nil {
		return nil, facematch.Result{}, fmt.Errorf("load candidates: %w", err)
	}

	res, err := s.matcher.Match(probe, candidates)
	if err != nil {
		return nil, res, err
	}
	if !res.Matched {
		return nil, res, ErrFaceNotRecognized
	}

	u, err := s.repo.GetByID(ctx, res.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// deleted between load and lookup
			return nil, res, ErrFaceNotRecognized
		}
		return nil, res, err
	}
	if err := s.checkStatus(ctx, u); err != nil {
		return nil, res, err
	}
	if err := s.repo.ResetLoginSuccess(ctx, u.ID); err != nil {
		return nil, res, err
	}
	return u, res, nil
}

func (s *Service) checkStatus(ctx context.Context, u *entity.User) error {
	if u.Status == entity.StatusLocked && u.LockedUntil != nil && u.LockedUntil.Before(time.Now()) {
		if unlocked, _ := s.repo.UnlockIfExpired(ctx, u.ID); unlocked {
			u.Status = entity.StatusActive
			u.LockedUntil = nil
		}
	}
	switch u.Status {
	case entity.StatusLocked:
		return ErrLocked
	case entity.StatusDisabled:
		return ErrDisabled
	}
	return nil
}

// AuthenticatePassword performs password authentication by email or username.
// On success resets counters.
func (s *Service) AuthenticatePassword(ctx context.Context, identifier, password string) (*entity.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ErrBadCredentials
	}

	var u *entity.User
	var err error
	if strings.Contains(identifier, "@") {
		u, err = s.repo.GetByEmail(ctx, strings.ToLower(identifier))
	} else {
		u, err = s.repo.GetByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBadCredentials
		} // avoid user enumeration
		return nil, err
	}

	if err := s.checkStatus(ctx, u); err != nil {
		return nil, err
	}
	if u.PasswordHash == nil || *u.PasswordHash == "" {
		return nil, ErrBadCredentials
	}

	if !s.hasher.Verify(*u.PasswordHash, password) {
		if _, incErr := s.repo.IncrementFailedLogin(ctx, u.ID); incErr == nil {
			_, _ = s.repo.LockIfThreshold(ctx, u.ID, s.MaxFailed, s.LockMinutes)
		}
		return nil, ErrBadCredentials
	}

	if err := s.repo.ResetLoginSuccess(ctx, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id string) (*entity.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// ReenrollFace replaces the user's descriptor. A descriptor that matches
// another user's enrolled face is refused.
func (s *Service) ReenrollFace(ctx context.Context, id string, desc []float64) error {
	if err := s.matcher.Validate(desc); err != nil {
		return err
	}
	candidates, err := s.repo.ListFaceCandidates(ctx)
	if err != nil {
		return fmt.Errorf("load candidates: %w", err)
	}
	others := candidates[:0:0]
	for _, c := range candidates {
		if c.ID != id {
			others = append(others, c)
		}
	}
	res, err := s.matcher.Match(desc, others)
	if err != nil {
		return err
	}
	if res.Matched {
		return ErrFaceEnrolled
	}
	n, err := s.repo.UpdateFaceDescriptor(ctx, id, desc)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// PreferencesPatch holds optional preference fields; nil means unchanged.
type PreferencesPatch struct {
	Notifications     *bool   `json:"notifications"`
	ReminderFrequency *string `json:"reminder_frequency"`
	RewardType        *string `json:"reward_type"`
}

func (s *Service) UpdatePreferences(ctx context.Context, id string, patch PreferencesPatch) (entity.Preferences, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return entity.Preferences{}, err
	}
	p := u.Preferences
	if patch.Notifications != nil {
		p.Notifications = *patch.Notifications
	}
	if patch.ReminderFrequency != nil {
		switch *patch.ReminderFrequency {
		case "low", "medium", "high":
			p.ReminderFrequency = *patch.ReminderFrequency
		default:
			return entity.Preferences{}, invalid("invalid reminder_frequency %q", *patch.ReminderFrequency)
		}
	}
	if patch.RewardType != nil {
		switch *patch.RewardType {
		case entity.RewardVisual, entity.RewardAudio, entity.RewardBoth:
			p.RewardType = *patch.RewardType
		default:
			return entity.Preferences{}, invalid("invalid reward_type %q", *patch.RewardType)
		}
	}
	n, err := s.repo.UpdatePreferences(ctx, id, p)
	if err != nil {
		return entity.Preferences{}, err
	}
	if n == 0 {
		return entity.Preferences{}, ErrUserNotFound
	}
	return p, nil
}

// Delete removes the account together with its enrolled face, habits and routines.
func (s *Service) Delete(ctx context.Context, id string) error {
	n, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}
