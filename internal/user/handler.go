package user

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/neuroflow/service-core/internal/auth"
	"github.com/ovaphlow/neuroflow/service-core/internal/facematch"
	"github.com/ovaphlow/neuroflow/service-core/internal/user/entity"
)

// TokenIssuer mints session tokens; *auth.TokenService satisfies it.
type TokenIssuer interface {
	Issue(id auth.Identity) (auth.Token, error)
}

// Handler exposes HTTP endpoints for enrollment, login and the current account.
type Handler struct {
	svc    *Service
	tokens TokenIssuer
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, tokens TokenIssuer, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, tokens: tokens, logger: logger}
}

// SignupRequest request body for face signup.
type SignupRequest struct {
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	Descriptor  []float64 `json:"descriptor"`
	ADHDSubtype string    `json:"adhd_subtype"`
	Password    string    `json:"password"`
}

type SignupResponse struct {
	Message  string `json:"message"`
	ID       string `json:"id"`
	Username string `json:"username"`
}

func (h *Handler) SignupFace(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !h.decode(w, r, &req, "signup") {
		return
	}
	u, err := h.svc.SignupFace(r.Context(), SignupInput{
		Username:    req.Username,
		Email:       req.Email,
		Descriptor:  req.Descriptor,
		ADHDSubtype: req.ADHDSubtype,
		Password:    req.Password,
	})
	if err != nil {
		h.writeServiceError(w, "signup", err)
		return
	}
	h.logger.Infow("user enrolled", "user_id", u.ID)
	h.writeJSON(w, http.StatusCreated, SignupResponse{Message: "Registration successful", ID: u.ID, Username: u.Username})
}

type FaceLoginRequest struct {
	Descriptor []float64 `json:"descriptor"`
}

// LoginResponse is returned by both login endpoints.
type LoginResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	User      entity.Profile `json:"user"`
}

type faceRejected struct {
	Error       string   `json:"error"`
	MinDistance *float64 `json:"min_distance"`
}

func (h *Handler) LoginFace(w http.ResponseWriter, r *http.Request) {
	var req FaceLoginRequest
	if !h.decode(w, r, &req, "face login") {
		return
	}
	u, res, err := h.svc.AuthenticateFace(r.Context(), req.Descriptor)
	if err != nil {
		if errors.Is(err, ErrFaceNotRecognized) {
			h.logger.Infow("face login rejected", "distance", res.Distance, "compared", res.Compared, "no_candidates", res.NoCandidates())
			h.writeJSON(w, http.StatusUnauthorized, faceRejected{
				Error:       "Face not recognized. Please try again or sign up.",
				MinDistance: finiteOrNil(res.Distance),
			})
			return
		}
		h.writeServiceError(w, "face login", err)
		return
	}
	h.logger.Infow("face login matched", "user_id", u.ID, "distance", res.Distance)
	h.issue(w, u)
}

func finiteOrNil(f float64) *float64 {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil
	}
	return &f
}

// LoginRequest password login payload.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req, "login") {
		return
	}
	u, err := h.svc.AuthenticatePassword(r.Context(), req.Identifier, req.Password)
	if err != nil {
		h.writeServiceError(w, "login", err)
		return
	}
	h.logger.Infow("password login", "user_id", u.ID)
	h.issue(w, u)
}

func (h *Handler) issue(w http.ResponseWriter, u *entity.User) {
	tok, err := h.tokens.Issue(auth.Identity{UserID: u.ID, Username: u.Username, Email: u.Email})
	if err != nil {
		h.logger.Warnw("issue token failed", "user_id", u.ID, "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "login failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, LoginResponse{Token: tok.Value, ExpiresAt: tok.ExpiresAt, User: u.Profile()})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Get(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeServiceError(w, "get profile", err)
		return
	}
	h.writeJSON(w, http.StatusOK, u.Profile())
}

func (h *Handler) ReenrollFace(w http.ResponseWriter, r *http.Request) {
	var req FaceLoginRequest
	if !h.decode(w, r, &req, "re-enroll face") {
		return
	}
	id := auth.UserID(r.Context())
	if err := h.svc.ReenrollFace(r.Context(), id, req.Descriptor); err != nil {
		h.writeServiceError(w, "re-enroll face", err)
		return
	}
	h.logger.Infow("face re-enrolled", "user_id", id)
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Face updated"})
}

func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var patch PreferencesPatch
	if !h.decode(w, r, &patch, "preferences") {
		return
	}
	p, err := h.svc.UpdatePreferences(r.Context(), auth.UserID(r.Context()), patch)
	if err != nil {
		h.writeServiceError(w, "update preferences", err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := auth.UserID(r.Context())
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, "delete user", err)
		return
	}
	h.logger.Infow("user deleted", "user_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	var status int
	var msg string
	switch {
	case errors.Is(err, facematch.ErrInvalidDescriptor):
		status, msg = http.StatusBadRequest, "Invalid face descriptor"
	case errors.Is(err, ErrInvalidInput):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, ErrUsernameTaken):
		status, msg = http.StatusConflict, "Username already taken"
	case errors.Is(err, ErrEmailTaken):
		status, msg = http.StatusConflict, "Email already registered"
	case errors.Is(err, ErrFaceEnrolled):
		status, msg = http.StatusConflict, "Face already enrolled"
	case errors.Is(err, ErrBadCredentials):
		status, msg = http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, ErrLocked):
		status, msg = http.StatusForbidden, "account locked"
	case errors.Is(err, ErrDisabled):
		status, msg = http.StatusForbidden, "account disabled"
	case errors.Is(err, ErrUserNotFound):
		status, msg = http.StatusNotFound, "user not found"
	default:
		h.logger.Warnw(op+" failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": op + " failed"})
		return
	}
	h.logger.Debugw(op+" refused", "err", err)
	h.writeJSON(w, status, map[string]string{"error": msg})
}

// maxBodyBytes caps request bodies; a 128-value descriptor is a few KiB.
const maxBodyBytes = 64 << 10

// decode reads a JSON body into v, writing 413 or 400 and returning false
// when the body is too large or malformed.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any, op string) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.logger.Debugw("request body too large", "op", op, "limit", tooLarge.Limit)
		h.writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Request body too large"})
		return false
	}
	h.logger.Debugw("invalid payload", "op", op, "err", err)
	h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	return false
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
