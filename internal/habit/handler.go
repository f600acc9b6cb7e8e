package habit

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/neuroflow/service-core/internal/auth"
)

// Handler serves /api/habits. All routes sit behind auth.RequireAuth.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	hs, err := h.svc.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, "list habits", err)
		return
	}
	h.writeJSON(w, http.StatusOK, hs)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.logger.Debugw("invalid habit payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	hb, err := h.svc.Create(r.Context(), auth.UserID(r.Context()), in)
	if err != nil {
		h.writeError(w, "create habit", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, hb)
}

func (h *Handler) Streaks(w http.ResponseWriter, r *http.Request) {
	ss, err := h.svc.Streaks(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, "list streaks", err)
		return
	}
	h.writeJSON(w, http.StatusOK, ss)
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	hb, err := h.svc.Complete(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.writeError(w, "complete habit", err)
		return
	}
	h.logger.Debugw("habit completed", "habit_id", hb.ID, "streak", hb.StreakCount)
	h.writeJSON(w, http.StatusOK, hb)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), auth.UserID(r.Context()), r.PathValue("id")); err != nil {
		h.writeError(w, "delete habit", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "Habit not found"})
	case errors.Is(err, ErrInvalidInput):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		h.logger.Warnw(op+" failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": op + " failed"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
