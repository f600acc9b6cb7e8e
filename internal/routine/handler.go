package routine

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/neuroflow/service-core/internal/auth"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	rts, err := h.svc.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, "list routines", err)
		return
	}
	h.writeJSON(w, http.StatusOK, rts)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.logger.Debugw("invalid routine payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	rt, err := h.svc.Create(r.Context(), auth.UserID(r.Context()), in)
	if err != nil {
		h.writeError(w, "create routine", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, rt)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var p Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	rt, err := h.svc.Update(r.Context(), auth.UserID(r.Context()), r.PathValue("id"), p)
	if err != nil {
		h.writeError(w, "update routine", err)
		return
	}
	h.writeJSON(w, http.StatusOK, rt)
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	rt, err := h.svc.Complete(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.writeError(w, "complete routine", err)
		return
	}
	h.logger.Debugw("routine completed", "routine_id", rt.ID, "success_rate", rt.SuccessRate)
	h.writeJSON(w, http.StatusOK, rt)
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "Routine not found"})
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
