package chatbot

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

type MessageRequest struct {
	Message string         `json:"message"`
	Context map[string]any `json:"context"`
}

func (h *Handler) Message(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	reply, err := h.svc.Reply(r.Context(), req.Message, req.Context)
	if err != nil {
		if errors.Is(err, ErrEmptyMessage) {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Message is required"})
			return
		}
		h.logger.Warnw("chatbot failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Chatbot unavailable"})
		return
	}
	// message bodies stay out of the logs
	h.logger.Infow("chatbot exchange", "user_id", auth.UserID(r.Context()), "emotion", reply.Emotion)
	h.writeJSON(w, http.StatusOK, reply)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
