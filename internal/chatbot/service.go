package chatbot

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

var ErrEmptyMessage = errors.New("message is required")

// Reply is the chatbot answer returned to clients.
type Reply struct {
	Response    string   `json:"response"`
	Emotion     string   `json:"emotion"`
	Suggestions []string `json:"suggestions"`
}

// Service classifies messages and answers them. With a nil generator it
// answers from the canned table only.
type Service struct {
	gen    Generator
	logger *zap.SugaredLogger
}

func NewService(gen Generator, logger *zap.SugaredLogger) *Service {
	return &Service{gen: gen, logger: logger}
}

func (s *Service) Reply(ctx context.Context, message string, extra map[string]any) (Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Reply{}, ErrEmptyMessage
	}
	emotion := DetectEmotion(message)
	c := CannedFor(emotion)
	reply := Reply{Response: c.Text, Emotion: emotion, Suggestions: c.Suggestions}

	if s.gen == nil {
		return reply, nil
	}
	text, err := s.gen.Generate(ctx, emotion, message, extra)
	if err != nil {
		s.logger.Warnw("chatbot generation failed, using canned reply", "emotion", emotion, "err", err)
		return reply, nil
	}
	reply.Response = text
	return reply, nil
}
