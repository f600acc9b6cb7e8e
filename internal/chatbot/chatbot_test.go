package chatbot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDetectEmotion(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{"I'm so OVERWHELMED today", Overwhelmed},
		{"there is too much on my plate", Overwhelmed},
		{"I feel annoyed and stressed", Overwhelmed},
		{"so frustrated with this bug", Frustrated},
		{"I'm worried about tomorrow", Anxious},
		{"I can't start my essay", Stuck},
		{"I can’t start anything", Stuck},
		{"my boss said it was a failure", Rejected},
		{"I forgot to eat again", Hyperfocus},
		{"I was late to the meeting", TimeBlind},
		{"what time is it", TimeBlind},
		{"hello there", Neutral},
		{"", Neutral},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectEmotion(tt.msg))
		})
	}
}

func TestCannedTableIsComplete(t *testing.T) {
	for _, p := range patterns {
		c := CannedFor(p.emotion)
		assert.NotEmpty(t, c.Text, p.emotion)
		assert.Len(t, c.Suggestions, 3, p.emotion)
	}
	assert.Equal(t, canned[Neutral], CannedFor("bored"))
}

func TestCannedCopyKeepsPunctuation(t *testing.T) {
	assert.True(t, strings.HasPrefix(CannedFor(Overwhelmed).Text, "I hear you—that feeling"))
	assert.Contains(t, CannedFor(Stuck).Text, "parts of ADHD—it's not laziness")
	assert.Contains(t, CannedFor(Neutral).Text, "here to help—not judge")
}

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, emotion, message string, extra map[string]any) (string, error) {
	args := m.Called(ctx, emotion, message, extra)
	return args.String(0), args.Error(1)
}

func TestService_Reply(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop().Sugar()

	t.Run("canned only", func(t *testing.T) {
		svc := NewService(nil, logger)
		r, err := svc.Reply(ctx, "  I feel stuck ", nil)
		require.NoError(t, err)
		assert.Equal(t, Stuck, r.Emotion)
		assert.Equal(t, canned[Stuck].Text, r.Response)
	})

	t.Run("generated text keeps canned suggestions", func(t *testing.T) {
		gen := new(MockGenerator)
		gen.On("Generate", ctx, Anxious, "I'm nervous", map[string]any(nil)).Return("Breathe with me.", nil)
		r, err := NewService(gen, logger).Reply(ctx, "I'm nervous", nil)
		require.NoError(t, err)
		assert.Equal(t, "Breathe with me.", r.Response)
		assert.Equal(t, canned[Anxious].Suggestions, r.Suggestions)
	})

	t.Run("generator failure falls back", func(t *testing.T) {
		gen := new(MockGenerator)
		gen.On("Generate", ctx, Neutral, "hi", mock.Anything).Return("", errors.New("quota"))
		r, err := NewService(gen, logger).Reply(ctx, "hi", nil)
		require.NoError(t, err)
		assert.Equal(t, canned[Neutral].Text, r.Response)
	})

	t.Run("empty message", func(t *testing.T) {
		_, err := NewService(nil, logger).Reply(ctx, "   ", nil)
		assert.ErrorIs(t, err, ErrEmptyMessage)
	})
}

func TestOpenAIGenerator(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"test-model",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  You've got this.  "}}]}`))
	}))
	defer srv.Close()

	gen := NewOpenAIGenerator(Config{APIKey: "sk-test", Model: "test-model", MaxTokens: 50, Timeout: time.Second},
		option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	text, err := gen.Generate(context.Background(), Overwhelmed, "too much", map[string]any{"screen": "tasks"})
	require.NoError(t, err)
	assert.Equal(t, "You've got this.", text)

	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, "classified as: overwhelmed")
	assert.Contains(t, got.Messages[1].Content, `"screen":"tasks"`)
}

func TestOpenAIGenerator_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	gen := NewOpenAIGenerator(Config{APIKey: "sk-test", Model: "m", MaxTokens: 10},
		option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	_, err := gen.Generate(context.Background(), Neutral, "hi", nil)
	assert.Error(t, err)
}

func TestHandler_Message(t *testing.T) {
	h := NewHandler(NewService(nil, zap.NewNop().Sugar()), zap.NewNop().Sugar())

	rec := httptest.NewRecorder()
	h.Message(rec, httptest.NewRequest(http.MethodPost, "/api/chatbot/message", bytes.NewBufferString(`{"message":"I'm drowning in email"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var r Reply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	assert.Equal(t, Overwhelmed, r.Emotion)
	assert.Len(t, r.Suggestions, 3)

	rec = httptest.NewRecorder()
	h.Message(rec, httptest.NewRequest(http.MethodPost, "/api/chatbot/message", bytes.NewBufferString(`{"message":""}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_MODEL", "")
	t.Setenv("OPENAI_MAX_TOKENS", "")
	t.Setenv("OPENAI_TIMEOUT", "")
	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.Enabled())
	assert.NotEmpty(t, cfg.Model)

	t.Setenv("OPENAI_MAX_TOKENS", "-3")
	_, err = ConfigFromEnv()
	assert.Error(t, err)
}
