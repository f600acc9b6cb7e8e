package chatbot

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

//go:embed prompts/system.txt
var systemPrompt string

// Generator produces reply text for a classified message.
type Generator interface {
	Generate(ctx context.Context, emotion, message string, extra map[string]any) (string, error)
}

type Config struct {
	APIKey    string
	Model     string
	MaxTokens int64
	Timeout   time.Duration
}

// ConfigFromEnv reads OPENAI_API_KEY, OPENAI_MODEL, OPENAI_MAX_TOKENS and
// OPENAI_TIMEOUT. An empty key disables generation.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		APIKey:    os.Getenv("OPENAI_API_KEY"),
		Model:     os.Getenv("OPENAI_MODEL"),
		MaxTokens: 300,
		Timeout:   10 * time.Second,
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.ChatModelGPT4_1Mini)
	}
	if v := os.Getenv("OPENAI_MAX_TOKENS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("OPENAI_MAX_TOKENS: invalid value %q", v)
		}
		cfg.MaxTokens = n
	}
	if v := os.Getenv("OPENAI_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("OPENAI_TIMEOUT: %w", err)
		}
		cfg.Timeout = d
	}
	return cfg, nil
}

func (c Config) Enabled() bool { return c.APIKey != "" }

type OpenAIGenerator struct {
	client    *openai.Client
	model     string
	maxTokens int64
	timeout   time.Duration
}

func NewOpenAIGenerator(cfg Config, opts ...option.RequestOption) *OpenAIGenerator {
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)...)
	return &OpenAIGenerator{client: &client, model: cfg.Model, maxTokens: cfg.MaxTokens, timeout: cfg.Timeout}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, emotion, message string, extra map[string]any) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(fmt.Sprintf(systemPrompt, emotion)),
					},
				},
			},
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(buildUserContent(message, extra)),
					},
				},
			},
		},
		MaxTokens: openai.Int(g.maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("empty response from OpenAI")
	}
	return text, nil
}

func buildUserContent(message string, extra map[string]any) string {
	if len(extra) == 0 {
		return message
	}
	b, err := json.Marshal(extra)
	if err != nil {
		return message
	}
	return message + "\n\nApp context: " + string(b)
}
