package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MegaGrindStone/ollama-web-ui/internal/models"
	"github.com/google/uuid"
	goopenai "github.com/sashabaranov/go-openai"
)

// OpenAI provides an implementation of the LLM interface for OpenAI-compatible chat completion
// endpoints, such as the /v1 API exposed by Ollama itself.
type OpenAI struct {
	baseURL string

	client *goopenai.Client

	logger *slog.Logger
}

// NewOpenAI creates a new OpenAI instance with the specified API key and base URL. An empty base URL
// targets the public OpenAI API.
func NewOpenAI(apiKey, baseURL string, logger *slog.Logger) OpenAI {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return OpenAI{
		baseURL: cfg.BaseURL,
		client:  goopenai.NewClientWithConfig(cfg),
		logger:  logger.With(slog.String("module", "openai")),
	}
}

// Host returns the base URL this instance talks to.
func (o OpenAI) Host() string {
	return o.baseURL
}

// Models lists the model IDs reported by the endpoint.
func (o OpenAI) Models(ctx context.Context) ([]string, error) {
	res, err := o.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing models: %w", err)
	}

	names := make([]string, len(res.Models))
	for i, m := range res.Models {
		names[i] = m.ID
	}
	return names, nil
}

// Chat is a wrapper around the OpenAI chat completion API. The endpoint doesn't report a generation
// duration, so the wall-clock time of the request is used instead.
func (o OpenAI) Chat(ctx context.Context, model string, messages []models.Message) (models.Message, error) {
	msgs := make([]goopenai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		msgs[i] = goopenai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:    model,
		Messages: msgs,
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("error sending request: %w", err)
	}

	if len(resp.Choices) == 0 {
		return models.Message{}, errors.New("no choices found")
	}

	respModel := resp.Model
	if respModel == "" {
		respModel = model
	}

	return models.Message{
		ID:            uuid.New().String(),
		Role:          models.RoleAssistant,
		Content:       resp.Choices[0].Message.Content,
		Model:         respModel,
		TotalDuration: time.Since(start),
	}, nil
}
