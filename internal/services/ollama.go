package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/MegaGrindStone/ollama-web-ui/internal/models"
	"github.com/google/uuid"
	"github.com/ollama/ollama/api"
)

// Ollama provides an implementation of the LLM interface for interacting with Ollama's language models.
// It manages connections to an Ollama server instance and performs single-shot (non-streaming) chat
// completions.
type Ollama struct {
	host string

	client *api.Client

	logger *slog.Logger
}

// NewOllama creates a new Ollama instance for the specified host URL. The host parameter should be a
// valid URL pointing to an Ollama server, an error is returned otherwise.
func NewOllama(host string, logger *slog.Logger) (Ollama, error) {
	u, err := url.Parse(host)
	if err != nil {
		return Ollama{}, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return Ollama{}, fmt.Errorf("invalid ollama host %q: scheme and host are required", host)
	}

	return Ollama{
		host:   host,
		client: api.NewClient(u, &http.Client{}),
		logger: logger.With(slog.String("module", "ollama")),
	}, nil
}

// Host returns the base URL this instance talks to.
func (o Ollama) Host() string {
	return o.host
}

// Models lists the models available on the Ollama server, in the order the server reports them.
func (o Ollama) Models(ctx context.Context) ([]string, error) {
	res, err := o.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing models: %w", err)
	}

	names := make([]string, len(res.Models))
	for i, m := range res.Models {
		names[i] = m.Model
	}
	return names, nil
}

// Chat sends the whole conversation history to the given model and returns the assistant reply. The
// request is bound to ctx: cancelling it aborts the underlying HTTP call. A non-2xx response is
// returned as an error.
func (o Ollama) Chat(ctx context.Context, model string, messages []models.Message) (models.Message, error) {
	msgs := make([]api.Message, len(messages))
	for i, msg := range messages {
		msgs[i] = api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}

	f := false
	req := api.ChatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   &f,
	}

	var res api.ChatResponse
	if err := o.client.Chat(ctx, &req, func(r api.ChatResponse) error {
		res = r
		return nil
	}); err != nil {
		return models.Message{}, fmt.Errorf("error sending request: %w", err)
	}

	o.logger.Debug("Chat response",
		slog.String("model", res.Model),
		slog.Duration("totalDuration", res.TotalDuration))

	return models.Message{
		ID:            uuid.New().String(),
		Role:          models.RoleAssistant,
		Content:       res.Message.Content,
		Model:         res.Model,
		TotalDuration: res.TotalDuration,
	}, nil
}
