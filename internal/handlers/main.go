package handlers

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"sync"
	"time"

	ollamawebui "github.com/MegaGrindStone/ollama-web-ui"
	"github.com/MegaGrindStone/ollama-web-ui/internal/conversation"
	"github.com/MegaGrindStone/ollama-web-ui/internal/models"
	"github.com/tmaxmax/go-sse"
)

// LLM represents a model backend: it lists the available models and answers a chat completion for a
// whole conversation history.
type LLM interface {
	conversation.Backend
	Models(ctx context.Context) ([]string, error)
	Host() string
}

// LLMFactory builds an LLM talking to the given base URL.
type LLMFactory func(baseURL string) (LLM, error)

// Store defines the interface for persisting the conversation history and the user settings.
type Store interface {
	Messages(ctx context.Context) ([]models.Message, error)
	AddMessage(ctx context.Context, message models.Message) error
	ClearMessages(ctx context.Context) error

	Setting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// CodeRunner runs code for the run-code endpoint. It returns an error only when the code couldn't be
// run at all.
type CodeRunner interface {
	Run(ctx context.Context, code string) (string, error)
}

// CodeExecutor executes the code of a code segment on behalf of the page. Failures are reported in
// the returned output, never as an error.
type CodeExecutor interface {
	Execute(ctx context.Context, code string) string
}

// Settings holds the user-selectable backend settings.
type Settings struct {
	BaseURL string
	Model   string
}

// Main handles the core functionality of the chat application, managing server-sent events,
// HTML templates, and interactions between the conversation controller and its collaborators.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template

	newLLM   LLMFactory
	store    Store
	runner   CodeRunner
	executor CodeExecutor

	state  *mainState
	events *eventQueue

	logger *slog.Logger
}

type mainState struct {
	mu sync.RWMutex

	llm        LLM
	controller *conversation.Controller

	// closing is set by Shutdown; no chat request is started afterwards, so pending can be waited on.
	closing bool
	pending sync.WaitGroup

	// outputs caches execution results keyed by message and code index. Messages are immutable, so a
	// key stays valid for the lifetime of the conversation.
	outputs map[outputKey]string
}

type outputKey struct {
	messageID string
	index     int
}

const (
	chatSSETopic = "chat"

	// LocalhostURL is the base URL of an Ollama server running on the same machine.
	LocalhostURL = "http://localhost:11434"

	baseURLSettingKey = "base_url"
	modelSettingKey   = "model"

	errLoggerKey = "error"
)

// NewMain creates a new Main instance. The stored settings take precedence over defaults, and the
// stored history seeds the conversation. When no model is configured anywhere, the first model
// reported by the backend is selected.
func NewMain(
	newLLM LLMFactory,
	store Store,
	runner CodeRunner,
	executor CodeExecutor,
	defaults Settings,
	logger *slog.Logger,
) (Main, error) {
	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(
		ollamawebui.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, fmt.Errorf("failed to parse templates: %w", err)
	}

	ctx := context.Background()
	settings, err := loadSettings(ctx, store, defaults)
	if err != nil {
		return Main{}, err
	}

	llm, err := newLLM(settings.BaseURL)
	if err != nil {
		return Main{}, fmt.Errorf("failed to create llm for %s: %w", settings.BaseURL, err)
	}

	history, err := store.Messages(ctx)
	if err != nil {
		return Main{}, fmt.Errorf("failed to load messages: %w", err)
	}

	m := Main{
		sseSrv: &sse.Server{
			OnSession: func(s *sse.Session) (sse.Subscription, bool) {
				return sse.Subscription{
					Client:      s,
					LastEventID: s.LastEventID,
					Topics:      []string{sse.DefaultTopic, chatSSETopic},
				}, true
			},
		},
		templates: tmpl,
		newLLM:    newLLM,
		store:     store,
		runner:    runner,
		executor:  executor,
		state: &mainState{
			llm:     llm,
			outputs: make(map[outputKey]string),
		},
		logger: logger.With(slog.String("module", "main")),
	}

	if settings.Model == "" {
		settings.Model = m.firstModel(llm)
	}

	m.state.controller = conversation.New(llm, settings.Model, logger,
		conversation.WithHistory(history),
		conversation.WithOnAppend(m.onAppend),
		conversation.WithOnStateChange(m.onStateChange),
		conversation.WithOnReset(m.onReset),
	)

	return m, nil
}

func loadSettings(ctx context.Context, store Store, defaults Settings) (Settings, error) {
	settings := defaults

	baseURL, err := store.Setting(ctx, baseURLSettingKey)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to load base url setting: %w", err)
	}
	if baseURL != "" {
		settings.BaseURL = baseURL
	}
	if settings.BaseURL == "" {
		settings.BaseURL = LocalhostURL
	}

	model, err := store.Setting(ctx, modelSettingKey)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to load model setting: %w", err)
	}
	if model != "" {
		settings.Model = model
	}

	return settings, nil
}

// firstModel returns the first model reported by llm, or an empty string if the backend can't be
// reached.
func (m Main) firstModel(llm LLM) string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	names, err := llm.Models(ctx)
	if err != nil {
		m.logger.Warn("Failed to list models", slog.String(errLoggerKey, err.Error()))
		return ""
	}
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func (m Main) controller() *conversation.Controller {
	m.state.mu.RLock()
	defer m.state.mu.RUnlock()

	return m.state.controller
}

func (m Main) llm() LLM {
	m.state.mu.RLock()
	defer m.state.mu.RUnlock()

	return m.state.llm
}

// Shutdown stops the outstanding chat request and waits until its result is stored, so the store can
// be closed afterwards without losing half of a message pair. Chat requests posted from then on are
// refused. It then broadcasts a close message to all connected clients and gracefully terminates the
// SSE server, waiting up to 5 seconds for connections to terminate.
func (m Main) Shutdown(ctx context.Context) error {
	m.state.mu.Lock()
	m.state.closing = true
	m.state.mu.Unlock()

	m.controller().Stop()

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	var errs []error
	if err := m.waitPending(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to wait for pending chat: %w", err))
	}
	if err := m.events.close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to drain events: %w", err))
	}

	e := &sse.Message{Type: sse.Type("close")}
	// An SSE event without data is never dispatched by the browser.
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e, chatSSETopic)

	if err := m.sseSrv.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (m Main) waitPending(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.state.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
