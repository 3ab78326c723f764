// Package conversation owns a single conversation history and the lifecycle of the one chat request
// that may be outstanding against the model backend at any time.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MegaGrindStone/ollama-web-ui/internal/metrics"
	"github.com/MegaGrindStone/ollama-web-ui/internal/models"
	"github.com/google/uuid"
)

const errLoggerKey = "error"

// Backend is the chat completion operation of a model backend. Implementations must abort the
// underlying network call when ctx is cancelled.
type Backend interface {
	Chat(ctx context.Context, model string, messages []models.Message) (models.Message, error)
}

// State is the lifecycle phase of the controller with respect to its chat request.
type State int

// Outcome describes what a SendMessage call did.
type Outcome int

const (
	// StateIdle means no request is outstanding.
	StateIdle State = iota
	// StateInFlight means a request was sent and hasn't resolved yet.
	StateInFlight
	// StateCompleted is passed through when the backend replied.
	StateCompleted
	// StateAborted is passed through when the user cancelled the request.
	StateAborted
	// StateFailed is passed through when the request failed for any other reason.
	StateFailed
)

const (
	// OutcomeIgnored means the text was blank and nothing happened.
	OutcomeIgnored Outcome = iota
	// OutcomeCancelRequested means a request was in flight and has been cancelled instead.
	OutcomeCancelRequested
	// OutcomeCompleted means the assistant reply was appended.
	OutcomeCompleted
	// OutcomeAborted means the request was cancelled and the stop message was appended.
	OutcomeAborted
	// OutcomeFailed means the request failed and the error message was appended.
	OutcomeFailed
	// OutcomeDiscarded means the request resolved after it stopped being the live one, so its
	// result was dropped.
	OutcomeDiscarded
)

// Controller manages the message history of one conversation and its single outstanding request.
// All methods are safe for concurrent use.
type Controller struct {
	mu sync.Mutex

	backend Backend
	model   string
	history []models.Message
	state   State
	live    *token
	nextID  uint64

	onAppend      func(models.Message)
	onStateChange func(State)
	onReset       func()

	logger *slog.Logger
}

// token is the cancellation handle of one request. Only the token stored in Controller.live may
// affect the history.
type token struct {
	id      uint64
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
	started time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithHistory seeds the controller with a previously stored history.
func WithHistory(messages []models.Message) Option {
	return func(c *Controller) {
		c.history = append([]models.Message(nil), messages...)
	}
}

// WithOnAppend registers a callback invoked with every message appended to the history. It is called
// with the controller lock held and must not call back into the controller.
func WithOnAppend(fn func(models.Message)) Option {
	return func(c *Controller) {
		c.onAppend = fn
	}
}

// WithOnStateChange registers a callback invoked on every lifecycle transition. It is called with the
// controller lock held and must not call back into the controller.
func WithOnStateChange(fn func(State)) Option {
	return func(c *Controller) {
		c.onStateChange = fn
	}
}

// WithOnReset registers a callback invoked when the history is cleared by Reset. It is called with the
// controller lock held, so it is ordered with the OnAppend calls, and must not call back into the
// controller.
func WithOnReset(fn func()) Option {
	return func(c *Controller) {
		c.onReset = fn
	}
}

// New creates an idle Controller sending requests to backend with the given model.
func New(backend Backend, model string, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		backend: backend,
		model:   model,
		state:   StateIdle,
		logger:  logger.With(slog.String("module", "conversation")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendMessage appends text as a user message and sends the whole history to the backend, blocking
// until the request resolves. The result is always recorded as exactly one assistant message: the
// reply, the stop notice or the generic error notice.
//
// Blank text is ignored. Calling SendMessage while a request is in flight doesn't send text: it
// cancels the outstanding request and returns OutcomeCancelRequested right away.
func (c *Controller) SendMessage(ctx context.Context, text string) Outcome {
	c.mu.Lock()
	if c.state == StateInFlight {
		c.stopLocked()
		c.mu.Unlock()
		return OutcomeCancelRequested
	}
	if strings.TrimSpace(text) == "" {
		c.mu.Unlock()
		return OutcomeIgnored
	}

	c.appendLocked(models.Message{
		ID:      uuid.New().String(),
		Role:    models.RoleUser,
		Content: text,
	})

	tok := c.issueLocked(ctx)
	history := append([]models.Message(nil), c.history...)
	backend, model := c.backend, c.model
	c.setStateLocked(StateInFlight)
	c.mu.Unlock()

	metrics.ChatInFlight.Inc()
	defer metrics.ChatInFlight.Dec()

	reply, err := backend.Chat(tok.ctx, model, history)
	return c.resolve(tok, model, reply, err)
}

// Stop cancels the outstanding request, if any. It reports whether there was one.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateInFlight {
		return false
	}
	c.stopLocked()
	return true
}

// Reset starts a new conversation: the outstanding request, if any, is cancelled and its result
// discarded, and the history is cleared.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.live != nil {
		c.live.cancel()
		c.live = nil
	}
	c.history = nil
	if c.state != StateIdle {
		c.setStateLocked(StateIdle)
	}
	if c.onReset != nil {
		c.onReset()
	}
}

// History returns a copy of the conversation history.
func (c *Controller) History() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]models.Message(nil), c.history...)
}

// Message returns the message with the given ID.
func (c *Controller) Message(id string) (models.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, msg := range c.history {
		if msg.ID == id {
			return msg, true
		}
	}
	return models.Message{}, false
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Model returns the model used for the next request.
func (c *Controller) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.model
}

// SetModel changes the model used for the next request. The outstanding request is unaffected.
func (c *Controller) SetModel(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.model = model
}

// SetBackend changes the backend used for the next request. The outstanding request is unaffected.
func (c *Controller) SetBackend(backend Backend) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.backend = backend
}

func (c *Controller) resolve(tok *token, model string, reply models.Message, err error) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	// The token's context is released in every branch.
	defer tok.cancel()

	elapsed := time.Since(tok.started)

	if c.live != tok {
		c.logger.Debug("Discarding result of stale request", slog.Uint64("requestID", tok.id))
		metrics.RecordChat(model, "discarded", elapsed.Seconds())
		return OutcomeDiscarded
	}
	c.live = nil

	switch {
	case tok.stopped || errors.Is(err, context.Canceled):
		c.logger.Info("Request stopped", slog.Uint64("requestID", tok.id))
		c.appendLocked(models.Message{
			ID:      uuid.New().String(),
			Role:    models.RoleAssistant,
			Content: models.StoppedContent,
		})
		c.finishLocked(StateAborted)
		metrics.RecordChat(model, "aborted", elapsed.Seconds())
		return OutcomeAborted
	case err != nil:
		c.logger.Error("Request failed",
			slog.Uint64("requestID", tok.id),
			slog.String("model", model),
			slog.String(errLoggerKey, err.Error()))
		c.appendLocked(models.Message{
			ID:      uuid.New().String(),
			Role:    models.RoleAssistant,
			Content: models.FailedContent,
		})
		c.finishLocked(StateFailed)
		metrics.RecordChat(model, "failed", elapsed.Seconds())
		return OutcomeFailed
	}

	if reply.ID == "" {
		reply.ID = uuid.New().String()
	}
	reply.Role = models.RoleAssistant
	if reply.Model == "" {
		reply.Model = model
	}
	c.appendLocked(reply)
	c.finishLocked(StateCompleted)
	metrics.RecordChat(model, "completed", elapsed.Seconds())
	return OutcomeCompleted
}

func (c *Controller) issueLocked(parent context.Context) *token {
	c.nextID++
	ctx, cancel := context.WithCancel(parent)
	tok := &token{
		id:      c.nextID,
		ctx:     ctx,
		cancel:  cancel,
		started: time.Now(),
	}
	c.live = tok
	return tok
}

func (c *Controller) stopLocked() {
	if c.live == nil {
		return
	}
	c.logger.Debug("Cancelling request", slog.Uint64("requestID", c.live.id))
	c.live.stopped = true
	c.live.cancel()
}

func (c *Controller) appendLocked(msg models.Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	c.history = append(c.history, msg)
	if c.onAppend != nil {
		c.onAppend(msg)
	}
}

// finishLocked passes through the terminal state before returning to idle.
func (c *Controller) finishLocked(terminal State) {
	c.setStateLocked(terminal)
	c.setStateLocked(StateIdle)
}

func (c *Controller) setStateLocked(s State) {
	c.state = s
	if c.onStateChange != nil {
		c.onStateChange(s)
	}
}

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInFlight:
		return "in_flight"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}
