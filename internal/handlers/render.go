package handlers

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"github.com/MegaGrindStone/ollama-web-ui/internal/content"
	"github.com/MegaGrindStone/ollama-web-ui/internal/conversation"
	"github.com/MegaGrindStone/ollama-web-ui/internal/models"
	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/tmaxmax/go-sse"
)

type message struct {
	ID        string
	Role      string
	Model     string
	Duration  string
	Timestamp time.Time
	Segments  []segment
}

type segment struct {
	MessageID string
	IsCode    bool

	Spans []content.Span

	Language    string
	Code        string
	Highlighted template.HTML
	Index       int
	Runnable    bool
	HasOutput   bool
	Output      codeOutput
}

type codeOutput struct {
	Output  string
	IsError bool
}

// SSE event types for real-time updates.
const (
	messageSSEType = "message"
	stateSSEType   = "state"
	resetSSEType   = "reset"
)

var templateFuncs = template.FuncMap{
	"roleLabel": func(role string) string {
		if role == "" {
			return role
		}
		return strings.ToUpper(role[:1]) + role[1:]
	},
}

const highlightStyle = "monokai"

func newCodeOutput(out string) codeOutput {
	return codeOutput{
		Output:  out,
		IsError: strings.HasPrefix(out, "Error:"),
	}
}

// messageView parses the message content and attaches the cached execution outputs of its code
// segments.
func (m Main) messageView(msg models.Message) message {
	segments := content.WithOutputs(content.Parse(msg.Content), m.outputsFor(msg.ID))

	res := message{
		ID:        msg.ID,
		Role:      string(msg.Role),
		Model:     msg.Model,
		Timestamp: msg.Timestamp,
		Segments:  make([]segment, len(segments)),
	}
	if msg.TotalDuration > 0 {
		res.Duration = models.FormatDuration(msg.TotalDuration)
	}

	for i, s := range segments {
		if s.Type == content.SegmentTypeText {
			res.Segments[i] = segment{
				MessageID: msg.ID,
				Spans:     s.Spans,
			}
			continue
		}
		res.Segments[i] = segment{
			MessageID:   msg.ID,
			IsCode:      true,
			Language:    s.Language,
			Code:        s.Code,
			Highlighted: m.highlight(s.Code, s.Language),
			Index:       s.Index,
			Runnable:    s.Runnable(),
			HasOutput:   s.HasOutput,
			Output:      newCodeOutput(s.Output),
		}
	}
	return res
}

func (m Main) messageViews(msgs []models.Message) []message {
	res := make([]message, len(msgs))
	for i, msg := range msgs {
		res[i] = m.messageView(msg)
	}
	return res
}

func (m Main) outputsFor(messageID string) map[int]string {
	m.state.mu.RLock()
	defer m.state.mu.RUnlock()

	res := make(map[int]string)
	for k, v := range m.state.outputs {
		if k.messageID == messageID {
			res[k.index] = v
		}
	}
	return res
}

func (m Main) setOutput(messageID string, index int, out string) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()

	m.state.outputs[outputKey{messageID: messageID, index: index}] = out
}

// highlight renders code as syntax-highlighted HTML. If highlighting fails, the escaped code is
// returned in a plain pre block.
func (m Main) highlight(code, language string) template.HTML {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get(highlightStyle)
	if style == nil {
		style = styles.Fallback
	}

	plain := template.HTML("<pre>" + template.HTMLEscapeString(code) + "</pre>")

	it, err := lexer.Tokenise(nil, code)
	if err != nil {
		m.logger.Warn("Failed to tokenise code",
			slog.String("language", language),
			slog.String(errLoggerKey, err.Error()))
		return plain
	}

	var sb strings.Builder
	if err := chromahtml.New(chromahtml.WithClasses(false)).Format(&sb, style, it); err != nil {
		m.logger.Warn("Failed to format code",
			slog.String("language", language),
			slog.String(errLoggerKey, err.Error()))
		return plain
	}

	// The formatter output is escaped by chroma itself.
	return template.HTML(sb.String())
}

func (m Main) renderTemplate(name string, data any) (string, error) {
	var sb strings.Builder
	if err := m.templates.ExecuteTemplate(&sb, name, data); err != nil {
		return "", fmt.Errorf("failed to execute %s template: %w", name, err)
	}
	return sb.String(), nil
}

// onAppend persists every message added to the conversation and pushes it to connected clients. It
// runs under the controller lock, so the work is queued rather than done in place.
func (m Main) onAppend(msg models.Message) {
	m.events.push(func() {
		if err := m.store.AddMessage(context.Background(), msg); err != nil {
			m.logger.Error("Failed to store message",
				slog.String("messageID", msg.ID),
				slog.String(errLoggerKey, err.Error()))
		}

		html, err := m.renderTemplate("message", m.messageView(msg))
		if err != nil {
			m.logger.Error("Failed to render message",
				slog.String("messageID", msg.ID),
				slog.String(errLoggerKey, err.Error()))
			return
		}
		m.publish(messageSSEType, html)
	})
}

func (m Main) onStateChange(s conversation.State) {
	m.events.push(func() {
		m.publish(stateSSEType, s.String())
	})
}

// onReset drops the stored history and the cached execution outputs.
func (m Main) onReset() {
	m.events.push(func() {
		if err := m.store.ClearMessages(context.Background()); err != nil {
			m.logger.Error("Failed to clear messages", slog.String(errLoggerKey, err.Error()))
		}

		m.state.mu.Lock()
		m.state.outputs = make(map[outputKey]string)
		m.state.mu.Unlock()

		m.publish(resetSSEType, "reset")
	})
}

func (m Main) publish(typ, data string) {
	msg := sse.Message{
		Type: sse.Type(typ),
	}
	msg.AppendData(data)
	if err := m.sseSrv.Publish(&msg, chatSSETopic); err != nil {
		m.logger.Error("Failed to publish event",
			slog.String("type", typ),
			slog.String(errLoggerKey, err.Error()))
	}
}
