package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/MegaGrindStone/ollama-web-ui/internal/content"
	"github.com/MegaGrindStone/ollama-web-ui/internal/conversation"
)

// HandleChats processes user messages through HTTP POST requests. It accepts the user message
// through the "message" form field and hands it to the conversation controller asynchronously; the
// user message and the assistant reply reach the page through Server-Sent Events.
//
// While a request is in flight, posting cancels that request instead of sending a new message, and
// an empty message is accepted for that purpose. Both cases answer with 202 Accepted.
func (m Main) HandleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	msg := r.FormValue("message")
	c := m.controller()

	if c.State() != conversation.StateInFlight && strings.TrimSpace(msg) == "" {
		m.logger.Error("Message is required")
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	}

	m.state.mu.Lock()
	if m.state.closing {
		m.state.mu.Unlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	m.state.pending.Add(1)
	m.state.mu.Unlock()

	// The request outlives the HTTP exchange, so it isn't bound to r.Context().
	go func() {
		defer m.state.pending.Done()
		m.send(c, msg)
	}()

	w.WriteHeader(http.StatusAccepted)
}

func (m Main) send(c *conversation.Controller, msg string) {
	outcome := c.SendMessage(context.Background(), msg)
	m.logger.Debug("Chat request resolved", slog.Int("outcome", int(outcome)))
}

// HandleStop cancels the in-flight chat request, if any.
func (m Main) HandleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{
		"stopped": m.controller().Stop(),
	})
}

// HandleNewChat starts a new conversation: the in-flight request is cancelled, the stored history and
// the cached execution outputs are dropped, and connected clients are told to clear their view. The
// store is cleared in order with the message writes, so a message sent right before or after stays
// consistent between memory and store.
func (m Main) HandleNewChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	m.controller().Reset()

	if err := m.events.flush(r.Context()); err != nil {
		m.logger.Error("Failed to clear conversation", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleExecute runs one python code segment of a message and returns the rendered output. The
// segment is addressed by the "message_id" and "index" form fields, index being the code index of
// the segment in the parsed message. The output is cached, so it survives a page reload.
func (m Main) HandleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	messageID := r.FormValue("message_id")
	index, err := strconv.Atoi(r.FormValue("index"))
	if messageID == "" || err != nil {
		http.Error(w, "message_id and a numeric index are required", http.StatusBadRequest)
		return
	}

	msg, ok := m.controller().Message(messageID)
	if !ok {
		http.Error(w, "Message not found", http.StatusNotFound)
		return
	}

	var seg content.Segment
	found := false
	for _, s := range content.Parse(msg.Content) {
		if s.Type == content.SegmentTypeCode && s.Index == index {
			seg, found = s, true
			break
		}
	}
	if !found {
		http.Error(w, "Code segment not found", http.StatusNotFound)
		return
	}
	if !seg.Runnable() {
		http.Error(w, "Only python code can be executed", http.StatusBadRequest)
		return
	}

	out := m.executor.Execute(r.Context(), seg.Code)
	m.setOutput(messageID, index, out)

	if err := m.templates.ExecuteTemplate(w, "code_output", newCodeOutput(out)); err != nil {
		m.logger.Error("Failed to render code output", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
