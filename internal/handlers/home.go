package handlers

import (
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/ollama-web-ui/internal/conversation"
	"github.com/MegaGrindStone/ollama-web-ui/internal/metrics"
)

type homePageData struct {
	Messages []message

	Models       []string
	CurrentModel string
	BaseURL      string
	UseLocalhost bool
	InFlight     bool
}

// HandleHome renders the main chat interface: the whole conversation with its parsed segments, the
// model selector and the backend settings. A backend that can't be reached only leaves the model
// list empty.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	c := m.controller()
	llm := m.llm()

	models, err := llm.Models(r.Context())
	if err != nil {
		m.logger.Warn("Failed to list models", slog.String(errLoggerKey, err.Error()))
	}

	data := homePageData{
		Messages:     m.messageViews(c.History()),
		Models:       models,
		CurrentModel: c.Model(),
		BaseURL:      llm.Host(),
		UseLocalhost: isLocalhost(llm.Host()),
		InFlight:     c.State() == conversation.StateInFlight,
	}

	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		m.logger.Error("Failed to render home page", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleSSE serves the server-sent events stream carrying new messages and lifecycle changes.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	metrics.SSEConnectionsActive.Inc()
	defer metrics.SSEConnectionsActive.Dec()

	m.sseSrv.ServeHTTP(w, r)
}
