package services_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MegaGrindStone/ollama-web-ui/internal/models"
	"github.com/MegaGrindStone/ollama-web-ui/internal/services"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestNewOllamaInvalidHost(t *testing.T) {
	tests := []struct {
		name string
		host string
	}{
		{name: "Empty", host: ""},
		{name: "Missing scheme", host: "localhost"},
		{name: "Missing host", host: "http://"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := services.NewOllama(tt.host, discardLogger); err == nil {
				t.Errorf("NewOllama(%q) should fail", tt.host)
			}
		})
	}
}

func TestOllamaModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" || r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"models":[{"name":"llama3:latest","model":"llama3:latest"},{"name":"mistral:latest","model":"mistral:latest"}]}`)
	}))
	defer srv.Close()

	o, err := services.NewOllama(srv.URL, discardLogger)
	if err != nil {
		t.Fatalf("NewOllama() error = %v", err)
	}
	if o.Host() != srv.URL {
		t.Errorf("Host() = %q, want %q", o.Host(), srv.URL)
	}

	names, err := o.Models(context.Background())
	if err != nil {
		t.Fatalf("Models() error = %v", err)
	}
	if len(names) != 2 || names[0] != "llama3:latest" || names[1] != "mistral:latest" {
		t.Errorf("Models() = %v, want models in server order", names)
	}
}

func TestOllamaChat(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Stream   *bool  `json:"stream"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"model":"llama3","message":{"role":"assistant","content":"Hi there"},"done":true,"total_duration":2000000000}`+"\n")
	}))
	defer srv.Close()

	o, err := services.NewOllama(srv.URL, discardLogger)
	if err != nil {
		t.Fatalf("NewOllama() error = %v", err)
	}

	history := []models.Message{
		{Role: models.RoleUser, Content: "Hello"},
		{Role: models.RoleAssistant, Content: "Hey"},
		{Role: models.RoleUser, Content: "How are you?"},
	}
	reply, err := o.Chat(context.Background(), "llama3", history)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if got.Model != "llama3" {
		t.Errorf("request model = %q, want %q", got.Model, "llama3")
	}
	if got.Stream == nil || *got.Stream {
		t.Errorf("request stream = %v, want false", got.Stream)
	}
	if len(got.Messages) != len(history) || got.Messages[2].Content != "How are you?" {
		t.Errorf("request messages = %+v, want the whole history", got.Messages)
	}

	if reply.Role != models.RoleAssistant || reply.Content != "Hi there" {
		t.Errorf("Chat() = %+v, want assistant reply Hi there", reply)
	}
	if reply.ID == "" {
		t.Error("Chat() reply has no ID")
	}
	if reply.TotalDuration != 2*time.Second {
		t.Errorf("Chat() duration = %v, want %v", reply.TotalDuration, 2*time.Second)
	}
	if d := models.FormatDuration(reply.TotalDuration); d != "2.00 seconds" {
		t.Errorf("FormatDuration() = %q, want %q", d, "2.00 seconds")
	}
}

func TestOllamaChatErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"model \"missing\" not found"}`)
	}))
	defer srv.Close()

	o, err := services.NewOllama(srv.URL, discardLogger)
	if err != nil {
		t.Fatalf("NewOllama() error = %v", err)
	}

	if _, err := o.Chat(context.Background(), "missing", []models.Message{{Role: models.RoleUser, Content: "Hello"}}); err == nil {
		t.Error("Chat() should fail on a non-2xx response")
	}
}

func TestOllamaChatCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	o, err := services.NewOllama(srv.URL, discardLogger)
	if err != nil {
		t.Fatalf("NewOllama() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := o.Chat(ctx, "llama3", []models.Message{{Role: models.RoleUser, Content: "Hello"}})
		errs <- err
	}()

	cancel()

	select {
	case err := <-errs:
		if err == nil {
			t.Error("Chat() should fail once the context is cancelled")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Chat() didn't return after cancellation")
	}
}
