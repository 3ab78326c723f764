package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// MaxCodeLength bounds the size of code accepted by the run-code endpoint.
const MaxCodeLength = 64 * 1024

type runCodeRequest struct {
	Code string `json:"code"`
}

type runCodeResponse struct {
	Output string `json:"output"`
}

type settingsResponse struct {
	BaseURL      string `json:"baseUrl"`
	UseLocalhost bool   `json:"useLocalhost"`
	Model        string `json:"model"`
}

type modelsResponse struct {
	Models   []string `json:"models"`
	Selected string   `json:"selected"`
}

func (r runCodeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Code, validation.Required, validation.Length(1, MaxCodeLength)),
	)
}

// HandleRunCode runs the submitted code in the sandbox and returns its output. A script that exits
// with an error is still a successful exchange: its output then starts with "Error: ".
func (m Main) HandleRunCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req runCodeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 2*MaxCodeLength)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := m.runner.Run(r.Context(), req.Code)
	if err != nil {
		m.logger.Error("Error running code", slog.String(errLoggerKey, err.Error()))
		writeJSON(w, http.StatusInternalServerError, runCodeResponse{Output: "Failed to execute the code."})
		return
	}

	writeJSON(w, http.StatusOK, runCodeResponse{Output: out})
}

// HandleModels lists the models available on the active backend, in backend order.
func (m Main) HandleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	names, err := m.llm().Models(r.Context())
	if err != nil {
		m.logger.Error("Failed to list models", slog.String(errLoggerKey, err.Error()))
		writeError(w, http.StatusBadGateway, "failed to list models")
		return
	}
	if names == nil {
		names = []string{}
	}

	writeJSON(w, http.StatusOK, modelsResponse{
		Models:   names,
		Selected: m.controller().Model(),
	})
}

// HandleSelectModel switches the model used for the next chat request and persists the choice.
func (m Main) HandleSelectModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	model := r.FormValue("model")
	if err := validation.Validate(model, validation.Required); err != nil {
		writeError(w, http.StatusBadRequest, "model: "+err.Error())
		return
	}

	if err := m.store.SetSetting(r.Context(), modelSettingKey, model); err != nil {
		m.logger.Error("Failed to store model", slog.String(errLoggerKey, err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to store model")
		return
	}
	m.controller().SetModel(model)

	w.WriteHeader(http.StatusNoContent)
}

// HandleSettings returns the backend settings on GET and updates them on POST. The "use_localhost"
// form field selects LocalhostURL; otherwise "base_url" must be an absolute URL. The new backend is
// used from the next chat request on.
func (m Main) HandleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		m.writeSettings(w)
	case http.MethodPost:
		m.updateSettings(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (m Main) updateSettings(w http.ResponseWriter, r *http.Request) {
	useLocalhost, _ := strconv.ParseBool(r.FormValue("use_localhost"))
	if r.FormValue("use_localhost") == "on" {
		useLocalhost = true
	}

	baseURL := r.FormValue("base_url")
	if useLocalhost {
		baseURL = LocalhostURL
	}
	if err := validation.Validate(baseURL, validation.Required, is.RequestURL); err != nil {
		writeError(w, http.StatusBadRequest, "base_url: "+err.Error())
		return
	}

	llm, err := m.newLLM(baseURL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := m.store.SetSetting(r.Context(), baseURLSettingKey, baseURL); err != nil {
		m.logger.Error("Failed to store base url", slog.String(errLoggerKey, err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to store settings")
		return
	}

	m.state.mu.Lock()
	m.state.llm = llm
	m.state.mu.Unlock()
	m.controller().SetBackend(llm)

	m.logger.Info("Backend changed", slog.String("baseURL", baseURL))
	m.writeSettings(w)
}

func (m Main) writeSettings(w http.ResponseWriter) {
	host := m.llm().Host()
	writeJSON(w, http.StatusOK, settingsResponse{
		BaseURL:      host,
		UseLocalhost: isLocalhost(host),
		Model:        m.controller().Model(),
	})
}

// isLocalhost reports whether host points at LocalhostURL, including its OpenAI compatible API under
// /v1.
func isLocalhost(host string) bool {
	host = strings.TrimSuffix(host, "/")
	host = strings.TrimSuffix(host, "/v1")
	return strings.TrimSuffix(host, "/") == LocalhostURL
}

// HandleHealth reports that the server is up.
func (m Main) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
