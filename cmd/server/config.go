package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/MegaGrindStone/ollama-web-ui/internal/handlers"
	"github.com/MegaGrindStone/ollama-web-ui/internal/services"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type llmConfig interface {
	settings() handlers.Settings
	factory(logger *slog.Logger) handlers.LLMFactory
}

// BaseLLMConfig contains the common fields for all LLM configurations.
type BaseLLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type config struct {
	Port           string        `yaml:"port"`
	LogLevel       string        `yaml:"logLevel"`
	LLM            llmConfig     `yaml:"llm"`
	RunCode        runCodeConfig `yaml:"runCode"`
	AllowedOrigins []string      `yaml:"allowedOrigins"`
}

type ollamaConfig struct {
	BaseLLMConfig `yaml:",inline"`
	Host          string `yaml:"host"`
}

type openAIConfig struct {
	BaseLLMConfig `yaml:",inline"`
	BaseURL       string `yaml:"baseURL"`
	APIKey        string `yaml:"apiKey"`
}

type runCodeConfig struct {
	Interpreter string        `yaml:"interpreter"`
	Dir         string        `yaml:"dir"`
	Timeout     time.Duration `yaml:"timeout"`

	// RemoteURL, when set, sends segment executions to another server's run-code endpoint instead
	// of the local sandbox.
	RemoteURL     string        `yaml:"remoteURL"`
	ClientTimeout time.Duration `yaml:"clientTimeout"`

	RateLimit rateLimitConfig `yaml:"rateLimit"`
}

type rateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

const (
	defaultPort        = "8080"
	defaultInterpreter = "python3"
)

// loadConfig reads the config file at path. A missing file isn't an error: every field then takes
// its default. Variables from a .env file in the working directory are loaded first, so they can
// serve as environment fallbacks.
func loadConfig(path string) (config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	cfg := config{}

	f, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return config{}, fmt.Errorf("error opening config file: %w", err)
	default:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return config{}, fmt.Errorf("error decoding config file: %w", err)
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port           string         `yaml:"port"`
		LogLevel       string         `yaml:"logLevel"`
		LLM            map[string]any `yaml:"llm"`
		RunCode        runCodeConfig  `yaml:"runCode"`
		AllowedOrigins []string       `yaml:"allowedOrigins"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	c.Port = rawConfig.Port
	c.LogLevel = rawConfig.LogLevel
	c.RunCode = rawConfig.RunCode
	c.AllowedOrigins = rawConfig.AllowedOrigins

	if rawConfig.LLM == nil {
		return nil
	}

	llmProvider, ok := rawConfig.LLM["provider"].(string)
	if !ok {
		return fmt.Errorf("llm provider is required")
	}

	llmRawYAML, err := yaml.Marshal(rawConfig.LLM)
	if err != nil {
		return err
	}

	var llm llmConfig
	switch llmProvider {
	case "ollama":
		llm = &ollamaConfig{}
	case "openai":
		llm = &openAIConfig{}
	default:
		return fmt.Errorf("unknown llm provider: %s", llmProvider)
	}

	if err := yaml.Unmarshal(llmRawYAML, llm); err != nil {
		return err
	}

	c.LLM = llm

	return nil
}

func (c *config) applyDefaults() {
	if c.Port == "" {
		c.Port = defaultPort
	}
	if c.LLM == nil {
		c.LLM = &ollamaConfig{BaseLLMConfig: BaseLLMConfig{Provider: "ollama"}}
	}
	if c.RunCode.Interpreter == "" {
		c.RunCode.Interpreter = defaultInterpreter
	}
	if c.RunCode.Timeout <= 0 {
		c.RunCode.Timeout = services.DefaultSandboxTimeout
	}
	if c.RunCode.ClientTimeout <= 0 {
		c.RunCode.ClientTimeout = services.DefaultRunCodeTimeout
	}
	if c.RunCode.RateLimit.Requests <= 0 {
		c.RunCode.RateLimit.Requests = 30
	}
	if c.RunCode.RateLimit.Window <= 0 {
		c.RunCode.RateLimit.Window = time.Minute
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"http://*", "https://*"}
	}
}

// logLevel parses the configured level name, falling back to info for an empty or unknown name.
func (c config) logLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (o ollamaConfig) settings() handlers.Settings {
	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	return handlers.Settings{
		BaseURL: host,
		Model:   o.Model,
	}
}

func (o ollamaConfig) factory(logger *slog.Logger) handlers.LLMFactory {
	return func(baseURL string) (handlers.LLM, error) {
		return services.NewOllama(baseURL, logger)
	}
}

func (o openAIConfig) settings() handlers.Settings {
	baseURL := o.BaseURL
	if baseURL == "" {
		baseURL = handlers.LocalhostURL + "/v1"
	}
	return handlers.Settings{
		BaseURL: baseURL,
		Model:   o.Model,
	}
}

func (o openAIConfig) factory(logger *slog.Logger) handlers.LLMFactory {
	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return func(baseURL string) (handlers.LLM, error) {
		// The local Ollama server serves its OpenAI compatible API under /v1.
		if strings.TrimSuffix(baseURL, "/") == handlers.LocalhostURL {
			baseURL = handlers.LocalhostURL + "/v1"
		}
		return services.NewOpenAI(apiKey, baseURL, logger), nil
	}
}
