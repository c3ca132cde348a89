package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration for the squad pipeline.
type Config struct {
	Port       int              `koanf:"port" validate:"min=1,max=65535"`
	Version    string           `koanf:"version"`
	LogLevel   string           `koanf:"log_level" validate:"oneof=trace debug info warn error"`
	Completion CompletionConfig `koanf:"completion"`
	Pipeline   PipelineConfig   `koanf:"pipeline"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

// CompletionConfig points the pipeline at a chat completion service.
// The API key is deliberately not required here; a missing key is reported
// by the service on the first call.
type CompletionConfig struct {
	APIKey   string `koanf:"api_key"`
	Endpoint string `koanf:"endpoint" validate:"required,url"`
	Model    string `koanf:"model" validate:"required"`
}

type PipelineConfig struct {
	HistoryWindow   int    `koanf:"history_window" validate:"min=2,max=5"`
	MaxReviewCycles int    `koanf:"max_review_cycles" validate:"gte=0"`
	OutputDir       string `koanf:"output_dir" validate:"required"`
	AgentsFile      string `koanf:"agents_file"`
}

type TelemetryConfig struct {
	Enabled      bool   `koanf:"enabled"`
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	ServiceName  string `koanf:"service_name"`
}

// envKeys maps environment variables onto config paths.
var envKeys = map[string]string{
	"SQUAD_PORT":                  "port",
	"SQUAD_VERSION":               "version",
	"SQUAD_LOG_LEVEL":             "log_level",
	"SQUAD_API_KEY":               "completion.api_key",
	"SQUAD_ENDPOINT":              "completion.endpoint",
	"SQUAD_MODEL":                 "completion.model",
	"SQUAD_HISTORY_WINDOW":        "pipeline.history_window",
	"SQUAD_MAX_REVIEW_CYCLES":     "pipeline.max_review_cycles",
	"SQUAD_OUTPUT_DIR":            "pipeline.output_dir",
	"SQUAD_AGENTS_FILE":           "pipeline.agents_file",
	"OTEL_ENABLED":                "telemetry.enabled",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "telemetry.otlp_endpoint",
	"OTEL_SERVICE_NAME":           "telemetry.service_name",
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Port:     8080,
		Version:  "0.1.0",
		LogLevel: "info",
		Completion: CompletionConfig{
			Endpoint: "https://api.euron.one/api/v1/euri/chat/completions",
			Model:    "qwen/qwen3-32b",
		},
		Pipeline: PipelineConfig{
			HistoryWindow:   5,
			MaxReviewCycles: 4,
			OutputDir:       DefaultOutputDir(),
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "squad",
		},
	}
}

// DefaultOutputDir is the "samples" directory next to the running executable.
func DefaultOutputDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "samples"
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), "samples")
}

// Load reads configuration from defaults, a .env file in the working
// directory, and environment variables, in increasing precedence.
func Load() (*Config, error) {
	return LoadFrom(".env")
}

// LoadFrom is Load with an explicit dotenv path. A missing file is ignored.
// Variables already set in the environment win over the file.
func LoadFrom(dotenv string) (*Config, error) {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", dotenv, err)
		}
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if err := k.Load(env.Provider(".", env.Opt{
		TransformFunc: func(key, value string) (string, any) {
			path, ok := envKeys[key]
			if !ok || value == "" {
				return "", nil
			}
			return path, value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints. Callers that override fields after
// Load (CLI flags) should validate again.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

var validate = validator.New()
