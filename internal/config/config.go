// Package config handles loading and validating console configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/howard-nolan/apiconsole/internal/models"
	"github.com/howard-nolan/apiconsole/internal/request"
)

// EnvPrefix is the prefix for environment variable overrides:
// APICONSOLE_SERVER_PORT -> server.port.
const EnvPrefix = "APICONSOLE_"

// Names of the environment variables the default config reads credentials
// and the image model from.
const (
	ChatKeyEnv       = "LLM7_API_KEY"
	MultimodalKeyEnv = "GEMINI_API_KEY"
	ImageModelEnv    = "LLM7_IMAGE_MODEL"
)

// Config is the top-level configuration for the console backend.
type Config struct {
	Server    ServerConfig        `koanf:"server"`
	Log       LogConfig           `koanf:"log"`
	Providers ProvidersConfig     `koanf:"providers"`
	Image     ImageConfig         `koanf:"image"`
	Defaults  DefaultsConfig      `koanf:"defaults"`
	Registry  []models.Definition `koanf:"registry" validate:"dive"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	ServiceName     string        `koanf:"service_name" validate:"required"`
	Envelope        string        `koanf:"envelope" validate:"oneof=plain coded"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes" validate:"gt=0"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"oneof=console json"`
}

// ProvidersConfig holds the two upstream providers.
type ProvidersConfig struct {
	Chat       ProviderConfig `koanf:"chat"`
	Multimodal ProviderConfig `koanf:"multimodal"`
}

// ProviderConfig holds the settings for a single upstream provider. An
// empty APIKey is allowed; routes that need the provider then answer 500.
type ProviderConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url" validate:"omitempty,url"`
}

// ImageConfig controls image generation defaults.
type ImageConfig struct {
	DefaultModel string        `koanf:"default_model" validate:"required"`
	DefaultSize  string        `koanf:"default_size" validate:"dimensions"`
	CacheTTL     time.Duration `koanf:"cache_ttl" validate:"gt=0"`
}

// DefaultsConfig holds the model used by each route when the caller
// doesn't name one, plus the /ask system prompt.
type DefaultsConfig struct {
	AskModel     string `koanf:"ask_model" validate:"required"`
	VisionModel  string `koanf:"vision_model" validate:"required"`
	StreamModel  string `koanf:"stream_model" validate:"required"`
	SystemPrompt string `koanf:"system_prompt"`
}

// defaults is the baseline every other source layers on top of.
func defaults() map[string]any {
	return map[string]any{
		"server.port":             8080,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "0s", // streams can run long
		"server.shutdown_timeout": "15s",
		"server.service_name":     "lxid-api",
		"server.envelope":         "plain",
		"server.max_body_bytes":   1 << 20,

		"log.level":  "info",
		"log.format": "console",

		"providers.chat.api_key":        "${" + ChatKeyEnv + "}",
		"providers.chat.base_url":       "https://api.llm7.io/v1",
		"providers.multimodal.api_key":  "${" + MultimodalKeyEnv + "}",
		"providers.multimodal.base_url": "",

		"image.default_model": "${" + ImageModelEnv + "}",
		"image.default_size":  "1024x1024",
		"image.cache_ttl":     "5m",

		"defaults.ask_model":     models.DefaultChatModel,
		"defaults.vision_model":  models.DefaultChatModel,
		"defaults.stream_model":  models.DefaultStreamModel,
		"defaults.system_prompt": "",
	}
}

// FallbackImageModel is used when LLM7_IMAGE_MODEL is unset and no model
// list can be fetched.
const FallbackImageModel = "flux"

// Load builds the Config from built-in defaults, an optional YAML file at
// path, and APICONSOLE_ environment overrides, in that order. A missing
// file is not an error.
func Load(path string) (*Config, error) {
	// Load .env.local and .env into the process environment (ignored if
	// not present). godotenv never overwrites a variable that is already
	// set, so .env.local goes first to win over .env.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("loading config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("checking config file: %w", err)
		}
	}

	// Layer environment variables on top. Keys themselves contain
	// underscores (read_timeout), so the env name is matched against the
	// keys already loaded before falling back to treating every
	// underscore as a separator:
	//   APICONSOLE_SERVER_READ_TIMEOUT -> server.read_timeout
	known := make(map[string]string)
	for _, key := range k.Keys() {
		known[strings.ReplaceAll(key, ".", "_")] = key
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		name := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		if key, ok := known[name]; ok {
			return key
		}
		return strings.ReplaceAll(name, "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR_NAME} placeholders. koanf doesn't do this on its own.
	cfg.Providers.Chat.APIKey = expandEnv(cfg.Providers.Chat.APIKey)
	cfg.Providers.Multimodal.APIKey = expandEnv(cfg.Providers.Multimodal.APIKey)
	cfg.Image.DefaultModel = expandEnv(cfg.Image.DefaultModel)
	if cfg.Image.DefaultModel == "" {
		cfg.Image.DefaultModel = FallbackImageModel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandEnv replaces a whole-value ${VAR} placeholder with the variable's
// value. Anything else is returned as is.
func expandEnv(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
		return strings.TrimSpace(os.Getenv(v[2 : len(v)-1]))
	}
	return v
}

// Validate checks field constraints and that a configured registry can be
// built.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("dimensions", func(fl validator.FieldLevel) bool {
		return request.ValidSize(fl.Field().String())
	}); err != nil {
		return fmt.Errorf("registering validators: %w", err)
	}
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if len(c.Registry) > 0 {
		if _, err := models.New(c.Registry); err != nil {
			return fmt.Errorf("invalid config: registry: %w", err)
		}
	}
	return nil
}

// ModelRegistry returns the configured model table, or the built-in one
// when the config doesn't list any.
func (c *Config) ModelRegistry() (*models.Registry, error) {
	if len(c.Registry) == 0 {
		return models.Default(), nil
	}
	return models.New(c.Registry)
}
