// Package config loads verity configuration: built-in defaults, then an
// optional TOML file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/papercomputeco/verity/pkg/backend"
	"github.com/papercomputeco/verity/pkg/pipeline"
)

// Environment variables read by Load.
const (
	EnvProvider = "VERITY_PROVIDER"
	EnvModel    = "VERITY_MODEL"
	EnvBaseURL  = "VERITY_BASE_URL"
	EnvSQLite   = "VERITY_SQLITE"
)

// apiKeyEnv lists, per provider, the variables consulted for an API key in
// order of preference.
var apiKeyEnv = map[string][]string{
	backend.ProviderGemini: {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	backend.ProviderOpenAI: {"OPENAI_API_KEY"},
}

var validate = validator.New()

// Config is the complete process configuration.
type Config struct {
	Backend     backend.Config    `toml:"backend"`
	Pipeline    PipelineConfig    `toml:"pipeline"`
	Server      ServerConfig      `toml:"server"`
	Transcripts TranscriptsConfig `toml:"transcripts"`
}

// PipelineConfig holds generation defaults and per-stage deadlines.
type PipelineConfig struct {
	Temperature      float64       `toml:"temperature" validate:"gte=0,lte=1"`
	ResponderTimeout time.Duration `toml:"responder_timeout" validate:"gte=0"`
	ValidatorTimeout time.Duration `toml:"validator_timeout" validate:"gte=0"`
}

// ServerConfig configures `verity serve`.
type ServerConfig struct {
	ListenAddr string `toml:"listen" validate:"required"`

	// Debug allows clients to request the draft and raw validator output.
	Debug bool `toml:"debug"`
}

// TranscriptsConfig configures transcript recording.
type TranscriptsConfig struct {
	// SQLite is the database path. Empty keeps transcripts in memory for the
	// server and disables recording for one-shot commands.
	SQLite string `toml:"sqlite"`
}

// Default returns the built-in configuration. The model is left empty and
// resolved per provider by Load.
func Default() *Config {
	return &Config{
		Backend: backend.Config{
			Provider: backend.ProviderGemini,
		},
		Pipeline: PipelineConfig{
			Temperature: 0.2,
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
	}
}

// Load reads configuration from path (optional) and the process environment.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("could not read config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
		}
	}

	providerFromFile := normalizeProvider(cfg.Backend.Provider)
	cfg.applyEnv(lookup)

	// Switching provider without naming a model selects that provider's default.
	if cfg.Backend.Provider != providerFromFile {
		if _, ok := lookup(EnvModel); !ok {
			cfg.Backend.Model = ""
		}
	}
	if cfg.Backend.Model == "" {
		cfg.Backend.Model = backend.DefaultModel(cfg.Backend.Provider)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvProvider); ok && v != "" {
		c.Backend.Provider = v
	}
	c.Backend.Provider = normalizeProvider(c.Backend.Provider)

	if v, ok := lookup(EnvModel); ok && v != "" {
		c.Backend.Model = v
	}
	if v, ok := lookup(EnvBaseURL); ok && v != "" {
		c.Backend.BaseURL = v
	}
	if v, ok := lookup(EnvSQLite); ok && v != "" {
		c.Transcripts.SQLite = v
	}

	if c.Backend.APIKey == "" {
		for _, name := range apiKeyEnv[c.Backend.Provider] {
			if v, ok := lookup(name); ok && v != "" {
				c.Backend.APIKey = v
				break
			}
		}
	}
}

func normalizeProvider(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Settings returns the default per-call settings.
func (c *Config) Settings() pipeline.Settings {
	return pipeline.Settings{
		Model:       c.Backend.Model,
		Temperature: c.Pipeline.Temperature,
	}
}

// PipelineOptions returns the pipeline options implied by the configuration.
func (c *Config) PipelineOptions() []pipeline.Option {
	return []pipeline.Option{
		pipeline.WithStageTimeouts(c.Pipeline.ResponderTimeout, c.Pipeline.ValidatorTimeout),
	}
}
