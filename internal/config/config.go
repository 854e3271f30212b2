// Package config loads lexgraph configuration from TOML files and LEXGRAPH_*
// environment variables.
//
// Values are resolved in order: lexgraph.toml, the lexgraph.<env>.toml
// overlay selected by LEXGRAPH_ENV, defaults for anything still unset, and
// finally environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	BaseConfigFile       = "lexgraph.toml"
	OverlayConfigPattern = "lexgraph.%s.toml"

	EnvLexgraphEnv = "LEXGRAPH_ENV"

	EnvEngineStepTimeout = "LEXGRAPH_ENGINE_STEP_TIMEOUT"
	EnvEngineMaxSteps    = "LEXGRAPH_ENGINE_MAX_STEPS"
	EnvLogLevel          = "LEXGRAPH_LOG_LEVEL"
	EnvLogFormat         = "LEXGRAPH_LOG_FORMAT"
	EnvExportDir         = "LEXGRAPH_EXPORT_DIR"
)

// Config is the root configuration.
type Config struct {
	Engine EngineConfig `toml:"engine"`
	Store  StoreConfig  `toml:"store"`
	LLM    LLMConfig    `toml:"llm"`
	Server ServerConfig `toml:"server"`
	Log    LogConfig    `toml:"log"`
	Export ExportConfig `toml:"export"`
	Trace  TraceConfig  `toml:"trace"`
}

// EngineConfig bounds each engine call.
type EngineConfig struct {
	StepTimeout string `toml:"step_timeout"`
	MaxSteps    int    `toml:"max_steps"`
}

// StepTimeoutDuration returns StepTimeout as a time.Duration.
func (c *EngineConfig) StepTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.StepTimeout)
	return d
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// SlogLevel maps Level onto slog.
func (c *LogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ExportConfig locates exported documents.
type ExportConfig struct {
	Dir string `toml:"dir"`
}

// Env returns the LEXGRAPH_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvLexgraphEnv); env != "" {
		return env
	}
	return "local"
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values.
func Load() (*Config, error) {
	return LoadFile(BaseConfigFile)
}

// LoadFile is Load with an explicit base file. A missing base file is not an
// error; the overlay is looked up next to it.
func LoadFile(base string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(base); err == nil {
		loaded, err := load(base)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(base); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}
	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.Engine.StepTimeout != "" {
		c.Engine.StepTimeout = overlay.Engine.StepTimeout
	}
	if overlay.Engine.MaxSteps != 0 {
		c.Engine.MaxSteps = overlay.Engine.MaxSteps
	}
	if overlay.Log.Level != "" {
		c.Log.Level = overlay.Log.Level
	}
	if overlay.Log.Format != "" {
		c.Log.Format = overlay.Log.Format
	}
	if overlay.Export.Dir != "" {
		c.Export.Dir = overlay.Export.Dir
	}
	c.Store.Merge(&overlay.Store)
	c.LLM.Merge(&overlay.LLM)
	c.Server.Merge(&overlay.Server)
	c.Trace.Merge(&overlay.Trace)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Store.Finalize(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.LLM.Finalize(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Trace.Finalize(); err != nil {
		return fmt.Errorf("trace: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.Engine.StepTimeout == "" {
		c.Engine.StepTimeout = "2m"
	}
	if c.Engine.MaxSteps == 0 {
		c.Engine.MaxSteps = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Export.Dir == "" {
		c.Export.Dir = "exports"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvEngineStepTimeout); v != "" {
		c.Engine.StepTimeout = v
	}
	if v := os.Getenv(EnvEngineMaxSteps); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Engine.MaxSteps = n
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Log.Format = strings.ToLower(v)
	}
	if v := os.Getenv(EnvExportDir); v != "" {
		c.Export.Dir = v
	}
}

func (c *Config) validate() error {
	d, err := time.ParseDuration(c.Engine.StepTimeout)
	if err != nil {
		return fmt.Errorf("invalid engine.step_timeout: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("invalid engine.step_timeout: must be positive")
	}
	if c.Engine.MaxSteps < 1 {
		return fmt.Errorf("invalid engine.max_steps: %d", c.Engine.MaxSteps)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log.format: %q", c.Log.Format)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

func overlayPath(base string) string {
	env := os.Getenv(EnvLexgraphEnv)
	if env == "" {
		return ""
	}
	path := filepath.Join(filepath.Dir(base), fmt.Sprintf(OverlayConfigPattern, env))
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}
