package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lexgraph/internal/config"
)

const baseConfig = `
[engine]
step_timeout = "45s"
max_steps = 50

[store]
driver = "postgres"
dsn = "postgres://lexgraph@localhost/lexgraph"

[llm]
provider = "anthropic"
api_key = "sk-test"
temperature = 0.0
max_tokens = 2048

[server]
port = 9000

[log]
level = "debug"
format = "json"

[export]
dir = "/var/lib/lexgraph/exports"
`

const overlayConfig = `
[server]
port = 9090

[store]
driver = "redis"
redis_addr = "redis:6379"
`

func writeConfig(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// clearEnv isolates a test from LEXGRAPH_* and provider variables set in the
// developer's shell.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		config.EnvLexgraphEnv, config.EnvLLMProvider, config.EnvLLMAPIKey, config.EnvLLMModel,
		config.EnvStoreDriver, config.EnvStoreDSN, config.EnvServerPort, config.EnvLogLevel,
		config.EnvTraceExporter, config.EnvTraceOutput,
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GOOGLE_API_KEY",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, t.TempDir(), config.BaseConfigFile, baseConfig)

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Engine.StepTimeoutDuration())
	assert.Equal(t, 50, cfg.Engine.MaxSteps)
	assert.Equal(t, config.DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "claude-sonnet-4-5", cfg.LLM.Model, "default model for provider")
	assert.Equal(t, 0.0, cfg.LLM.TemperatureValue(), "explicit zero is kept")
	assert.Equal(t, 2048, cfg.LLM.MaxTokens)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr())
	assert.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())
	assert.Equal(t, "/var/lib/lexgraph/exports", cfg.Export.Dir)
}

func TestLoadWithOverlay(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeConfig(t, dir, config.BaseConfigFile, baseConfig)
	writeConfig(t, dir, "lexgraph.staging.toml", overlayConfig)
	t.Setenv(config.EnvLexgraphEnv, "staging")

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Env())
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, config.DriverRedis, cfg.Store.Driver)
	assert.Equal(t, "redis:6379", cfg.Store.RedisAddr)
	assert.Equal(t, "postgres://lexgraph@localhost/lexgraph", cfg.Store.DSN, "from base")
	assert.Equal(t, 50, cfg.Engine.MaxSteps, "from base")
}

func TestLoadEnvVarOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, t.TempDir(), config.BaseConfigFile, baseConfig)
	t.Setenv(config.EnvServerPort, "3000")
	t.Setenv(config.EnvLLMProvider, "openai")
	t.Setenv(config.EnvLogLevel, "WARN")
	t.Setenv(config.EnvEngineMaxSteps, "12")

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, config.ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 12, cfg.Engine.MaxSteps)
}

func TestLoadNoConfigFile(t *testing.T) {
	clearEnv(t)
	cfg, err := config.LoadFile(filepath.Join(t.TempDir(), config.BaseConfigFile))
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.Engine.StepTimeoutDuration())
	assert.Equal(t, 100, cfg.Engine.MaxSteps)
	assert.Equal(t, config.DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "lexgraph.db", cfg.Store.DSN)
	assert.Equal(t, "lexgraph:", cfg.Store.RedisPrefix)
	assert.Equal(t, 5*time.Minute, cfg.Store.LockTTLDuration())
	assert.Equal(t, config.ProviderNone, cfg.LLM.Provider)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "local", cfg.Env())
	assert.False(t, cfg.Trace.Enabled())
}

func TestTraceExporterFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(config.EnvTraceExporter, "STDOUT")
	t.Setenv(config.EnvTraceOutput, "/tmp/spans.json")

	cfg, err := config.LoadFile(filepath.Join(t.TempDir(), config.BaseConfigFile))
	require.NoError(t, err)
	assert.True(t, cfg.Trace.Enabled())
	assert.Equal(t, config.TraceExporterStdout, cfg.Trace.Exporter)
	assert.Equal(t, "/tmp/spans.json", cfg.Trace.Output)
}

func TestProviderKeyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv(config.EnvLLMProvider, "google")

	_, err := config.LoadFile(filepath.Join(t.TempDir(), config.BaseConfigFile))
	require.Error(t, err, "google without a key")
	assert.Contains(t, err.Error(), "GOOGLE_API_KEY")

	t.Setenv("GOOGLE_API_KEY", "g-key")
	cfg, err := config.LoadFile(filepath.Join(t.TempDir(), config.BaseConfigFile))
	require.NoError(t, err)
	assert.Equal(t, "g-key", cfg.LLM.APIKey)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"bad step timeout", "[engine]\nstep_timeout = \"soon\""},
		{"negative step timeout", "[engine]\nstep_timeout = \"-1s\""},
		{"unknown driver", "[store]\ndriver = \"cassandra\""},
		{"mysql without dsn", "[store]\ndriver = \"mysql\""},
		{"redis without addr", "[store]\ndriver = \"redis\""},
		{"unknown provider", "[llm]\nprovider = \"llama\""},
		{"temperature out of range", "[llm]\nprovider = \"openai\"\napi_key = \"k\"\ntemperature = 3.5"},
		{"bad port", "[server]\nport = 70000"},
		{"bad log level", "[log]\nlevel = \"loud\""},
		{"bad log format", "[log]\nformat = \"xml\""},
		{"unknown trace exporter", "[trace]\nexporter = \"jaeger\""},
		{"malformed toml", "[engine\nmax_steps = 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			path := writeConfig(t, t.TempDir(), config.BaseConfigFile, tt.toml)
			_, err := config.LoadFile(path)
			assert.Error(t, err)
		})
	}
}

func TestMergeKeepsBaseForZeroFields(t *testing.T) {
	temp := 0.7
	base := &config.Config{
		LLM:   config.LLMConfig{Provider: "openai", Temperature: &temp, MaxTokens: 100},
		Store: config.StoreConfig{Driver: "mysql", DSN: "dsn"},
	}
	base.Merge(&config.Config{LLM: config.LLMConfig{MaxTokens: 200}})

	assert.Equal(t, "openai", base.LLM.Provider)
	assert.Equal(t, 0.7, base.LLM.TemperatureValue())
	assert.Equal(t, 200, base.LLM.MaxTokens)
	assert.Equal(t, "dsn", base.Store.DSN)
}
