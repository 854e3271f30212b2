package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	EnvTraceExporter = "LEXGRAPH_TRACE_EXPORTER"
	EnvTraceOutput   = "LEXGRAPH_TRACE_OUTPUT"
)

// Trace exporters.
const (
	TraceExporterNone   = "none"
	TraceExporterStdout = "stdout"
)

// TraceConfig selects where OpenTelemetry spans go. With exporter "none" no
// spans are produced.
type TraceConfig struct {
	Exporter string `toml:"exporter"`
	// Output is a file path for the stdout exporter; empty writes to stderr.
	Output string `toml:"output"`
}

// Enabled reports whether spans are exported.
func (c *TraceConfig) Enabled() bool {
	return c.Exporter != TraceExporterNone
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *TraceConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *TraceConfig) Merge(overlay *TraceConfig) {
	if overlay.Exporter != "" {
		c.Exporter = overlay.Exporter
	}
	if overlay.Output != "" {
		c.Output = overlay.Output
	}
}

func (c *TraceConfig) loadDefaults() {
	if c.Exporter == "" {
		c.Exporter = TraceExporterNone
	}
}

func (c *TraceConfig) loadEnv() {
	if v := os.Getenv(EnvTraceExporter); v != "" {
		c.Exporter = strings.ToLower(v)
	}
	if v := os.Getenv(EnvTraceOutput); v != "" {
		c.Output = v
	}
}

func (c *TraceConfig) validate() error {
	switch c.Exporter {
	case TraceExporterNone, TraceExporterStdout:
		return nil
	default:
		return fmt.Errorf("invalid exporter: %q", c.Exporter)
	}
}
