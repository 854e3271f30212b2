package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/lexgraph/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "lexgraph",
	Short: "lexgraph orchestrates legal document workflows",
	Long: `lexgraph drafts, analyzes and objects to legal documents through a
graph of steps that pauses for human review and resumes with the reviewer's
decision.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", config.BaseConfigFile, "Path to the base TOML config file")
}

// withApp loads configuration, builds the app, runs fn and releases the app.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)
	if err := a.close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
