// Package cli implements the clientradar command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/mfreeman451/clientradar/pkg/config"
	"github.com/mfreeman451/clientradar/pkg/core"
)

type rootOptions struct {
	cfgPath  string
	logLevel string
	stderr   io.Writer
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{stderr: os.Stderr}

	root := &cobra.Command{
		Use:           "clientradar",
		Short:         "OAuth client fleet monitor",
		Long:          `clientradar probes registered OAuth clients, alerts on failures, rolls up usage and purges aged data.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			_ = godotenv.Load()
		},
	}

	root.PersistentFlags().StringVar(&opts.cfgPath, "config", "/etc/clientradar/clientradar.json", "config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config")

	root.AddCommand(
		newServeCmd(opts),
		newCheckCmd(opts),
		newAggregateCmd(opts),
		newCleanupCmd(opts),
		newReportCmd(opts),
	)

	return root
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func (o *rootOptions) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Logging.Level
	if o.logLevel != "" {
		level = o.logLevel
	}

	logger, err := newLogger(o.stderr, level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}

	slog.SetDefault(logger)

	return cfg, logger, nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level

	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}

	switch strings.ToLower(format) {
	case "", "tint":
		return slog.New(tint.NewHandler(w, &tint.Options{Level: lvl, TimeFormat: time.RFC3339})), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// withServer builds the component graph for a one-shot command.
func (o *rootOptions) withServer(ctx context.Context, run func(*core.Server) error) error {
	cfg, logger, err := o.load()
	if err != nil {
		return err
	}

	srv, err := core.NewServer(ctx, cfg, logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := srv.Close(); err != nil {
			logger.Warn("failed to close", "err", err)
		}
	}()

	return run(srv)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
