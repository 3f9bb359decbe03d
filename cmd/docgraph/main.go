package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/DeusData/docgraph/internal/builder"
	"github.com/DeusData/docgraph/internal/config"
	"github.com/DeusData/docgraph/internal/graph"
	"github.com/DeusData/docgraph/internal/libbuild"
	"github.com/DeusData/docgraph/internal/library"
	"github.com/DeusData/docgraph/internal/store"
	"github.com/DeusData/docgraph/internal/tools"
)

var version = "dev"

var (
	configPath string
	logFormat  string
	dbPath     string

	rootCmd = &cobra.Command{
		Use:           "docgraph",
		Short:         "Build a queryable code graph of Kotlin/Java applications and their libraries",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./"+config.DefaultFile+")")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides config)")
}

func main() {
	tools.Version = version
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// env is what every command needs: settings, the store and the builders.
type env struct {
	cfg    *config.Config
	store  *store.Store
	libs   *library.Index
	graphs *builder.Builder
	jars   *libbuild.Builder
}

func (e *env) Close() error {
	return e.store.Close()
}

// setup loads config, installs the logger and opens the store. deferLink
// configures the graph builder for the event-driven ingest chain.
func setup(deferLink bool) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := installLogger(os.Stderr, logFormat, cfg.EffectiveLogLevel()); err != nil {
		return nil, err
	}

	path := dbPath
	if path == "" {
		if path, err = cfg.EffectiveDBPath(); err != nil {
			return nil, err
		}
	}
	s, err := store.OpenPath(path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	slog.Debug("store.open", "path", path)

	idx, err := library.Load(s)
	if err != nil {
		s.Close()
		return nil, err
	}
	graphs := builder.New(s, idx, builder.Options{
		StrictValidation: cfg.EffectiveStrictValidation(),
		DeferLink:        deferLink,
		NodeBuild:        cfg.NodeBuildOptions(),
		LinkWorkers:      cfg.EffectiveLinkWorkers(),
		Refiners:         graph.DefaultRefiners(),
	})
	jars := libbuild.New(libbuild.StoreTx(s), idx, cfg.LibraryOptions())
	return &env{cfg: cfg, store: s, libs: idx, graphs: graphs, jars: jars}, nil
}

func installLogger(w io.Writer, format string, level slog.Level) error {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch format {
	case "text", "":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	slog.SetDefault(slog.New(h))
	return nil
}
