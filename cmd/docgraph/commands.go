package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/DeusData/docgraph/internal/events"
	"github.com/DeusData/docgraph/internal/libbuild"
	"github.com/DeusData/docgraph/internal/metrics"
	"github.com/DeusData/docgraph/internal/tools"
	"github.com/DeusData/docgraph/internal/watcher"
)

var (
	appKey      string
	classpath   []string
	metricsAddr string
	watch       bool

	buildCmd = &cobra.Command{
		Use:   "build <repo>",
		Short: "Walk a repository, upsert its declarations and link the graph",
		Args:  cobra.ExactArgs(1),
		RunE:  runBuild,
	}
	linkCmd = &cobra.Command{
		Use:   "link <app>",
		Short: "Re-derive the edges of an application that was already built",
		Args:  cobra.ExactArgs(1),
		RunE:  runLink,
	}
	libsCmd = &cobra.Command{
		Use:   "libs <jar or dir>...",
		Short: "Analyze library jars and record their integration points",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runLibs,
	}
	ingestCmd = &cobra.Command{
		Use:   "ingest <repo>",
		Short: "Build the classpath libraries, then the application graph, then link it",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngest,
	}
	appsCmd = &cobra.Command{
		Use:   "apps",
		Short: "List built applications",
		Args:  cobra.NoArgs,
		RunE:  runApps,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the graph over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "docgraph", version)
		},
	}
)

func init() {
	for _, c := range []*cobra.Command{buildCmd, ingestCmd} {
		c.Flags().StringVar(&appKey, "app", "", "application key (default: repository directory name)")
		c.Flags().StringSliceVar(&classpath, "classpath", nil, "jar files or directories on the classpath")
	}
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	serveCmd.Flags().BoolVar(&watch, "watch", false, "rebuild applications when their sources change")

	rootCmd.AddCommand(buildCmd, linkCmd, libsCmd, ingestCmd, appsCmd, serveCmd, versionCmd)
}

func appFor(repo string) (string, string, error) {
	abs, err := filepath.Abs(repo)
	if err != nil {
		return "", "", err
	}
	if appKey != "" {
		return appKey, abs, nil
	}
	return filepath.Base(abs), abs, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runBuild(cmd *cobra.Command, args []string) error {
	app, root, err := appFor(args[0])
	if err != nil {
		return err
	}
	e, err := setup(false)
	if err != nil {
		return err
	}
	defer e.Close()

	res, err := e.graphs.Build(cmd.Context(), app, root, classpath)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func runLink(cmd *cobra.Command, args []string) error {
	e, err := setup(false)
	if err != nil {
		return err
	}
	defer e.Close()

	res, err := e.graphs.Link(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func runLibs(cmd *cobra.Command, args []string) error {
	e, err := setup(false)
	if err != nil {
		return err
	}
	defer e.Close()

	jars, err := libbuild.Jars(args)
	if err != nil {
		return err
	}
	res, err := e.jars.BuildAll(cmd.Context(), jars)
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d of %d artifacts failed", res.Failed, len(jars))
	}
	return nil
}

// runIngest drives the event chain and waits for it to settle.
func runIngest(cmd *cobra.Command, args []string) error {
	app, root, err := appFor(args[0])
	if err != nil {
		return err
	}
	e, err := setup(true)
	if err != nil {
		return err
	}
	defer e.Close()

	bus := events.NewBus(cmd.Context())
	events.Wire(bus, e.jars, e.graphs)

	var mu sync.Mutex
	summary := map[string]any{}
	var failure error
	record := func(key string, result any, err error) {
		mu.Lock()
		defer mu.Unlock()
		if result != nil {
			summary[key] = result
		}
		if err != nil {
			summary[key+"_error"] = err.Error()
		}
	}
	bus.Subscribe(events.TopicLibraryBuildCompleted, func(_ context.Context, ev events.Event) {
		done := ev.(events.LibraryBuildCompleted)
		if errors.Is(done.Err, libbuild.ErrNoJars) {
			return
		}
		record("libraries", done.Result, done.Err)
	})
	bus.Subscribe(events.TopicGraphBuildCompleted, func(_ context.Context, ev events.Event) {
		done := ev.(events.GraphBuildCompleted)
		record("build", done.Result, done.Err)
		if done.Err != nil {
			mu.Lock()
			failure = done.Err
			mu.Unlock()
		}
	})
	bus.Subscribe(events.TopicLinkCompleted, func(_ context.Context, ev events.Event) {
		done := ev.(events.LinkCompleted)
		record("link", done.Result, done.Err)
		if done.Err != nil {
			mu.Lock()
			failure = done.Err
			mu.Unlock()
		}
	})

	in := events.NewIngest(app, root, classpath)
	summary["run_id"] = in.RunID
	bus.Publish(events.LibraryBuildRequested{Ingest: in})
	bus.Wait()

	if err := printJSON(cmd.OutOrStdout(), summary); err != nil {
		return err
	}
	return failure
}

func runApps(cmd *cobra.Command, _ []string) error {
	e, err := setup(false)
	if err != nil {
		return err
	}
	defer e.Close()

	apps, err := e.store.ListApplications()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, a := range apps {
		nodes, _ := e.store.CountNodes(a.ID)
		edges, _ := e.store.CountEdges(a.ID)
		fmt.Fprintf(out, "%-24s %8d nodes %8d edges  %s\n", a.Key, nodes, edges, a.RepoPath)
	}
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	e, err := setup(false)
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := cmd.Context()

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			slog.Info("metrics.listen", "addr", metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics.serve", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if watch {
		w := watcher.New(e.store, func(ctx context.Context, app, root string) error {
			_, err := e.graphs.Build(ctx, app, root, nil)
			return err
		})
		go w.Run(ctx)
	}

	srv := tools.NewServer(e.store, e.graphs, e.jars)
	slog.Info("mcp.serve", "version", version)
	return srv.MCPServer().Run(ctx, &mcp.StdioTransport{})
}
