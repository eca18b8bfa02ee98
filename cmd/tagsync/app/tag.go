package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/tagsync/internal/telemetry"
	"github.com/cognicore/tagsync/pkg/tagsync/annotator"
	"github.com/cognicore/tagsync/pkg/tagsync/cas"
	"github.com/cognicore/tagsync/pkg/tagsync/config"
	"github.com/cognicore/tagsync/pkg/tagsync/ingest"
	"github.com/cognicore/tagsync/pkg/tagsync/runner"
	"github.com/cognicore/tagsync/pkg/tagsync/store"
)

const defaultGracefulTimeout = 5 * time.Second

var tagCmd = &cobra.Command{
	Use:   "tag [flags] FILE...",
	Short: "Tag text or HTML files and store the annotated documents",
	Long: `Tag reads each file, splits it into token annotations, runs the configured
TreeTagger model over the tokens and stores the resulting documents.

Files ending in .html, .htm or .xhtml are reduced to their visible text first.
Tagged documents are printed to stdout unless --quiet is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTag,
}

func init() {
	tagCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	tagCmd.Flags().String("db", "", "Document store path, overrides store.path")
	tagCmd.Flags().String("parameter-override", "", "Properties file overriding the tagger model")
	tagCmd.Flags().String("metrics-addr", "", "Address to serve Prometheus metrics on, disabled when empty")
	tagCmd.Flags().Int("workers", 0, "Number of tagger processes, overrides workers")
	tagCmd.Flags().Bool("quiet", false, "Do not print tagged documents")
	bindFlags(tagCmd, "config", "db", "parameter-override", "metrics-addr", "workers", "quiet")

	if err := tagCmd.MarkFlagRequired("config"); err != nil {
		panic(fmt.Sprintf("mark config flag as required: %v", err))
	}
}

func runTag(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.Loader{
		ConfigPath:        viper.GetString("tag.config"),
		ParameterOverride: viper.GetString("tag.parameter-override"),
		StorePath:         viper.GetString("tag.db"),
	}
	comp, err := loader.Load()
	if err != nil {
		return err
	}
	workers := comp.Config.Workers
	if n := viper.GetInt("tag.workers"); n > 0 {
		workers = n
	}

	metrics, shutdownMetrics, err := startMetrics(viper.GetString("tag.metrics-addr"))
	if err != nil {
		return err
	}
	defer shutdownMetrics()

	st, err := comp.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	var out *documentWriter
	if !viper.GetBool("tag.quiet") {
		out = newDocumentWriter(cmd.OutOrStdout())
	}

	logger := slog.Default()
	r := runner.New(workers,
		func() (runner.Worker, error) {
			return comp.NewAnnotator(logger, metrics)
		},
		runner.WithLogger(logger),
		runner.WithHandler(func(ctx context.Context, doc *cas.Document, _ annotator.Report) error {
			if err := st.SaveDocument(ctx, store.Snapshot(doc)); err != nil {
				return err
			}
			if out == nil {
				return nil
			}
			return out.Write(doc)
		}),
	)

	logger.Info("Starting tagging", "model", comp.Parameter.Model(), "files", len(args), "workers", workers)

	sum, err := tagFiles(ctx, r, comp.Pipeline, args)
	if err != nil {
		return err
	}
	logger.Info("Tagging complete",
		"documents", sum.Documents,
		"tokens", sum.Tokens,
		"created", sum.Created,
		"skipped", sum.Skipped)
	return nil
}

// tagFiles reads paths in order and feeds the resulting documents to r.
func tagFiles(ctx context.Context, r *runner.Runner, pipeline *ingest.Pipeline, paths []string) (runner.Summary, error) {
	docs := make(chan *cas.Document)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(docs)
		for _, path := range paths {
			src, err := ingest.ReadFile(path)
			if err != nil {
				return err
			}
			doc, err := pipeline.Process(src)
			if err != nil {
				return fmt.Errorf("tokenize %s: %w", path, err)
			}
			select {
			case docs <- doc:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var sum runner.Summary
	g.Go(func() error {
		var err error
		sum, err = r.Run(gctx, docs)
		return err
	})

	err := g.Wait()
	return sum, err
}

// startMetrics serves Prometheus metrics on addr. With an empty addr it
// returns nil metrics, which record nothing.
func startMetrics(addr string) (*telemetry.Metrics, func(), error) {
	if addr == "" {
		return nil, func() {}, nil
	}

	provider, err := telemetry.NewPrometheusProvider()
	if err != nil {
		return nil, nil, fmt.Errorf("create metrics provider: %w", err)
	}
	metrics, err := telemetry.NewMetrics(provider)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, nil, fmt.Errorf("create metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", provider.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		slog.Info("Serving metrics", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
		if err := provider.Shutdown(ctx); err != nil {
			slog.Error("Metrics provider shutdown failed", "error", err)
		}
	}
	return metrics, shutdown, nil
}
