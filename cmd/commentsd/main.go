// Command commentsd is the composition root: it wires the sqlite store,
// tree engine, pub/sub fabric, report builder, download orchestrator, and
// HTTP API into a runnable server. Grounded on cmd/bd/main.go's cobra
// root command plus signal-aware context cancellation.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/sdk/metric"

	"github.com/rtyy/commentsd/internal/blobstore"
	"github.com/rtyy/commentsd/internal/config"
	"github.com/rtyy/commentsd/internal/download"
	"github.com/rtyy/commentsd/internal/httpapi"
	"github.com/rtyy/commentsd/internal/pubsub"
	"github.com/rtyy/commentsd/internal/report"
	"github.com/rtyy/commentsd/internal/store/sqlite"
	"github.com/rtyy/commentsd/internal/treeindex"
)

var (
	configPath string
	dbPath     string
	httpAddr   string
	blobRoot   string
	metricsOut bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "commentsd",
		Short: "Hierarchical comments service",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config YAML file")
	root.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides config)")
	root.PersistentFlags().StringVar(&httpAddr, "addr", "", "HTTP listen address (overrides config)")
	root.PersistentFlags().StringVar(&blobRoot, "blob-root", "", "blob storage directory (overrides config)")
	root.PersistentFlags().BoolVar(&metricsOut, "metrics-stdout", false, "emit OTEL metrics to stdout")

	root.AddCommand(serveCmd(), migrateCmd(), initdbCmd())
	return root
}

func loadConfig() (*config.Loader, config.Config, error) {
	loader, err := config.Load(configPath)
	if err != nil {
		return nil, config.Config{}, err
	}
	cfg := loader.Current()
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}
	if blobRoot != "" {
		cfg.BlobRoot = blobRoot
	}
	return loader, cfg, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the sqlite schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			st, err := sqlite.Open(ctx, cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()
			return st.Migrate(ctx)
		},
	}
}

// initdbCmd drops and recreates the schema, discarding all data. Mirrors
// core/main.py:initdb/_initdb, which is run by operators resetting a
// development or test instance rather than as part of normal deploys.
func initdbCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "initdb",
		Short: "Drop and recreate the schema, discarding all data",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("commentsd: initdb is destructive; pass --force to confirm")
			}
			_, cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			st, err := sqlite.Open(ctx, cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.DropSchema(ctx); err != nil {
				return fmt.Errorf("commentsd: drop schema: %w", err)
			}
			return st.Migrate(ctx)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "confirm the destructive reset")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader, cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("commentsd: load config: %w", err)
	}
	if err := loader.WatchForChanges(); err != nil {
		log.Printf("commentsd: config watch disabled: %v", err)
	}

	st, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("commentsd: open db: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("commentsd: migrate: %w", err)
	}

	blobs, err := blobstore.New(cfg.BlobRoot)
	if err != nil {
		return fmt.Errorf("commentsd: open blob store: %w", err)
	}

	engine := treeindex.NewEngine(st)

	meterProvider, shutdownMetrics, err := setupMetrics(metricsOut)
	if err != nil {
		return fmt.Errorf("commentsd: setup metrics: %w", err)
	}
	defer shutdownMetrics(context.Background())
	meter := meterProvider.Meter("commentsd")

	reg := pubsub.NewRegistry(meter)

	builder := report.NewBuilder(st, blobs, reg, cfg.ReportCapacity, meter)
	go builder.Run(ctx)
	defer builder.Stop()

	downloader := download.New(st, blobs, reg)

	srv := httpapi.NewServer(st, engine, downloader, meter)
	httpSrv := httpapi.NewHTTPServer(cfg.HTTPAddr, srv.Mux())

	errCh := make(chan error, 1)
	go func() {
		log.Printf("commentsd: listening on %s (db=%s blobs=%s)", cfg.HTTPAddr, cfg.DBPath, cfg.BlobRoot)
		if err := httpSrv.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Printf("commentsd: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// setupMetrics builds an OTEL MeterProvider. When toStdout is false, it
// still returns a valid no-export provider so Server.requestCounter works
// without requiring an observability backend in development.
func setupMetrics(toStdout bool) (*metric.MeterProvider, func(context.Context) error, error) {
	if !toStdout {
		mp := metric.NewMeterProvider()
		return mp, mp.Shutdown, nil
	}
	exporter, err := stdoutmetric.New()
	if err != nil {
		return nil, nil, err
	}
	mp := metric.NewMeterProvider(metric.WithReader(metric.NewPeriodicReader(exporter, metric.WithInterval(30*time.Second))))
	return mp, mp.Shutdown, nil
}
