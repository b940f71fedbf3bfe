package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daybook-app/daybook/internal/client"
	"github.com/daybook-app/daybook/internal/config"
	"github.com/daybook-app/daybook/internal/metrics"
	"github.com/daybook-app/daybook/internal/model"
	"github.com/daybook-app/daybook/internal/service"
	"github.com/daybook-app/daybook/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var refresh bool

	root := &cobra.Command{
		Use:           "daybook",
		Short:         "Local-first document store client for the daybook productivity app",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default $DAYBOOK_CONFIG or ./daybook.yaml)")

	get := &cobra.Command{
		Use:   "get <collection> <id>",
		Short: "Fetch one document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(configPath, func(ctx context.Context, app *app) error {
				doc, err := app.sync.GetDocument(ctx, args[0], args[1], service.Options{ForceRefresh: refresh})
				if err != nil {
					return err
				}
				if doc == nil {
					return fmt.Errorf("document %s/%s not found", args[0], args[1])
				}
				return printJSON(cmd, doc)
			})
		},
	}
	get.Flags().BoolVar(&refresh, "refresh", false, "bypass the cache")

	list := &cobra.Command{
		Use:   "list <collection>",
		Short: "List a collection, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(configPath, func(ctx context.Context, app *app) error {
				docs, err := app.sync.GetCollection(ctx, args[0], service.Options{ForceRefresh: refresh})
				if err != nil {
					return err
				}
				return printJSON(cmd, docs)
			})
		},
	}
	list.Flags().BoolVar(&refresh, "refresh", false, "bypass the cache")

	set := &cobra.Command{
		Use:   "set <collection> <id> <json>",
		Short: "Replace a document",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := parseDocument(args[2])
			if err != nil {
				return err
			}
			return withClient(configPath, func(ctx context.Context, app *app) error {
				if err := app.sync.SetDocument(ctx, args[0], args[1], doc); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "saved locally; cloud sync incomplete: %v\n", err)
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return nil
			})
		},
	}

	add := &cobra.Command{
		Use:   "add <collection> <json>",
		Short: "Create a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := parseDocument(args[1])
			if err != nil {
				return err
			}
			return withClient(configPath, func(ctx context.Context, app *app) error {
				created, err := app.sync.AddDocument(ctx, args[0], doc)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "saved locally under %s; cloud sync incomplete: %v\n",
						model.DocID(created), err)
					return nil
				}
				return printJSON(cmd, created)
			})
		},
	}

	update := &cobra.Command{
		Use:   "update <collection> <id> <json>",
		Short: "Merge fields into a document",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			partial, err := parseDocument(args[2])
			if err != nil {
				return err
			}
			return withClient(configPath, func(ctx context.Context, app *app) error {
				if err := app.sync.UpdateDocument(ctx, args[0], args[1], partial); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "saved locally; cloud sync incomplete: %v\n", err)
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <collection> <id>",
		Short: "Delete a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(configPath, func(ctx context.Context, app *app) error {
				if err := app.sync.DeleteDocument(ctx, args[0], args[1]); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "deleted locally; cloud sync incomplete: %v\n", err)
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return nil
			})
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show remote reachability and pending sync state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(configPath, func(ctx context.Context, app *app) error {
				reachable := "online"
				if err := app.remote.Ping(ctx); err != nil {
					reachable = fmt.Sprintf("offline (%v)", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "remote: %s\npending writes: %d\n", reachable, app.sync.Dirty())
				return nil
			})
		},
	}

	sync := &cobra.Command{
		Use:   "sync",
		Short: "Push pending local writes to the remote store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(configPath, func(ctx context.Context, app *app) error {
				before := app.sync.Dirty()
				app.sync.Reconcile(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "reconciled %d of %d pending writes\n",
					before-app.sync.Dirty(), before)
				return nil
			})
		},
	}

	root.AddCommand(get, list, set, add, update, del, status, sync)
	return root
}

// app bundles everything withClient wires together.
type app struct {
	sync   *service.SyncService
	remote store.RemoteStore
	logger *zap.Logger
}

func withClient(configPath string, fn func(ctx context.Context, app *app) error) error {
	if configPath == "" {
		configPath = os.Getenv("DAYBOOK_CONFIG")
	}
	if configPath == "" {
		configPath = "./daybook.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	fallback, err := openFallback(cfg, logger)
	if err != nil {
		return err
	}
	defer fallback.Close()

	remote, err := client.NewHTTPRemote(cfg.Remote.BaseURL, cfg.Remote.AuthToken, cfg.Remote.RequestTimeout, logger)
	if err != nil {
		return err
	}

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		startMetricsServer(cfg.Metrics, logger)
	}

	cacheSvc := service.NewCacheService(logger, m)
	flightSvc := service.NewFlightService(m)
	retrySvc := service.NewRetryService(cfg.Retry.MaxRetries, cfg.Retry.BaseDelay, logger, m)
	batchSvc := service.NewBatchService(remote, cfg.Batch.Window, cfg.Batch.MaxSize, logger, m)
	defer batchSvc.Stop()

	syncSvc := service.NewSyncService(
		service.SyncConfig{
			OwnerID:     cfg.OwnerID,
			DefaultTTL:  cfg.Cache.DefaultTTL,
			ListingTTLs: cfg.Cache.ListingTTLs,
		},
		remote, fallback, cacheSvc, flightSvc, retrySvc, batchSvc, logger, m,
	)

	if cfg.Monitor.Enabled {
		monitorSvc := service.NewMonitorService(remote, cfg.Monitor.ProbeInterval, cfg.Monitor.ProbeTimeout, logger)
		monitorSvc.OnOnline(syncSvc.Reconcile)
		monitorSvc.Start()
		defer monitorSvc.Stop()
	}

	return fn(context.Background(), &app{sync: syncSvc, remote: remote, logger: logger})
}

func openFallback(cfg *config.Config, logger *zap.Logger) (store.FallbackStore, error) {
	switch cfg.Fallback.Driver {
	case "file":
		return store.NewFileStore(cfg.Fallback.Path, logger)
	default:
		return store.NewSQLiteStore(cfg.Fallback.Path, logger)
	}
}

// startMetricsServer exposes Prometheus metrics while the command runs.
func startMetricsServer(cfg config.MetricsConfig, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())
	addr := fmt.Sprintf(":%d", cfg.Port)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Warn("Metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("Metrics server listening", zap.String("addr", addr), zap.String("path", cfg.Path))
}

func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zcfg.Level = level
	return zcfg.Build()
}

func parseDocument(raw string) (model.Document, error) {
	var doc model.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("invalid document JSON: %w", err)
	}
	return doc, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
