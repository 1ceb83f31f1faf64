// Command edgeworker runs the ProchePro edge worker: the offline cache
// and push-notification agent backing the marketplace PWA.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/prochepro/edgeworker/internal/api"
	"github.com/prochepro/edgeworker/internal/cachestore"
	"github.com/prochepro/edgeworker/internal/classify"
	"github.com/prochepro/edgeworker/internal/conf"
	"github.com/prochepro/edgeworker/internal/datastore"
	"github.com/prochepro/edgeworker/internal/datastore/repository"
	"github.com/prochepro/edgeworker/internal/logger"
	"github.com/prochepro/edgeworker/internal/observability/metrics"
	"github.com/prochepro/edgeworker/internal/push"
	"github.com/prochepro/edgeworker/internal/strategy"
	"github.com/prochepro/edgeworker/internal/windows"
	"github.com/prochepro/edgeworker/internal/worker"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "edgeworker",
		Short:         "ProchePro edge worker: offline cache and push delivery",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Install, activate and serve the worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configFile)
		},
	}
	root.AddCommand(serve)
	return root
}

func runServe(configFile string) error {
	settings, err := conf.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.NewSlogLogger(os.Stderr, logLevel(settings.App.LogLevel), []logger.Field{
		logger.String("app", settings.App.Name),
	})

	origin, err := settings.App.Origin()
	if err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	m, err := metrics.New(promRegistry)
	if err != nil {
		return err
	}

	names := cachestore.Names{Prefix: settings.Cache.Prefix, Version: settings.Cache.Version}
	storage := cachestore.NewStorage()
	fetcher := strategy.NewNetworkFetcher(settings.Cache.FetchTimeout.Std())
	manager := cachestore.NewManager(storage, names, fetcher, origin,
		settings.Cache.PrecacheAssets, settings.Cache.OfflinePage, log)

	rules := classify.Rules{
		Origin:           origin,
		APIPrefix:        settings.Cache.APIPrefix,
		StaticExtensions: settings.Cache.StaticExtensions,
	}
	executor := strategy.NewExecutor(rules, manager, fetcher, log, m)

	registry := windows.NewRegistry(settings.Windows.ChannelBuffer, nil, log)

	notifier, err := push.NewNotifier(settings.Push.NotifierURLs, log)
	if err != nil {
		return fmt.Errorf("failed to configure notifier: %w", err)
	}

	// Delivery history is best-effort: run without it if the database
	// cannot be opened.
	var (
		history      *push.HistoryService
		deliveryRepo repository.PushDeliveryRepository
	)
	if settings.Push.HistoryPath != "" {
		db, dbErr := datastore.Open(settings.Push.HistoryPath)
		if dbErr != nil {
			log.Error("failed to open delivery history database, continuing without history",
				logger.Error(dbErr))
		} else {
			defer func() { _ = datastore.Close(db) }()
			deliveryRepo = repository.NewPushDeliveryRepository(db)
			history = push.NewHistoryService(deliveryRepo, log)
			history.StartRetentionCleanup(settings.Push.HistoryRetentionDays)
			defer history.Stop()
		}
	}

	defaults := push.Defaults{
		Title: settings.Push.DefaultTitle,
		Body:  settings.Push.DefaultBody,
		Icon:  settings.Push.DefaultIcon,
		Badge: settings.Push.DefaultBadge,
	}
	var recorder push.HistoryRecorder
	if history != nil {
		recorder = history
	}
	pushHandler := push.NewHandler(notifier, registry, recorder, defaults, log, m)

	w := worker.New(manager, executor, pushHandler, registry, log)
	worker.Initialize(w)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Startup(ctx); err != nil {
		return fmt.Errorf("worker startup failed: %w", err)
	}

	server := api.NewServer(w, registry, settings, deliveryRepo, promRegistry, log, m)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(settings.App.ListenAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		return server.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

func logLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		return logger.LogLevelDebug
	case "warn":
		return logger.LogLevelWarn
	case "error":
		return logger.LogLevelError
	default:
		return logger.LogLevelInfo
	}
}
