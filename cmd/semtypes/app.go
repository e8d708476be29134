package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/metric"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360studio/semtypes/catalog"
	"github.com/c360studio/semtypes/config"
	catalogapi "github.com/c360studio/semtypes/processor/catalog-api"
	"github.com/c360studio/semtypes/storage"
)

func runServe(ctx context.Context, flags globalFlags) error {
	printBanner()

	cfg, logger, err := setup(flags)
	if err != nil {
		return err
	}

	natsClient, err := maybeConnect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if natsClient != nil {
		defer natsClient.Close(ctx)
	}

	metricsRegistry := metric.NewMetricsRegistry()
	api, err := createCatalogAPI(cfg, component.Dependencies{
		NATSClient:      natsClient,
		MetricsRegistry: metricsRegistry,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	if err := api.Initialize(); err != nil {
		return fmt.Errorf("initialize catalog-api: %w", err)
	}

	// Setup signal handling
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := api.Start(signalCtx); err != nil {
		return fmt.Errorf("start catalog-api: %w", err)
	}
	defer func() {
		if err := api.Stop(cfg.Server.ShutdownTimeout); err != nil {
			logger.Warn("Catalog API stopped with error", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newMux(api, cfg.Server.Prefix, metricsRegistry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	logger.Info("Semtypes ready",
		"version", Version,
		"addr", cfg.Server.Addr,
		"prefix", cfg.Server.Prefix,
		"backend", cfg.Storage.Backend)

	select {
	case <-signalCtx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	logger.Info("Semtypes stopped")
	return nil
}

// maybeConnect connects to NATS when the nats backend is configured.
func maybeConnect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*natsclient.Client, error) {
	if !isNATSBackend(cfg) {
		return nil, nil
	}
	return connectToNATS(ctx, cfg.NATS.URL, logger)
}

func isNATSBackend(cfg *config.Config) bool {
	return strings.EqualFold(cfg.Storage.Backend, storage.BackendNATS)
}

// createCatalogAPI builds the catalog-api component through the registry.
func createCatalogAPI(cfg *config.Config, deps component.Dependencies) (*catalogapi.Component, error) {
	registry := component.NewRegistry()
	if err := catalogapi.Register(registry); err != nil {
		return nil, fmt.Errorf("register catalog-api: %w", err)
	}
	factory, ok := registry.GetFactory(catalogapi.ComponentName)
	if !ok {
		return nil, fmt.Errorf("catalog-api factory not registered")
	}

	raw, err := componentConfig(cfg)
	if err != nil {
		return nil, err
	}
	disc, err := factory(raw, deps)
	if err != nil {
		return nil, fmt.Errorf("create catalog-api: %w", err)
	}
	api, ok := disc.(*catalogapi.Component)
	if !ok {
		return nil, fmt.Errorf("unexpected catalog-api component type %T", disc)
	}
	return api, nil
}

// componentConfig renders the application config as catalog-api config.
func componentConfig(cfg *config.Config) (json.RawMessage, error) {
	raw, err := json.Marshal(catalogapi.Config{
		Backend:         cfg.Storage.Backend,
		BoltPath:        cfg.Storage.BoltPath,
		TypesBucket:     cfg.Storage.Buckets.Types,
		ColumnsBucket:   cfg.Storage.Buckets.Columns,
		ModelsBucket:    cfg.Storage.Buckets.Models,
		RelationsBucket: cfg.Storage.Buckets.Relations,
		FeaturesBucket:  cfg.Storage.Buckets.Features,
		IndexDir:        cfg.Search.IndexDir,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal catalog-api config: %w", err)
	}
	return raw, nil
}

// newMux mounts the catalog API, health and metrics endpoints.
func newMux(api *catalogapi.Component, prefix string, metricsRegistry *metric.MetricsRegistry) *http.ServeMux {
	mux := http.NewServeMux()
	api.RegisterHTTPHandlers(prefix, mux)

	mux.Handle("/metrics", promhttp.HandlerFor(metricsRegistry.PrometheusRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		health := api.Health()
		status := http.StatusOK
		if !health.Healthy {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  health.Status,
			"healthy": health.Healthy,
			"uptime":  health.Uptime.String(),
		})
	})
	return mux
}

// store is a directly opened catalog for the offline commands.
type store struct {
	catalog    *catalog.Catalog
	backend    *storage.Backend
	natsClient *natsclient.Client
}

// openStore opens the configured backend and builds a catalog over it.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store, error) {
	natsClient, err := maybeConnect(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	s := &store{natsClient: natsClient}

	backendCfg := storage.BackendConfig{
		Kind:     cfg.Storage.Backend,
		BoltPath: cfg.Storage.BoltPath,
	}
	if natsClient != nil {
		js, err := natsClient.JetStream()
		if err != nil {
			s.close(ctx)
			return nil, fmt.Errorf("get jetstream: %w", err)
		}
		backendCfg.JetStream = js
	}
	if s.backend, err = storage.OpenBackend(backendCfg); err != nil {
		s.close(ctx)
		return nil, err
	}

	var buckets catalog.Buckets
	for _, b := range []struct {
		name string
		dst  *storage.Bucket
	}{
		{cfg.Storage.Buckets.Types, &buckets.Types},
		{cfg.Storage.Buckets.Columns, &buckets.Columns},
		{cfg.Storage.Buckets.Models, &buckets.Models},
	} {
		if *b.dst, err = s.backend.Bucket(ctx, b.name); err != nil {
			s.close(ctx)
			return nil, fmt.Errorf("open bucket %s: %w", b.name, err)
		}
	}

	if s.catalog, err = catalog.New(buckets, catalog.WithLogger(logger)); err != nil {
		s.close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *store) close(ctx context.Context) {
	if s.backend != nil {
		_ = s.backend.Close()
	}
	if s.natsClient != nil {
		_ = s.natsClient.Close(ctx)
	}
}
