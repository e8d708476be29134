// Package catalogapi provides the HTTP surface of the semantic type catalog.
// It owns the storage backend for the lifetime of the component and exposes
// the catalog, relation aggregator and feature indexer over REST.
package catalogapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/natsclient"

	"github.com/c360studio/semtypes/catalog"
	"github.com/c360studio/semtypes/labeling"
	"github.com/c360studio/semtypes/storage"
)

// errNotRunning is returned to HTTP callers before Start or after Stop.
var errNotRunning = errors.New("catalog-api is not running")

// Component implements the catalog-api component.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger
	metrics    *catalogMetrics

	// Runtime services, set by Start and cleared by Stop.
	backend    *storage.Backend
	catalog    *catalog.Catalog
	aggregator *labeling.Aggregator
	indexer    *labeling.Indexer
	search     *labeling.BleveIndexes

	// Lifecycle state machine
	// States: 0=stopped, 1=starting, 2=running, 3=stopping
	state     atomic.Int32
	startTime time.Time
	mu        sync.RWMutex
}

const (
	stateStopped  = 0
	stateStarting = 1
	stateRunning  = 2
	stateStopping = 3
)

// services is a consistent snapshot of the runtime services.
type services struct {
	catalog    *catalog.Catalog
	aggregator *labeling.Aggregator
	indexer    *labeling.Indexer
	search     *labeling.BleveIndexes
}

// NewComponent creates a new catalog-api component.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	var config Config
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	metrics, err := newCatalogMetrics(deps.MetricsRegistry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	return &Component{
		name:       ComponentName,
		config:     config,
		natsClient: deps.NATSClient,
		logger:     deps.GetLogger(),
		metrics:    metrics,
	}, nil
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized catalog-api",
		"backend", c.config.Backend,
		"types_bucket", c.config.TypesBucket,
		"columns_bucket", c.config.ColumnsBucket,
		"models_bucket", c.config.ModelsBucket)
	return nil
}

// Start opens the backend and builds the catalog services.
func (c *Component) Start(ctx context.Context) error {
	// Atomically transition from stopped to starting
	if !c.state.CompareAndSwap(stateStopped, stateStarting) {
		currentState := c.state.Load()
		if currentState == stateRunning || currentState == stateStarting {
			return fmt.Errorf("component already running or starting")
		}
		return fmt.Errorf("component in invalid state: %d", currentState)
	}

	// Ensure we transition to stopped if setup fails
	defer func() {
		if c.state.Load() == stateStarting {
			c.state.Store(stateStopped)
		}
	}()

	backendCfg := storage.BackendConfig{
		Kind:     c.config.Backend,
		BoltPath: c.config.BoltPath,
	}
	if c.config.Backend == storage.BackendNATS {
		if c.natsClient == nil {
			return fmt.Errorf("NATS client required for the nats backend")
		}
		js, err := c.natsClient.JetStream()
		if err != nil {
			return fmt.Errorf("get jetstream: %w", err)
		}
		backendCfg.JetStream = js
	}

	backend, err := storage.OpenBackend(backendCfg)
	if err != nil {
		return fmt.Errorf("open %s backend: %w", c.config.Backend, err)
	}

	svc, err := c.buildServices(ctx, backend)
	if err != nil {
		_ = backend.Close()
		return err
	}

	c.mu.Lock()
	c.backend = backend
	c.catalog = svc.catalog
	c.aggregator = svc.aggregator
	c.indexer = svc.indexer
	c.search = svc.search
	c.startTime = time.Now()
	c.mu.Unlock()

	// Transition to running
	c.state.Store(stateRunning)

	c.logger.Info("catalog-api started",
		"backend", backend.Kind(),
		"index_dir", c.config.IndexDir)

	return nil
}

func (c *Component) buildServices(ctx context.Context, backend *storage.Backend) (services, error) {
	open := func(name string) (storage.Bucket, error) {
		b, err := backend.Bucket(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("open bucket %s: %w", name, err)
		}
		return b, nil
	}

	var buckets catalog.Buckets
	var err error
	if buckets.Types, err = open(c.config.TypesBucket); err != nil {
		return services{}, err
	}
	if buckets.Columns, err = open(c.config.ColumnsBucket); err != nil {
		return services{}, err
	}
	if buckets.Models, err = open(c.config.ModelsBucket); err != nil {
		return services{}, err
	}
	relations, err := open(c.config.RelationsBucket)
	if err != nil {
		return services{}, err
	}
	features, err := open(c.config.FeaturesBucket)
	if err != nil {
		return services{}, err
	}

	cat, err := catalog.New(buckets, catalog.WithLogger(c.logger))
	if err != nil {
		return services{}, err
	}

	search, err := labeling.NewBleveIndexes(c.config.IndexDir)
	if err != nil {
		return services{}, fmt.Errorf("open search indexes: %w", err)
	}

	return services{
		catalog:    cat,
		aggregator: labeling.NewAggregator(relations, c.logger),
		indexer: labeling.NewIndexer(features,
			labeling.WithSearchIndex(search),
			labeling.WithIndexerLogger(c.logger)),
		search: search,
	}, nil
}

// Stop gracefully stops the component and releases the backend.
func (c *Component) Stop(_ time.Duration) error {
	// Atomically transition from running to stopping
	if !c.state.CompareAndSwap(stateRunning, stateStopping) {
		currentState := c.state.Load()
		if currentState == stateStopped || currentState == stateStopping {
			return nil
		}
		return fmt.Errorf("component in unexpected state: %d", currentState)
	}

	c.mu.Lock()
	backend, search := c.backend, c.search
	c.backend = nil
	c.catalog = nil
	c.aggregator = nil
	c.indexer = nil
	c.search = nil
	c.mu.Unlock()

	var errs []error
	if search != nil {
		errs = append(errs, search.Close())
	}
	if backend != nil {
		errs = append(errs, backend.Close())
	}

	c.state.Store(stateStopped)
	c.logger.Info("catalog-api stopped")

	return errors.Join(errs...)
}

// running returns the runtime services, or errNotRunning.
func (c *Component) running() (services, error) {
	if c.state.Load() != stateRunning {
		return services{}, errNotRunning
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.catalog == nil {
		return services{}, errNotRunning
	}
	return services{
		catalog:    c.catalog,
		aggregator: c.aggregator,
		indexer:    c.indexer,
		search:     c.search,
	}, nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        ComponentName,
		Type:        "processor",
		Description: "HTTP endpoints for the semantic type catalog, relation statistics and column features",
		Version:     "0.1.0",
	}
}

// InputPorts returns configured input port definitions.
func (c *Component) InputPorts() []component.Port {
	return []component.Port{}
}

// OutputPorts returns configured output port definitions.
func (c *Component) OutputPorts() []component.Port {
	return []component.Port{}
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return catalogAPISchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	state := c.state.Load()
	running := state == stateRunning

	c.mu.RLock()
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	switch state {
	case stateStarting:
		status = "starting"
	case stateRunning:
		status = "running"
	case stateStopping:
		status = "stopping"
	}

	return component.HealthStatus{
		Healthy:   running,
		LastCheck: time.Now(),
		Uptime:    time.Since(startTime),
		Status:    status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{}
}
