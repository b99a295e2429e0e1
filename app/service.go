package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/shopspring/decimal"

	apidispatch "github.com/mergeeats/core/api/dispatch"
	"github.com/mergeeats/core/api/orders"
	"github.com/mergeeats/core/api/partners"
	"github.com/mergeeats/core/config"
	"github.com/mergeeats/core/core/dispatch"
	dispatchlog "github.com/mergeeats/core/core/dispatch/logging"
	"github.com/mergeeats/core/core/merge"
	coremetrics "github.com/mergeeats/core/core/metrics"
	"github.com/mergeeats/core/core/model"
	coremon "github.com/mergeeats/core/core/monitoring"
	"github.com/mergeeats/core/core/order"
	"github.com/mergeeats/core/core/partner"
	"github.com/mergeeats/core/infra/kpi"
	"github.com/mergeeats/core/infra/logger"
	"github.com/mergeeats/core/infra/metrics"
	"github.com/mergeeats/core/infra/monitoring"
	"github.com/mergeeats/core/infra/mqtt"
	"github.com/mergeeats/core/infra/ws"
	"github.com/mergeeats/core/internal/eventbus"
)

// Service wires the order store, merge engine, dispatch manager and all
// transports into one runnable unit.
type Service struct {
	Store    order.Store
	Registry *partner.Registry
	Merger   *merge.Engine
	Manager  *dispatch.Manager
	Hub      *ws.Hub

	mux      *http.ServeMux
	tracker  *mqtt.Tracker
	logStore dispatchlog.LogStore
	kpiStore *kpi.SQLiteStore
	bus      eventbus.EventBus
	log      logger.Logger
	cfg      *config.Config
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	monitor, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(monitor)

	fee, err := decimal.NewFromString(cfg.Orders.DeliveryFee)
	if err != nil {
		return nil, fmt.Errorf("delivery fee %q: %w", cfg.Orders.DeliveryFee, err)
	}
	catalog := order.NewStaticCatalog()
	if cfg.Orders.CatalogPath != "" {
		if err := loadCatalog(catalog, cfg.Orders.CatalogPath); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
	}
	store := order.NewMemoryStore(catalog, fee)
	registry := partner.NewRegistry(cfg.Partners)

	hub := ws.NewHub(logger.New("ws"))

	var sinks []coremetrics.MetricsSink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink()
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxURL != "" {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(
			cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken,
			cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket))
	}
	var kpiStore *kpi.SQLiteStore
	if cfg.Metrics.KPIDBPath != "" {
		kpiStore, err = kpi.NewSQLiteStore(cfg.Metrics.KPIDBPath)
		if err != nil {
			return nil, fmt.Errorf("kpi store: %w", err)
		}
		sinks = append(sinks, metrics.NewKPISink(kpiStore, nil))
	}
	var sink coremetrics.MetricsSink = coremetrics.NopSink{}
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	bus := eventbus.New()
	manager, err := dispatch.NewManager(store, catalog, registry, hub, cfg.Dispatch, sink, bus, logger.New("dispatch"))
	if err != nil {
		return nil, fmt.Errorf("dispatch manager: %w", err)
	}

	logStore, err := newLogStore(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("dispatch log: %w", err)
	}
	manager.SetLogStore(logStore)

	merger := merge.NewEngine(store, cfg.Merge, logger.New("merge"))

	mux := http.NewServeMux()
	orders.NewHandler(store, merger, manager, hub, logger.New("api-orders")).Register(mux)
	partners.NewHandler(registry, manager, logger.New("api-partners")).Register(mux)
	if cfg.Server.AdminToken != "" {
		mux.Handle("GET /api/dispatch/logs", apidispatch.NewLogHandler(logStore, cfg.Server.AdminToken))
	}
	mux.Handle("GET /ws", hub)

	svc := &Service{
		Store:    store,
		Registry: registry,
		Merger:   merger,
		Manager:  manager,
		Hub:      hub,
		mux:      mux,
		logStore: logStore,
		kpiStore: kpiStore,
		bus:      bus,
		log:      logg,
		cfg:      cfg,
	}
	if cfg.MQTT.Enabled {
		tracker, err := mqtt.NewTracker(cfg.MQTT.Client, registry)
		if err != nil {
			return nil, fmt.Errorf("mqtt tracker: %w", err)
		}
		svc.tracker = tracker
	}
	return svc, nil
}

// Run starts the HTTP listeners and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	metrics.StartEventCollector(ctx, s.bus)
	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	srv := &http.Server{Addr: s.cfg.Server.Addr, Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", s.cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Close releases resources held by the service. The manager owns the bus
// and the dispatch log store and closes them itself.
func (s *Service) Close() error {
	err := s.Manager.Close()
	if herr := s.Hub.Close(); herr != nil && err == nil {
		err = herr
	}
	if s.tracker != nil {
		s.tracker.Disconnect()
	}
	if s.kpiStore != nil {
		if kerr := s.kpiStore.Close(); kerr != nil && err == nil {
			err = kerr
		}
	}
	coremon.Flush(2 * time.Second)
	return err
}

func newLogStore(cfg config.LoggingConfig) (dispatchlog.LogStore, error) {
	switch cfg.Backend {
	case "memory":
		return dispatchlog.NewMemoryStore(), nil
	default:
		return dispatchlog.NewJSONLStore(cfg.Path)
	}
}

type catalogFile struct {
	Restaurants []struct {
		model.Restaurant
		Menu []model.MenuItem `json:"menu"`
	} `json:"restaurants"`
}

func loadCatalog(c *order.StaticCatalog, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f catalogFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for _, r := range f.Restaurants {
		c.AddRestaurant(r.Restaurant, r.Menu)
	}
	return nil
}
