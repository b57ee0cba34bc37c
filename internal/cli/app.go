package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/matthewbaird/rentledger/internal/activity"
	"github.com/matthewbaird/rentledger/internal/config"
	"github.com/matthewbaird/rentledger/internal/event"
	"github.com/matthewbaird/rentledger/internal/eventbus"
	"github.com/matthewbaird/rentledger/internal/ledger"
	"github.com/matthewbaird/rentledger/internal/metrics"
	"github.com/matthewbaird/rentledger/internal/policy"
	"github.com/matthewbaird/rentledger/internal/receipt"
	"github.com/matthewbaird/rentledger/internal/store"
	"github.com/matthewbaird/rentledger/internal/stream"
)

// app is the wired service graph shared by the server and the maintenance
// commands.
type app struct {
	log      *zap.Logger
	db       *store.DB
	activity activity.Store
	bus      *eventbus.Bus
	hub      *stream.Hub
	metrics  *metrics.Metrics
	svc      *ledger.Service
}

// newApp opens the database and wires the ledger service. With migrate set
// the schema is created or upgraded first.
func newApp(ctx context.Context, e *env, migrate bool) (*app, error) {
	cfg, log := e.cfg, e.log

	pol := ledger.DefaultPolicy()
	if cfg.Policy.File != "" {
		p, err := policy.Load(cfg.Policy.File)
		if err != nil {
			return nil, err
		}
		pol = p
		log.Info("loaded ledger policy", zap.String("file", cfg.Policy.File))
	}

	db, err := store.Open(ctx, store.Config{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	}, log)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}

	a := &app{
		log:      log,
		db:       db,
		activity: activityStore(cfg.Activity, db),
		bus:      eventbus.New(cfg.EventBus.Buffer, log.Named("eventbus")),
	}

	var obs ledger.Observer
	var gauge stream.Gauge
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
		obs, gauge = a.metrics, a.metrics.StreamClients
		a.bus.Subscribe("metrics", eventbus.NewMetricsConsumer(a.metrics))
	}
	a.hub = stream.NewHub(log.Named("stream"), gauge)
	a.bus.Subscribe("log", eventbus.NewLogConsumer(log.Named("events")))
	a.bus.Subscribe("stream", a.hub)
	a.bus.Start(ctx)

	recorder := event.NewActivityRecorder(a.activity)
	recorder.SetPublisher(a.bus)

	a.svc = ledger.NewService(store.NewRepository(db), db, ledger.Options{
		Policy:   pol,
		Logger:   log.Named("ledger"),
		Events:   recorder,
		Receipts: receipt.NewDirStore(cfg.Receipts.Dir),
		Observer: obs,
	})
	return a, nil
}

func activityStore(cfg config.ActivityConfig, db *store.DB) activity.Store {
	if cfg.Store == "memory" {
		return activity.NewMemoryStore(cfg.MemoryLimit)
	}
	return activity.NewSQLStore(db.Driver(), db.Dialect())
}

// Close drains the event bus, then closes the database.
func (a *app) Close() error {
	a.bus.Stop()
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}
