// Package app assembles stores, cache, publisher, services and the workflow
// controller from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"invoicedesk/internal/cache"
	"invoicedesk/internal/config"
	"invoicedesk/internal/events"
	"invoicedesk/internal/logging"
	"invoicedesk/internal/qr"
	"invoicedesk/internal/repository"
	"invoicedesk/internal/retry"
	"invoicedesk/internal/scanner"
	"invoicedesk/internal/service"
	"invoicedesk/internal/workflow"
)

type App struct {
	Config *config.Config
	Log    *slog.Logger

	Catalog   repository.CatalogStore
	Invoices  repository.InvoiceStore
	Products  *service.CatalogService
	Billing   *service.InvoiceService
	Sessions  *workflow.Registry
	Workflow  *workflow.Controller
	Scanner   *scanner.Adapter
	Decoder   *qr.MultiDecoder
	Publisher events.Publisher

	closers []func(context.Context) error
}

// New connects every backend named by cfg. On error whatever was already
// opened is closed again.
func New(ctx context.Context, cfg *config.Config, logOut io.Writer) (_ *App, err error) {
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	handler := logging.NewHandler(logOut, cfg.Log.Level, cfg.Log.Format)
	a.Log = slog.New(handler)

	var logStore logging.EntryAppender
	switch cfg.Store.Kind {
	case "mongo":
		db, err := a.connectMongo(ctx, cfg.Mongo.Database)
		if err != nil {
			return nil, err
		}
		catalog := repository.NewMongoCatalog(db)
		invoices := repository.NewMongoInvoices(db)
		if err := catalog.CreateIndexes(ctx); err != nil {
			return nil, fmt.Errorf("catalog indexes: %w", err)
		}
		if err := invoices.CreateIndexes(ctx); err != nil {
			return nil, fmt.Errorf("invoice indexes: %w", err)
		}
		a.Catalog, a.Invoices = catalog, invoices
		logStore = repository.NewMongoLogs(db)

		if cfg.Mongo.BackupDatabase != "" {
			backup, err := a.connectMongo(ctx, cfg.Mongo.BackupDatabase)
			if err != nil {
				return nil, fmt.Errorf("backup store: %w", err)
			}
			backupCatalog := repository.NewMongoCatalog(backup)
			if err := backupCatalog.CreateIndexes(ctx); err != nil {
				return nil, fmt.Errorf("backup catalog indexes: %w", err)
			}
			// логи пишутся только в резервную базу
			logStore = repository.NewMongoLogs(backup)
			a.Catalog = repository.NewMirroredCatalog(catalog, backupCatalog, a.Log)
			a.Invoices = repository.NewMirroredInvoices(invoices, repository.NewMongoInvoices(backup), a.Log)
		}
	default:
		store := repository.NewMemoryStore()
		a.Catalog, a.Invoices = store, repository.NewMemoryInvoices(store)
		logStore = store
	}

	if cfg.Log.Persist {
		a.Log = slog.New(logging.NewStoreHandler(handler, logStore, "invoicedesk", slog.LevelWarn))
	}

	var catalogCache cache.CatalogCache = cache.Nop{}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		catalogCache = cache.NewRedisCache(client)
	}

	a.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		p := events.NewKafkaPublisher(cfg.Kafka.Topic, cfg.Kafka.Brokers...)
		a.closers = append(a.closers, func(context.Context) error { return p.Close() })
		a.Publisher = p
	}

	a.Products = service.NewCatalogService(a.Catalog, catalogCache, a.Log)
	a.Billing = service.NewInvoiceService(a.Invoices, a.Publisher, a.Log)
	a.Sessions = workflow.NewRegistry()
	// stock goes through the service so the cached catalog is invalidated
	a.Workflow = workflow.NewController(a.Products, a.Invoices,
		retry.New(cfg.Retry.BaseDelay, a.Log), a.Log,
		workflow.WithMaxAttempts(cfg.Retry.MaxAttempts),
		workflow.WithMaxResumes(cfg.Workflow.MaxResumes),
		workflow.WithPublisher(a.Publisher),
	)
	a.Decoder = qr.NewDecoder()
	a.Scanner = scanner.NewAdapter(a.Products, a.Log)

	a.Log.Info("app ready", "store", cfg.Store.Kind, "cache", cfg.Redis.Addr != "", "events", len(cfg.Kafka.Brokers) > 0)
	return a, nil
}

func (a *App) connectMongo(ctx context.Context, database string) (*mongo.Database, error) {
	db, err := repository.ConnectMongoDB(ctx, a.Config.Mongo.URI, database)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(ctx context.Context) error { return db.Client().Disconnect(ctx) })
	return db, nil
}

// Close releases backends in reverse order of opening.
func (a *App) Close(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
