package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-production-goals/internal/cache"
	"github.com/tbourn/go-production-goals/internal/config"
	"github.com/tbourn/go-production-goals/internal/events"
	httpapi "github.com/tbourn/go-production-goals/internal/http"
	"github.com/tbourn/go-production-goals/internal/repo"
)

// app owns the process-wide resources the server runs on.
type app struct {
	db     *gorm.DB
	cache  cache.KeyCache
	events events.Publisher

	closers []func() error
}

// openDB connects with the configured driver.
func openDB(cfg config.DBConfig, tracing bool) (*gorm.DB, error) {
	db, err := repo.Open(repo.Options{
		Driver:       cfg.Driver,
		Path:         cfg.Path,
		DSN:          cfg.DSN,
		MaxOpenConns: cfg.MaxOpenConns,
		Tracing:      tracing,
		LogSQL:       cfg.LogSQL,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}
	return db, nil
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// openApp connects the store, the idempotency cache and the event publisher.
// On error everything opened so far is closed again.
func openApp(ctx context.Context, cfg config.Config, migrate bool) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	db, err := openDB(cfg.DB, cfg.OTEL.Enabled)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, func() error { return closeDB(db) })

	if migrate {
		if err := repo.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	switch cfg.Cache.Backend {
	case "redis":
		rc, err := cache.NewRedis(ctx, cache.RedisOptions{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		a.cache = rc
		a.closers = append(a.closers, rc.Close)
	default:
		a.cache = cache.NewMemory()
	}

	if len(cfg.Kafka.Brokers) > 0 {
		k := events.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		a.events = k
		a.closers = append(a.closers, k.Close)
	} else {
		a.events = events.Nop{}
	}

	log.Info().
		Str("db_driver", cfg.DB.Driver).
		Str("cache", cfg.Cache.Backend).
		Bool("kafka", len(cfg.Kafka.Brokers) > 0).
		Msg("resources ready")
	return a, nil
}

// handler builds the gin engine with every route registered.
func (a *app) handler(cfg config.Config) http.Handler {
	r := gin.New()
	httpapi.RegisterRoutes(r, cfg, httpapi.Deps{
		DB:     a.db,
		Cache:  a.cache,
		Events: a.events,
	})
	return r
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
