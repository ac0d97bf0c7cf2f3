package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/gymflow/gymflow/internal/persistence"
	"github.com/gymflow/gymflow/internal/platform/cache"
	"github.com/gymflow/gymflow/internal/platform/db"
	"github.com/gymflow/gymflow/internal/usersync"
)

const redisKeyPrefix = "gymflow:"

// closers releases backend handles opened lazily by storage resolvers.
type closers struct {
	mu  sync.Mutex
	fns []func() error
}

func (c *closers) add(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fns = append(c.fns, fn)
}

func (c *closers) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for i := len(c.fns) - 1; i >= 0; i-- {
		if err := c.fns[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.fns = nil
	return errors.Join(errs...)
}

// NewPersistence builds the device storage adapter selected by cfg. Network
// and database backends are dialled on first use. The returned func closes
// whatever was opened.
func NewPersistence(cfg *ClientConfig, logger *slog.Logger) (persistence.Adapter, func() error, error) {
	if cfg == nil {
		return nil, nil, errors.New("app: nil client config")
	}
	var open closers
	switch cfg.Storage {
	case StorageMemory:
		return persistence.NewSyncAdapter(persistence.NewMemoryStorage(), cfg.StorageKey, logger), open.close, nil
	case StorageFile:
		return persistence.NewSyncAdapter(persistence.NewFileStorage(cfg.StoragePath), cfg.StorageKey, logger), open.close, nil
	case StorageRedis:
		resolve := func(ctx context.Context) (persistence.AsyncStorage, error) {
			client, err := cache.New(ctx, cfg.RedisAddr)
			if err != nil {
				return nil, err
			}
			open.add(client.Close)
			return cache.NewRedisStorage(client, redisKeyPrefix), nil
		}
		return persistence.NewAsyncAdapter(resolve, cfg.StorageKey, logger), open.close, nil
	case StoragePostgres:
		resolve := func(ctx context.Context) (persistence.AsyncStorage, error) {
			pool, err := db.New(ctx, cfg.PGDSN)
			if err != nil {
				return nil, err
			}
			storage, err := db.NewPostgresStorage(ctx, pool)
			if err != nil {
				pool.Close()
				return nil, err
			}
			open.add(func() error {
				pool.Close()
				return nil
			})
			return storage, nil
		}
		return persistence.NewAsyncAdapter(resolve, cfg.StorageKey, logger), open.close, nil
	case StorageSQLite:
		path := filepath.Join(cfg.StoragePath, "gymflow.db")
		resolve := func(ctx context.Context) (persistence.AsyncStorage, error) {
			if err := ensureDir(cfg.StoragePath); err != nil {
				return nil, err
			}
			conn, err := db.OpenSQLite(ctx, path)
			if err != nil {
				return nil, err
			}
			storage, err := db.NewSQLiteStorage(ctx, conn)
			if err != nil {
				_ = conn.Close()
				return nil, err
			}
			open.add(storage.Close)
			return storage, nil
		}
		return persistence.NewAsyncAdapter(resolve, cfg.StorageKey, logger), open.close, nil
	default:
		return nil, nil, fmt.Errorf("app: unknown storage %q", cfg.Storage)
	}
}

// StoreOptions carries the host-provided parts of a store that do not come
// from configuration.
type StoreOptions struct {
	Logger  *slog.Logger
	Metrics *usersync.Metrics
	Focus      <-chan struct{}
	Online     <-chan struct{}
	Foreground <-chan struct{}
}

// OpenStore opens a users store for cfg: remote when an API base URL is
// configured, otherwise backed by the configured device storage.
func OpenStore(ctx context.Context, cfg *ClientConfig, opts StoreOptions) (*usersync.Store, func() error, error) {
	if cfg == nil {
		return nil, nil, errors.New("app: nil client config")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	storeCfg := usersync.Config{
		Logger:  logger,
		Metrics: opts.Metrics,
		Revalidation: usersync.Revalidation{
			Strategy:     usersync.Strategy(cfg.Revalidation),
			PollInterval: cfg.PollInterval,
			Focus:        opts.Focus,
			Online:       opts.Online,
			Foreground:   opts.Foreground,
		},
	}

	release := func() error { return nil }
	if cfg.Remote() {
		storeCfg.BaseURL = cfg.APIBaseURL
		storeCfg.HTTPClient = &http.Client{Timeout: cfg.HTTPTimeout}
	} else {
		adapter, closeFn, err := NewPersistence(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		storeCfg.Persistence = adapter
		release = closeFn
	}

	store, err := usersync.Open(ctx, storeCfg)
	if err != nil {
		_ = release()
		return nil, nil, err
	}
	return store, func() error {
		return errors.Join(store.Close(), release())
	}, nil
}
