package persistence

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/gymflow/gymflow/internal/users"
)

// AsyncStorage is a key-value store whose calls block on I/O, the shape of
// device storage. ok is false when the key is absent.
type AsyncStorage interface {
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)
	SetItem(ctx context.Context, key, value string) error
}

// Resolver produces the storage on first use so that the backend is only
// dialled when the adapter is actually exercised.
type Resolver func(ctx context.Context) (AsyncStorage, error)

// Static returns a Resolver for an already constructed storage.
func Static(storage AsyncStorage) Resolver {
	return func(context.Context) (AsyncStorage, error) {
		if storage == nil {
			return nil, errors.New("persistence: nil storage")
		}
		return storage, nil
	}
}

// AsyncAdapter exposes a lazily resolved AsyncStorage through the Adapter
// contract. A failed resolution is retried on the next call.
type AsyncAdapter struct {
	resolve Resolver
	key     string
	logger  *slog.Logger

	mu      sync.Mutex
	storage AsyncStorage
}

// NewAsyncAdapter wraps resolve under key (DefaultKey when empty).
func NewAsyncAdapter(resolve Resolver, key string, logger *slog.Logger) *AsyncAdapter {
	if key == "" {
		key = DefaultKey
	}
	return &AsyncAdapter{resolve: resolve, key: key, logger: loggerOrDefault(logger)}
}

func (a *AsyncAdapter) backend(ctx context.Context) (AsyncStorage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.storage != nil {
		return a.storage, nil
	}
	if a.resolve == nil {
		return nil, errors.New("persistence: no storage resolver")
	}
	storage, err := a.resolve(ctx)
	if err != nil {
		return nil, err
	}
	a.storage = storage
	return storage, nil
}

// Load returns the stored list or an empty one on any failure.
func (a *AsyncAdapter) Load(ctx context.Context) []users.User {
	storage, err := a.backend(ctx)
	if err != nil {
		a.logger.Warn("persistence: storage unavailable", slog.String("key", a.key), slog.Any("error", err))
		return []users.User{}
	}
	raw, ok, err := storage.GetItem(ctx, a.key)
	if err != nil {
		a.logger.Warn("persistence: load failed", slog.String("key", a.key), slog.Any("error", err))
		return []users.User{}
	}
	if !ok {
		return []users.User{}
	}
	return decode(a.logger, a.key, raw)
}

// Save writes list as one JSON document; failures are only logged.
func (a *AsyncAdapter) Save(ctx context.Context, list []users.User) {
	storage, err := a.backend(ctx)
	if err != nil {
		a.logger.Warn("persistence: storage unavailable", slog.String("key", a.key), slog.Any("error", err))
		return
	}
	raw, err := encode(list)
	if err != nil {
		a.logger.Warn("persistence: encode failed", slog.String("key", a.key), slog.Any("error", err))
		return
	}
	if err := storage.SetItem(ctx, a.key, raw); err != nil {
		a.logger.Warn("persistence: save failed", slog.String("key", a.key), slog.Any("error", err))
	}
}
