package persistence

import (
	"context"
	"log/slog"

	"github.com/gymflow/gymflow/internal/users"
)

// SyncStorage is a synchronous key-value store, the shape of browser
// localStorage. ok is false when the key is absent.
type SyncStorage interface {
	GetItem(key string) (value string, ok bool, err error)
	SetItem(key, value string) error
}

// SyncAdapter exposes a SyncStorage through the Adapter contract.
type SyncAdapter struct {
	storage SyncStorage
	key     string
	logger  *slog.Logger
}

// NewSyncAdapter wraps storage under key (DefaultKey when empty).
func NewSyncAdapter(storage SyncStorage, key string, logger *slog.Logger) *SyncAdapter {
	if key == "" {
		key = DefaultKey
	}
	return &SyncAdapter{storage: storage, key: key, logger: loggerOrDefault(logger)}
}

// Load returns the stored list or an empty one on any failure.
func (a *SyncAdapter) Load(ctx context.Context) []users.User {
	if a.storage == nil || ctx.Err() != nil {
		return []users.User{}
	}
	raw, ok, err := a.storage.GetItem(a.key)
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
func (a *SyncAdapter) Save(ctx context.Context, list []users.User) {
	if a.storage == nil || ctx.Err() != nil {
		return
	}
	raw, err := encode(list)
	if err != nil {
		a.logger.Warn("persistence: encode failed", slog.String("key", a.key), slog.Any("error", err))
		return
	}
	if err := a.storage.SetItem(a.key, raw); err != nil {
		a.logger.Warn("persistence: save failed", slog.String("key", a.key), slog.Any("error", err))
	}
}
