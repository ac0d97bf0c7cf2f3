// Package persistence stores the full user list on the local device so that
// an offline store can be re-hydrated. Every adapter fails soft: read errors
// yield an empty list and write errors are logged, never returned.
package persistence

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gymflow/gymflow/internal/users"
)

// DefaultKey is the storage key used when none is configured.
const DefaultKey = "gf_users"

// Adapter loads and saves the complete user list.
type Adapter interface {
	Load(ctx context.Context) []users.User
	Save(ctx context.Context, list []users.User)
}

func decode(logger *slog.Logger, key, raw string) []users.User {
	if raw == "" {
		return []users.User{}
	}
	var list []users.User
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		logger.Warn("persistence: discard unreadable users", slog.String("key", key), slog.Any("error", err))
		return []users.User{}
	}
	if list == nil {
		list = []users.User{}
	}
	return list
}

func encode(list []users.User) (string, error) {
	if list == nil {
		list = []users.User{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
