package persistence

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymflow/gymflow/internal/users"
)

func sampleUsers() []users.User {
	now := time.Date(2024, 9, 9, 9, 0, 0, 0, time.UTC)
	dob := time.Date(1995, 3, 14, 0, 0, 0, 0, time.UTC)
	return []users.User{
		{ID: "b", FullName: "Vina Anggraini", Role: users.RoleStaff, DateOfBirth: &dob, CreatedAt: now, UpdatedAt: now},
		{ID: "a", FullName: "Wawan Setiawan", Role: users.RoleMember, CreatedAt: now, UpdatedAt: now},
	}
}

type failingSync struct{}

func (failingSync) GetItem(string) (string, bool, error) { return "", false, errors.New("quota exceeded") }
func (failingSync) SetItem(string, string) error         { return errors.New("quota exceeded") }

type memoryAsync struct {
	inner *MemoryStorage
}

func (m memoryAsync) GetItem(_ context.Context, key string) (string, bool, error) {
	return m.inner.GetItem(key)
}

func (m memoryAsync) SetItem(_ context.Context, key, value string) error {
	return m.inner.SetItem(key, value)
}

func TestSyncAdapterRoundTrip(t *testing.T) {
	ctx := context.Background()
	adapter := NewSyncAdapter(NewMemoryStorage(), "", nil)

	assert.Empty(t, adapter.Load(ctx))

	adapter.Save(ctx, sampleUsers())
	loaded := adapter.Load(ctx)

	require.Len(t, loaded, 2)
	assert.Equal(t, "b", loaded[0].ID)
	require.NotNil(t, loaded[0].DateOfBirth)
	assert.True(t, loaded[0].DateOfBirth.Equal(*sampleUsers()[0].DateOfBirth))
}

func TestSyncAdapterFailsSoft(t *testing.T) {
	ctx := context.Background()
	adapter := NewSyncAdapter(failingSync{}, DefaultKey, nil)

	assert.NotPanics(t, func() { adapter.Save(ctx, sampleUsers()) })
	assert.Empty(t, adapter.Load(ctx))
}

func TestSyncAdapterDiscardsCorruptValue(t *testing.T) {
	storage := NewMemoryStorage()
	require.NoError(t, storage.SetItem(DefaultKey, "{broken"))

	loaded := NewSyncAdapter(storage, DefaultKey, nil).Load(context.Background())

	assert.NotNil(t, loaded)
	assert.Empty(t, loaded)
}

func TestSyncAdapterStoresUnderKey(t *testing.T) {
	storage := NewMemoryStorage()
	NewSyncAdapter(storage, "custom", nil).Save(context.Background(), sampleUsers())

	_, ok, err := storage.GetItem(DefaultKey)
	require.NoError(t, err)
	assert.False(t, ok)
	raw, ok, err := storage.GetItem("custom")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, raw, `"fullName":"Vina Anggraini"`)
}

func TestFileStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "device")
	adapter := NewSyncAdapter(NewFileStorage(dir), "gf_users", nil)

	assert.Empty(t, adapter.Load(ctx))
	adapter.Save(ctx, sampleUsers())

	_, err := os.Stat(filepath.Join(dir, "gf_users.json"))
	require.NoError(t, err)

	reopened := NewSyncAdapter(NewFileStorage(dir), "gf_users", nil)
	assert.Len(t, reopened.Load(ctx), 2)
}

func TestAsyncAdapterResolvesLazilyAndRetries(t *testing.T) {
	ctx := context.Background()
	backend := memoryAsync{inner: NewMemoryStorage()}
	attempts := 0
	adapter := NewAsyncAdapter(func(context.Context) (AsyncStorage, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("not mounted yet")
		}
		return backend, nil
	}, "", nil)
	assert.Zero(t, attempts)

	adapter.Save(ctx, sampleUsers())
	assert.Equal(t, 1, attempts)
	_, ok, _ := backend.inner.GetItem(DefaultKey)
	assert.False(t, ok, "failed resolution drops the save")

	adapter.Save(ctx, sampleUsers())
	assert.Len(t, adapter.Load(ctx), 2)
	assert.Equal(t, 2, attempts, "successful resolution is cached")
}

func TestAsyncAdapterNilStorage(t *testing.T) {
	adapter := NewAsyncAdapter(Static(nil), DefaultKey, nil)
	assert.Empty(t, adapter.Load(context.Background()))
}
