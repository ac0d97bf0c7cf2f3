package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStorage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	storage := NewRedisStorage(client, "gymflow:")
	ctx := context.Background()

	_, ok, err := storage.GetItem(ctx, "gf_users")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, storage.SetItem(ctx, "gf_users", `[]`))
	value, ok, err := storage.GetItem(ctx, "gf_users")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[]`, value)

	stored, err := mr.Get("gymflow:gf_users")
	require.NoError(t, err)
	assert.Equal(t, `[]`, stored)
	assert.Zero(t, mr.TTL("gymflow:gf_users"))
}

func TestRedisStorageReportsErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	storage := NewRedisStorage(client, "")
	mr.SetError("LOADING")

	_, _, err := storage.GetItem(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, storage.SetItem(context.Background(), "k", "v"))
}

func TestNew(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()

	client, err := New(context.Background(), addr)
	require.NoError(t, err)
	assert.NoError(t, client.Close())

	mr.Close()
	_, err = New(context.Background(), addr)
	assert.Error(t, err)
}
