package users

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "api", "db.json"))
	require.NoError(t, err)
	return repo
}

func testUser(id string) User {
	now := time.Date(2024, 4, 1, 7, 30, 0, 0, time.UTC)
	return User{ID: id, FullName: "User " + id, Role: RoleMember, CreatedAt: now, UpdatedAt: now}
}

func TestNewRepositoryCreatesFile(t *testing.T) {
	repo := newTestRepository(t)

	raw, err := os.ReadFile(repo.Path())
	require.NoError(t, err)
	assert.JSONEq(t, `{"users":[]}`, string(raw))
}

func TestRepositoryInsertPrependsAndPersists(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	require.NoError(t, repo.InsertUser(ctx, testUser("a")))
	require.NoError(t, repo.InsertUser(ctx, testUser("b")))

	list, err := repo.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)

	reopened, err := NewRepository(repo.Path())
	require.NoError(t, err)
	again, err := reopened.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, list, again)

	var doc fileData
	raw, err := os.ReadFile(repo.Path())
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Len(t, doc.Users, 2)
}

func TestRepositoryUpdate(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	require.NoError(t, repo.InsertUser(ctx, testUser("a")))

	updated, err := repo.UpdateUser(ctx, "a", func(u User) User {
		u.Role = RoleStaff
		return u
	})
	require.NoError(t, err)
	assert.Equal(t, RoleStaff, updated.Role)

	_, err = repo.UpdateUser(ctx, "missing", func(u User) User { return u })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepositoryDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	require.NoError(t, repo.InsertUser(ctx, testUser("a")))

	require.NoError(t, repo.DeleteUser(ctx, "a"))
	require.NoError(t, repo.DeleteUser(ctx, "a"))

	list, err := repo.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestNewRepositoryRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewRepository(path)
	assert.Error(t, err)
}

func TestRepositoryHonoursCancelledContext(t *testing.T) {
	repo := newTestRepository(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.ListUsers(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileSnapshotSeesLaterWrites(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	snapshot := FileSnapshot{Path: repo.Path()}

	list, err := snapshot.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, repo.InsertUser(ctx, testUser("a")))
	list, err = snapshot.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].ID)
}

func TestFileSnapshotMissingFile(t *testing.T) {
	list, err := FileSnapshot{Path: filepath.Join(t.TempDir(), "none.json")}.ListUsers(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}
