package e2e

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymflow/gymflow/internal/app"
	_ "github.com/gymflow/gymflow/internal/testing/guard"
	"github.com/gymflow/gymflow/internal/users"
	"github.com/gymflow/gymflow/internal/usersync"
	"github.com/gymflow/gymflow/jobs"
)

type deployment struct {
	server *httptest.Server
	broker *users.Broker
	dbPath string
}

func startDeployment(t *testing.T) deployment {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dbPath := filepath.Join(t.TempDir(), "api", "db.json")
	repo, err := users.NewRepository(dbPath)
	require.NoError(t, err)
	broker := users.NewBroker()
	service := users.NewService(repo, users.ServiceConfig{Events: broker, Logger: logger})

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       &app.Config{AppEnv: "test", RateLimit: 10_000, AppRequestTimeout: 5 * time.Second},
		UsersHandler: users.NewHandler(logger, service, broker, 100*time.Millisecond),
		JobHandler:   jobs.NewHandler(nil, nil, logger),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return deployment{server: srv, broker: broker, dbPath: dbPath}
}

func openClient(t *testing.T, baseURL string, strategy string) *usersync.Store {
	t.Helper()
	cfg := &app.ClientConfig{
		APIBaseURL:   baseURL,
		Storage:      app.StorageMemory,
		Revalidation: strategy,
		PollInterval: 50 * time.Millisecond,
		HTTPTimeout:  2 * time.Second,
	}
	store, release, err := app.OpenStore(context.Background(), cfg, app.StoreOptions{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = release() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, store.Ready().Wait(ctx))
	return store
}

func hasUser(store *usersync.Store, name string) bool {
	for _, u := range store.Users() {
		if u.FullName == name {
			return true
		}
	}
	return false
}

func TestTwoClientsConvergeThroughPushAndPoll(t *testing.T) {
	d := startDeployment(t)
	writer := openClient(t, d.server.URL, "none")
	pushed := openClient(t, d.server.URL, "push")
	polled := openClient(t, d.server.URL, "poll")

	require.Eventually(t, func() bool { return d.broker.Subscribers() >= 1 }, 2*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	created, err := writer.Create(ctx, users.CreateInput{FullName: "Karina Mendes", Role: users.RoleMember})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return hasUser(pushed, "Karina Mendes") }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return hasUser(polled, "Karina Mendes") }, 2*time.Second, 10*time.Millisecond)

	renamed := "Karina Mendes Lima"
	_, err = writer.Update(ctx, created.ID, users.UpdateInput{FullName: &renamed})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hasUser(pushed, renamed) }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, writer.Remove(ctx, created.ID))
	require.Eventually(t, func() bool { return len(pushed.Users()) == 0 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(polled.Users()) == 0 }, 2*time.Second, 10*time.Millisecond)
}

// The server keeps no record versions, so concurrent writes to one field are
// last-writer-wins: one of the two renames is silently lost and both clients
// converge on the survivor after revalidating.
func TestConcurrentRenamesKeepLastWriter(t *testing.T) {
	d := startDeployment(t)
	first := openClient(t, d.server.URL, "none")
	second := openClient(t, d.server.URL, "none")
	ctx := context.Background()

	created, err := first.Create(ctx, users.CreateInput{FullName: "Rita Campos", Role: users.RoleMember})
	require.NoError(t, err)
	require.NoError(t, second.Revalidate(usersync.SourceManual).Wait(ctx))
	require.True(t, hasUser(second, "Rita Campos"))

	names := map[*usersync.Store]string{first: "Rita Campos Alves", second: "Rita Campos Souza"}
	var wg sync.WaitGroup
	for client, name := range names {
		wg.Add(1)
		go func(client *usersync.Store, name string) {
			defer wg.Done()
			_, err := client.Update(ctx, created.ID, users.UpdateInput{FullName: &name})
			assert.NoError(t, err)
		}(client, name)
	}
	wg.Wait()

	require.NoError(t, first.Revalidate(usersync.SourceManual).Wait(ctx))
	require.NoError(t, second.Revalidate(usersync.SourceManual).Wait(ctx))
	require.Len(t, first.Users(), 1)
	require.Len(t, second.Users(), 1)

	survivor := first.Users()[0].FullName
	assert.Equal(t, survivor, second.Users()[0].FullName)
	assert.Contains(t, []string{"Rita Campos Alves", "Rita Campos Souza"}, survivor)

	lost := 0
	for _, name := range names {
		if !hasUser(first, name) {
			lost++
		}
	}
	assert.Equal(t, 1, lost, "exactly one rename is overwritten")
}

func TestRemoteValidationSurfacesFieldErrors(t *testing.T) {
	d := startDeployment(t)
	client := openClient(t, d.server.URL, "none")

	_, err := client.Create(context.Background(), users.CreateInput{FullName: "Al", Role: "COACH"})
	require.Error(t, err)
	var verr *users.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.FieldErrors(), "fullName")
	assert.Contains(t, verr.FieldErrors(), "role")
	assert.Empty(t, client.Users())
}

func TestBackupCapturesServerWrites(t *testing.T) {
	d := startDeployment(t)
	client := openClient(t, d.server.URL, "none")

	_, err := client.Create(context.Background(), users.CreateInput{FullName: "Leandro Pires", Role: users.RoleStaff})
	require.NoError(t, err)

	job := jobs.NewUsersBackupJob(users.FileSnapshot{Path: d.dbPath}, filepath.Join(t.TempDir(), "backups"), 2, nil, nil)
	path, count, err := job.Run(context.Background(), "e2e")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc struct {
		Reason string       `json:"reason"`
		Users  []users.User `json:"users"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "e2e", doc.Reason)
	require.Len(t, doc.Users, 1)
	assert.Equal(t, "Leandro Pires", doc.Users[0].FullName)
}
