package usersync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gymflow/gymflow/internal/persistence"
	"github.com/gymflow/gymflow/internal/users"
)

// DefaultHTTPTimeout bounds each REST call made by the remote repository.
const DefaultHTTPTimeout = 10 * time.Second

// Repository is the source of truth the store synchronises with.
type Repository interface {
	// Hydrate never fails; any error yields an empty list.
	Hydrate(ctx context.Context) []users.User
	Create(ctx context.Context, in users.CreateInput) (users.User, error)
	// Update receives the store's current list for sources that resolve the
	// record locally.
	Update(ctx context.Context, id string, in users.UpdateInput, current []users.User) (users.User, error)
	Remove(ctx context.Context, id string) error
}

// RemoteRepository talks to the users REST service.
type RemoteRepository struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewRemoteRepository builds a repository for the service at baseURL.
func NewRemoteRepository(baseURL string, client *http.Client, logger *slog.Logger) *RemoteRepository {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteRepository{baseURL: strings.TrimRight(baseURL, "/"), client: client, logger: logger}
}

// Hydrate fetches the full list.
func (r *RemoteRepository) Hydrate(ctx context.Context) []users.User {
	var list []users.User
	if err := r.do(ctx, http.MethodGet, "/users", nil, &list); err != nil {
		r.logger.Warn("usersync: hydrate failed", slog.Any("error", err))
		return []users.User{}
	}
	if list == nil {
		list = []users.User{}
	}
	return list
}

// Create posts a new user.
func (r *RemoteRepository) Create(ctx context.Context, in users.CreateInput) (users.User, error) {
	var created users.User
	if err := r.do(ctx, http.MethodPost, "/users", in, &created); err != nil {
		return users.User{}, err
	}
	return created, nil
}

// Update sends a partial update. current is ignored; the service resolves the
// record itself.
func (r *RemoteRepository) Update(ctx context.Context, id string, in users.UpdateInput, _ []users.User) (users.User, error) {
	var updated users.User
	if err := r.do(ctx, http.MethodPut, "/users/"+url.PathEscape(id), in, &updated); err != nil {
		return users.User{}, err
	}
	return updated, nil
}

// Remove deletes a user.
func (r *RemoteRepository) Remove(ctx context.Context, id string) error {
	return r.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(id), nil, nil)
}

func (r *RemoteRepository) do(ctx context.Context, method, path string, body, out any) error {
	op := method + " " + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("usersync: encode %s: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(op, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode body: %w", err)}
	}
	return nil
}

type problemBody struct {
	Title  string            `json:"title"`
	Detail string            `json:"detail"`
	Errors map[string]string `json:"errors"`
}

func statusError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var problem problemBody
	_ = json.Unmarshal(raw, &problem)

	switch resp.StatusCode {
	case http.StatusBadRequest:
		fields := problem.Errors
		if fields == nil {
			fields = map[string]string{}
		}
		return &users.ValidationError{Fields: fields}
	case http.StatusNotFound:
		return fmt.Errorf("usersync: %s: %w", op, users.ErrNotFound)
	}
	var detail error
	if problem.Detail != "" {
		detail = errors.New(problem.Detail)
	}
	return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: detail}
}

// LocalRepository keeps the device storage authoritative. Records are built
// on the device with generated ids and timestamps.
type LocalRepository struct {
	adapter persistence.Adapter
	clock   users.Clock
	newID   users.IDGenerator
}

// NewLocalRepository wraps a persistence adapter. Nil clock and id generator
// fall back to the system clock and random UUIDs.
func NewLocalRepository(adapter persistence.Adapter, clock users.Clock, newID users.IDGenerator) *LocalRepository {
	if clock == nil {
		clock = users.SystemClock
	}
	if newID == nil {
		newID = users.NewID
	}
	return &LocalRepository{adapter: adapter, clock: clock, newID: newID}
}

// Hydrate loads the persisted list.
func (r *LocalRepository) Hydrate(ctx context.Context) []users.User {
	list := r.adapter.Load(ctx)
	if list == nil {
		list = []users.User{}
	}
	return list
}

// Create builds a record from already validated input.
func (r *LocalRepository) Create(_ context.Context, in users.CreateInput) (users.User, error) {
	return in.Build(r.newID(), r.clock.Now()), nil
}

// Update merges in into the record with id found in current.
func (r *LocalRepository) Update(_ context.Context, id string, in users.UpdateInput, current []users.User) (users.User, error) {
	idx := users.IndexOf(current, id)
	if idx == -1 {
		return users.User{}, users.ErrNotFound
	}
	return in.Apply(current[idx], r.clock.Now()), nil
}

// Remove has no side effect; the store drops the record and persists the list.
func (r *LocalRepository) Remove(context.Context, string) error {
	return nil
}
