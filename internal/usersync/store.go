// Package usersync keeps an in-memory user list consistent with a source of
// truth. In remote mode the source is the users REST service and background
// triggers revalidate the list; in local mode the device storage is
// authoritative and every change is persisted.
package usersync

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gymflow/gymflow/internal/persistence"
	"github.com/gymflow/gymflow/internal/users"
)

// Config wires a store. BaseURL selects remote mode; otherwise Persistence
// is required and the store runs in local mode.
type Config struct {
	BaseURL      string
	HTTPClient   *http.Client
	Persistence  persistence.Adapter
	Revalidation Revalidation

	// Repository overrides the source built from BaseURL or Persistence.
	Repository Repository

	Clock   users.Clock
	NewID   users.IDGenerator
	Logger  *slog.Logger
	Metrics *Metrics
}

// Store holds the synchronised user list.
type Store struct {
	repo    Repository
	persist persistence.Adapter
	remote  bool
	logger  *slog.Logger
	metrics *Metrics

	ctx    context.Context
	cancel context.CancelFunc
	flight singleflight.Group

	fetchMu  sync.Mutex
	fetching bool
	refetch  bool
	wg     sync.WaitGroup
	saves  sync.WaitGroup
	ready  *Task

	mu       sync.Mutex
	state    State
	closed   bool
	subs     map[int]chan State
	nextSub  int
	lastSave *Task

	saveMu       sync.Mutex
	savedVersion uint64
}

// Open starts a store scoped to ctx. The initial load runs in the background;
// wait on Ready to observe it. Cancelling ctx stops the triggers, but Close
// must still be called to release the store.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	remote := cfg.BaseURL != ""

	repo := cfg.Repository
	switch {
	case repo != nil:
	case remote:
		repo = NewRemoteRepository(cfg.BaseURL, cfg.HTTPClient, logger)
	case cfg.Persistence != nil:
		repo = NewLocalRepository(cfg.Persistence, cfg.Clock, cfg.NewID)
	default:
		return nil, ErrNoSource
	}

	s := &Store{
		repo:    repo,
		remote:  remote,
		logger:  logger,
		metrics: cfg.Metrics,
		ready:   newTask(),
		state:   State{Users: []users.User{}},
		subs:    make(map[int]chan State),
	}
	if !remote {
		s.persist = cfg.Persistence
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.ready.finish(s.hydrate(SourceInitial))
	}()

	if remote {
		stream := NewEventStreamTrigger(strings.TrimRight(cfg.BaseURL, "/")+"/events", cfg.HTTPClient, logger)
		for _, trigger := range cfg.Revalidation.triggers(stream) {
			s.startTrigger(trigger)
		}
	}
	return s, nil
}

func (s *Store) startTrigger(trigger Trigger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := trigger.Run(s.ctx, func(source string) { s.Revalidate(source) }); err != nil {
			s.logger.Warn("usersync: trigger stopped", slog.Any("error", err))
		}
	}()
}

// Remote reports whether the store synchronises with the REST service.
func (s *Store) Remote() bool {
	return s.remote
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Users returns the current list. The slice must not be modified.
func (s *Store) Users() []users.User {
	return s.Snapshot().Users
}

// Hydrated reports whether the first load has been applied.
func (s *Store) Hydrated() bool {
	return s.Snapshot().Hydrated
}

// Ready completes once the initial load has been applied or discarded.
func (s *Store) Ready() *Task {
	return s.ready
}

// Subscribe returns a channel that receives the current state and then every
// new state. Only the latest undelivered state is kept, so a slow reader
// skips intermediate states but never sees them out of order. The channel is
// closed by the returned cancel func or by Close.
func (s *Store) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.state

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
		})
	}
}

// Create adds a user through the repository and prepends it to the list.
func (s *Store) Create(ctx context.Context, in users.CreateInput) (users.User, error) {
	if s.isClosed() {
		return users.User{}, ErrClosed
	}
	created, err := s.repo.Create(ctx, in)
	if err != nil {
		return users.User{}, err
	}
	if !s.dispatch(Action{Type: ActionCreate, User: created}) {
		return users.User{}, ErrClosed
	}
	return created, nil
}

// Update applies a partial update and replaces the matching record.
func (s *Store) Update(ctx context.Context, id string, in users.UpdateInput) (users.User, error) {
	if s.isClosed() {
		return users.User{}, ErrClosed
	}
	updated, err := s.repo.Update(ctx, id, in, s.Users())
	if err != nil {
		return users.User{}, err
	}
	if !s.dispatch(Action{Type: ActionUpdate, User: updated}) {
		return users.User{}, ErrClosed
	}
	return updated, nil
}

// Remove drops the record from the list even when the repository call fails;
// the repository error is still returned.
func (s *Store) Remove(ctx context.Context, id string) error {
	if s.isClosed() {
		return ErrClosed
	}
	err := s.repo.Remove(ctx, id)
	if !s.dispatch(Action{Type: ActionRemove, ID: id}) && err == nil {
		return ErrClosed
	}
	return err
}

// Revalidate fetches the list from the source and replaces the current one
// when it differs. At most one fetch runs at a time; requests made while it
// runs are answered by one trailing fetch that starts after it.
func (s *Store) Revalidate(source string) *Task {
	if source == "" {
		source = SourceManual
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return completedTask(ErrClosed)
	}
	s.wg.Add(1)
	s.mu.Unlock()

	task := newTask()
	go func() {
		defer s.wg.Done()
		task.finish(s.hydrate(source))
	}()
	return task
}

// Flush waits for the most recent persistence save to finish.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	last := s.lastSave
	s.mu.Unlock()
	if last == nil {
		return nil
	}
	return last.Wait(ctx)
}

// Close stops every trigger, discards in-flight revalidations and waits for
// pending saves. Later operations return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.saves.Wait()
	s.ready.finish(ErrClosed)
	return nil
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Store) hydrate(source string) error {
	started := time.Now()
	result := s.fetch()
	var list []users.User
	select {
	case <-s.ctx.Done():
		s.metrics.Revalidated(source, "discarded", started)
		return ErrClosed
	case res := <-result:
		list, _ = res.Val.([]users.User)
	}
	if list == nil {
		list = []users.User{}
	}

	applied, ok := s.apply(Action{Type: ActionHydrate, Users: list}, func(st State) bool {
		return !st.Hydrated || HaveUsersChanged(st.Users, list)
	})
	switch {
	case !ok:
		s.metrics.Revalidated(source, "discarded", started)
		return ErrClosed
	case applied:
		s.metrics.Revalidated(source, "changed", started)
		s.logger.Debug("usersync: list replaced", slog.String("source", source), slog.Int("users", len(list)))
	default:
		s.metrics.Revalidated(source, "unchanged", started)
	}
	return nil
}

const hydrateKey = "hydrate"

// fetch joins the running hydrate or starts one. Joining a running hydrate
// schedules a trailing one, since the running fetch may predate the change
// that prompted this request.
func (s *Store) fetch() <-chan singleflight.Result {
	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()
	if s.fetching {
		s.refetch = true
	}
	s.fetching = true
	return s.flight.DoChan(hydrateKey, s.fetchLatest)
}

func (s *Store) fetchLatest() (interface{}, error) {
	for {
		list := s.repo.Hydrate(s.ctx)

		s.fetchMu.Lock()
		if !s.refetch || s.ctx.Err() != nil {
			s.fetching = false
			s.refetch = false
			// Later callers must start a new flight rather than join this one.
			s.flight.Forget(hydrateKey)
			s.fetchMu.Unlock()
			return list, nil
		}
		s.refetch = false
		s.fetchMu.Unlock()
	}
}

// dispatch reduces action into the state and reports whether the store was
// still open.
func (s *Store) dispatch(action Action) bool {
	_, open := s.apply(action, nil)
	return open
}

// apply reduces action into the state when guard allows it. It reports
// whether the action was applied and whether the store was still open.
func (s *Store) apply(action Action, guard func(State) bool) (applied, open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, false
	}
	if guard != nil && !guard(s.state) {
		return false, true
	}
	next := Reduce(s.state, action)
	s.state = next
	s.metrics.Dispatched(action.Type)

	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- next
	}
	if s.persist != nil && next.Hydrated {
		s.lastSave = s.save(next)
	}
	return true, true
}

// save writes state in the background. Saves of older versions that lose the
// race against a newer one are skipped.
func (s *Store) save(state State) *Task {
	task := newTask()
	ctx := context.WithoutCancel(s.ctx)
	s.saves.Add(1)
	go func() {
		defer s.saves.Done()
		s.saveMu.Lock()
		defer s.saveMu.Unlock()
		if state.Version <= s.savedVersion {
			s.metrics.Saved("skipped")
			task.finish(nil)
			return
		}
		s.persist.Save(ctx, state.Users)
		s.savedVersion = state.Version
		s.metrics.Saved("saved")
		task.finish(nil)
	}()
	return task
}
