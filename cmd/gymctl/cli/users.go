package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/gymflow/gymflow/internal/users"
	"github.com/gymflow/gymflow/internal/usersync"
)

// Exit codes shared by the users commands.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitValidation = 2
	ExitNotFound   = 3
)

// UserStore is the part of usersync.Store the commands drive.
type UserStore interface {
	Ready() *usersync.Task
	Users() []users.User
	Create(ctx context.Context, in users.CreateInput) (users.User, error)
	Update(ctx context.Context, id string, in users.UpdateInput) (users.User, error)
	Remove(ctx context.Context, id string) error
	Revalidate(source string) *usersync.Task
	Subscribe() (<-chan usersync.State, func())
	Flush(ctx context.Context) error
}

// Output selects where and how results are printed.
type Output struct {
	JSON   bool
	Stdout io.Writer
	Stderr io.Writer
}

func (o Output) withDefaults() Output {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	return o
}

// UsersCLI implements the user management commands on top of a store.
type UsersCLI struct {
	store     UserStore
	validator *users.Validator
}

// NewUsersCLI constructs the helper.
func NewUsersCLI(store UserStore) (*UsersCLI, error) {
	if store == nil {
		return nil, errors.New("users cli: store is required")
	}
	return &UsersCLI{store: store, validator: users.NewValidator()}, nil
}

// ListOptions configures the list command.
type ListOptions struct {
	Output
	// Refresh revalidates against the source before printing.
	Refresh bool
}

// ListCommand prints the current user list.
func (c *UsersCLI) ListCommand(ctx context.Context, opts ListOptions) int {
	out := opts.Output.withDefaults()
	if err := c.store.Ready().Wait(ctx); err != nil {
		return fail(out, "list", err)
	}
	if opts.Refresh {
		if err := c.store.Revalidate(usersync.SourceManual).Wait(ctx); err != nil {
			return fail(out, "list", err)
		}
	}
	list := c.store.Users()
	if out.JSON {
		return encode(out, "list", list)
	}
	renderUsers(out.Stdout, list)
	return ExitOK
}

// CreateOptions configures the create command.
type CreateOptions struct {
	Output
	Input users.CreateInput
}

// CreateCommand validates and adds a user.
func (c *UsersCLI) CreateCommand(ctx context.Context, opts CreateOptions) int {
	out := opts.Output.withDefaults()
	in, err := c.validator.ValidateCreate(opts.Input)
	if err != nil {
		return fail(out, "create", err)
	}
	if err := c.store.Ready().Wait(ctx); err != nil {
		return fail(out, "create", err)
	}
	created, err := c.store.Create(ctx, in)
	if err != nil {
		return fail(out, "create", err)
	}
	if err := c.store.Flush(ctx); err != nil {
		return fail(out, "create", err)
	}
	return c.printUser(out, "create", created)
}

// UpdateOptions configures the update command.
type UpdateOptions struct {
	Output
	ID    string
	Input users.UpdateInput
}

// UpdateCommand applies a partial update to one user.
func (c *UsersCLI) UpdateCommand(ctx context.Context, opts UpdateOptions) int {
	out := opts.Output.withDefaults()
	if opts.ID == "" {
		_, _ = fmt.Fprintln(out.Stderr, "update: --id is required")
		return ExitValidation
	}
	if opts.Input.IsZero() {
		_, _ = fmt.Fprintln(out.Stderr, "update: nothing to change")
		return ExitValidation
	}
	in, err := c.validator.ValidateUpdate(opts.Input)
	if err != nil {
		return fail(out, "update", err)
	}
	if err := c.store.Ready().Wait(ctx); err != nil {
		return fail(out, "update", err)
	}
	updated, err := c.store.Update(ctx, opts.ID, in)
	if err != nil {
		return fail(out, "update", err)
	}
	if err := c.store.Flush(ctx); err != nil {
		return fail(out, "update", err)
	}
	return c.printUser(out, "update", updated)
}

// RemoveOptions configures the remove command.
type RemoveOptions struct {
	Output
	ID string
}

// RemoveCommand deletes one user.
func (c *UsersCLI) RemoveCommand(ctx context.Context, opts RemoveOptions) int {
	out := opts.Output.withDefaults()
	if opts.ID == "" {
		_, _ = fmt.Fprintln(out.Stderr, "remove: --id is required")
		return ExitValidation
	}
	if err := c.store.Ready().Wait(ctx); err != nil {
		return fail(out, "remove", err)
	}
	if err := c.store.Remove(ctx, opts.ID); err != nil {
		return fail(out, "remove", err)
	}
	if err := c.store.Flush(ctx); err != nil {
		return fail(out, "remove", err)
	}
	if out.JSON {
		return encode(out, "remove", map[string]any{"ok": true, "id": opts.ID})
	}
	_, _ = fmt.Fprintf(out.Stdout, "removed %s\n", opts.ID)
	return ExitOK
}

// WatchOptions configures the watch command.
type WatchOptions struct {
	Output
}

// watchLine is one JSON line printed by the watch command.
type watchLine struct {
	Version  uint64       `json:"version"`
	Hydrated bool         `json:"hydrated"`
	At       time.Time    `json:"at"`
	Users    []users.User `json:"users"`
}

// WatchCommand prints every state change until ctx is cancelled.
func (c *UsersCLI) WatchCommand(ctx context.Context, opts WatchOptions) int {
	out := opts.Output.withDefaults()
	states, cancel := c.store.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ExitOK
		case st, ok := <-states:
			if !ok {
				return ExitOK
			}
			if !st.Hydrated {
				continue
			}
			if out.JSON {
				line := watchLine{Version: st.Version, Hydrated: st.Hydrated, At: time.Now().UTC(), Users: st.Users}
				if code := encode(out, "watch", line); code != ExitOK {
					return code
				}
				continue
			}
			_, _ = fmt.Fprintf(out.Stdout, "# version %d, %d user(s)\n", st.Version, len(st.Users))
			renderUsers(out.Stdout, st.Users)
		}
	}
}

func (c *UsersCLI) printUser(out Output, op string, user users.User) int {
	if out.JSON {
		return encode(out, op, user)
	}
	renderUsers(out.Stdout, []users.User{user})
	return ExitOK
}

func renderUsers(w io.Writer, list []users.User) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tROLE\tBIRTH\tUPDATED")
	for _, u := range list {
		birth := "-"
		if u.DateOfBirth != nil {
			birth = u.DateOfBirth.Format("2006-01-02")
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", u.ID, u.FullName, u.Role, birth, u.UpdatedAt.Format(time.RFC3339))
	}
	_ = tw.Flush()
}

func encode(out Output, op string, v any) int {
	if err := json.NewEncoder(out.Stdout).Encode(v); err != nil {
		_, _ = fmt.Fprintf(out.Stderr, "%s: encode json: %v\n", op, err)
		return ExitFailure
	}
	return ExitOK
}

func fail(out Output, op string, err error) int {
	var verr *users.ValidationError
	switch {
	case errors.As(err, &verr):
		_, _ = fmt.Fprintf(out.Stderr, "%s: invalid input\n", op)
		fields := verr.FieldErrors()
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			_, _ = fmt.Fprintf(out.Stderr, "  %s: %s\n", name, fields[name])
		}
		return ExitValidation
	case errors.Is(err, users.ErrValidation):
		_, _ = fmt.Fprintf(out.Stderr, "%s: %v\n", op, err)
		return ExitValidation
	case errors.Is(err, users.ErrNotFound):
		_, _ = fmt.Fprintf(out.Stderr, "%s: %v\n", op, err)
		return ExitNotFound
	default:
		_, _ = fmt.Fprintf(out.Stderr, "%s: %v\n", op, err)
		return ExitFailure
	}
}
