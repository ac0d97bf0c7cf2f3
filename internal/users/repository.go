package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// fileData is the on-disk layout of the users database.
type fileData struct {
	Users []User `json:"users"`
}

// Repository provides JSON file backed persistence. The whole document is
// held in memory and rewritten atomically after every change.
type Repository struct {
	path string

	mu   sync.RWMutex
	data fileData
}

// NewRepository opens the database at path, creating it with an empty user
// list when the file does not exist yet.
func NewRepository(path string) (*Repository, error) {
	r := &Repository{path: path}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		r.data = fileData{Users: []User{}}
		if err := r.writeLocked(); err != nil {
			return nil, err
		}
		return r, nil
	case err != nil:
		return nil, fmt.Errorf("users: read db %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &r.data); err != nil {
		return nil, fmt.Errorf("users: parse db %s: %w", path, err)
	}
	if r.data.Users == nil {
		r.data.Users = []User{}
	}
	return r, nil
}

// Path returns the database file location.
func (r *Repository) Path() string {
	return r.path
}

// ListUsers returns all users, newest first.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]User, len(r.data.Users))
	copy(out, r.data.Users)
	return out, nil
}

// InsertUser prepends user to the list.
func (r *Repository) InsertUser(ctx context.Context, user User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.data.Users
	next := make([]User, 0, len(prev)+1)
	next = append(next, user)
	next = append(next, prev...)
	r.data.Users = next
	if err := r.writeLocked(); err != nil {
		r.data.Users = prev
		return err
	}
	return nil
}

// UpdateUser replaces the user with the given id by the result of fn.
func (r *Repository) UpdateUser(ctx context.Context, id string, fn func(User) User) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := IndexOf(r.data.Users, id)
	if idx == -1 {
		return User{}, ErrNotFound
	}
	prev := r.data.Users
	next := make([]User, len(prev))
	copy(next, prev)
	next[idx] = fn(prev[idx])
	r.data.Users = next
	if err := r.writeLocked(); err != nil {
		r.data.Users = prev
		return User{}, err
	}
	return next[idx], nil
}

// DeleteUser removes the user with the given id. Unknown ids are not an error.
func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.data.Users
	next := make([]User, 0, len(prev))
	for _, u := range prev {
		if u.ID != id {
			next = append(next, u)
		}
	}
	r.data.Users = next
	if err := r.writeLocked(); err != nil {
		r.data.Users = prev
		return err
	}
	return nil
}

func (r *Repository) writeLocked() error {
	raw, err := json.MarshalIndent(r.data, "", "  ")
	if err != nil {
		return fmt.Errorf("users: encode db: %w", err)
	}
	return WriteFileAtomic(r.path, raw)
}

// WriteFileAtomic writes data to a temporary file next to path and renames it
// into place.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("users: create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("users: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("users: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("users: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("users: rename %s: %w", path, err)
	}
	return nil
}

// FileSnapshot reads the database file on every call. Processes that do not
// own the database use it to see writes made by the API server.
type FileSnapshot struct {
	Path string
}

// ListUsers returns the users currently stored in the file. A missing file
// reads as an empty list.
func (f FileSnapshot) ListUsers(ctx context.Context) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return []User{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("users: read db %s: %w", f.Path, err)
	}
	var data fileData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("users: parse db %s: %w", f.Path, err)
	}
	if data.Users == nil {
		data.Users = []User{}
	}
	return data.Users, nil
}
