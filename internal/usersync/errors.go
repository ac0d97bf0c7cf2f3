package usersync

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on a store whose scope was torn down.
	ErrClosed = errors.New("usersync: store closed")
	// ErrNoSource is returned by Open when neither a base URL nor a
	// persistence adapter is configured.
	ErrNoSource = errors.New("usersync: base URL or persistence adapter required")
)

// TransportError reports a network failure or an unexpected response status
// from the users service.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("usersync: %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("usersync: %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("usersync: %s: status %d", e.Op, e.StatusCode)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
