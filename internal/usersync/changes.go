package usersync

import (
	"time"

	"github.com/gymflow/gymflow/internal/users"
)

// HaveUsersChanged reports whether next differs from prev by membership or by
// any record's UpdatedAt. Field edits that do not bump UpdatedAt are not seen.
func HaveUsersChanged(prev, next []users.User) bool {
	if len(prev) != len(next) {
		return true
	}
	if len(prev) == 0 || &prev[0] == &next[0] {
		return false
	}
	seen := make(map[string]time.Time, len(prev))
	for _, u := range prev {
		seen[u.ID] = u.UpdatedAt
	}
	for _, u := range next {
		updated, ok := seen[u.ID]
		if !ok || !updated.Equal(u.UpdatedAt) {
			return true
		}
	}
	return false
}
