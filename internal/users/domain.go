package users

import (
	"time"

	"github.com/google/uuid"
)

// Role classifies a gym user.
type Role string

const (
	RoleStaff  Role = "STAFF"
	RoleMember Role = "MEMBER"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStaff, RoleMember:
		return true
	default:
		return false
	}
}

// User is a staff member or gym member record.
type User struct {
	ID          string     `json:"id"`
	FullName    string     `json:"fullName"`
	Role        Role       `json:"role"`
	DateOfBirth *time.Time `json:"dateOfBirth,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// CreateInput carries the fields accepted when creating a user.
type CreateInput struct {
	FullName    string  `json:"fullName" validate:"required,min=3,max=50"`
	Role        Role    `json:"role" validate:"required,oneof=STAFF MEMBER"`
	DateOfBirth *string `json:"dateOfBirth,omitempty" validate:"omitempty,rfc3339"`
}

// UpdateInput is the partial form of CreateInput. Nil fields are left untouched.
type UpdateInput struct {
	FullName    *string `json:"fullName,omitempty" validate:"omitempty,min=3,max=50"`
	Role        *Role   `json:"role,omitempty" validate:"omitempty,oneof=STAFF MEMBER"`
	DateOfBirth *string `json:"dateOfBirth,omitempty" validate:"omitempty,rfc3339"`
}

// Build manufactures a complete record from a validated input.
func (in CreateInput) Build(id string, now time.Time) User {
	return User{
		ID:          id,
		FullName:    in.FullName,
		Role:        in.Role,
		DateOfBirth: parseInstant(in.DateOfBirth),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Apply overlays the specified fields on existing and refreshes UpdatedAt.
// UpdatedAt never moves backwards even if the clock does.
func (in UpdateInput) Apply(existing User, now time.Time) User {
	updated := existing
	if in.FullName != nil {
		updated.FullName = *in.FullName
	}
	if in.Role != nil {
		updated.Role = *in.Role
	}
	if in.DateOfBirth != nil {
		updated.DateOfBirth = parseInstant(in.DateOfBirth)
	}
	if now.Before(existing.UpdatedAt) {
		now = existing.UpdatedAt
	}
	updated.UpdatedAt = now
	return updated
}

// IsZero reports whether no field is specified.
func (in UpdateInput) IsZero() bool {
	return in.FullName == nil && in.Role == nil && in.DateOfBirth == nil
}

func parseInstant(raw *string) *time.Time {
	if raw == nil {
		return nil
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// Clock provides the current instant.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

// Now returns UTC time at millisecond precision, matching the ISO-8601
// timestamps browsers produce.
func (realClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// SystemClock is the wall clock.
var SystemClock Clock = realClock{}

// IDGenerator returns a new globally unique identifier.
type IDGenerator func() string

// NewID generates a random UUID string.
func NewID() string {
	return uuid.NewString()
}

// IndexOf returns the position of id in list or -1.
func IndexOf(list []User, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}
