package users

import (
	"context"
	"log/slog"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	InsertUser(ctx context.Context, user User) error
	UpdateUser(ctx context.Context, id string, fn func(User) User) (User, error)
	DeleteUser(ctx context.Context, id string) error
}

// Publisher fans change notifications out to connected clients.
type Publisher interface {
	Publish(event string)
}

// ServiceConfig groups the optional collaborators of Service.
type ServiceConfig struct {
	Clock     Clock
	NewID     IDGenerator
	Validator *Validator
	Events    Publisher
	Logger    *slog.Logger
}

// Service handles user business logic for the REST API.
type Service struct {
	repo      RepositoryPort
	clock     Clock
	newID     IDGenerator
	validator *Validator
	events    Publisher
	logger    *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, cfg ServiceConfig) *Service {
	s := &Service{
		repo:      repo,
		clock:     cfg.Clock,
		newID:     cfg.NewID,
		validator: cfg.Validator,
		events:    cfg.Events,
		logger:    cfg.Logger,
	}
	if s.clock == nil {
		s.clock = SystemClock
	}
	if s.newID == nil {
		s.newID = NewID
	}
	if s.validator == nil {
		s.validator = NewValidator()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// CreateUser validates the input and stores a new user.
func (s *Service) CreateUser(ctx context.Context, in CreateInput) (User, error) {
	in, err := s.validator.ValidateCreate(in)
	if err != nil {
		return User{}, err
	}
	user := in.Build(s.newID(), s.clock.Now())
	if err := s.repo.InsertUser(ctx, user); err != nil {
		return User{}, err
	}
	s.notify("create", user.ID)
	return user, nil
}

// UpdateUser validates the partial input and merges it into the stored user.
func (s *Service) UpdateUser(ctx context.Context, id string, in UpdateInput) (User, error) {
	in, err := s.validator.ValidateUpdate(in)
	if err != nil {
		return User{}, err
	}
	now := s.clock.Now()
	updated, err := s.repo.UpdateUser(ctx, id, func(existing User) User {
		return in.Apply(existing, now)
	})
	if err != nil {
		return User{}, err
	}
	s.notify("update", id)
	return updated, nil
}

// DeleteUser removes the user; deleting an unknown id succeeds.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.notify("delete", id)
	return nil
}

func (s *Service) notify(op, id string) {
	s.logger.Debug("users changed", slog.String("op", op), slog.String("id", id))
	if s.events != nil {
		s.events.Publish(EventUsersUpdated)
	}
}
