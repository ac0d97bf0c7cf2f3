package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/gymflow/gymflow/internal/jobs"
	"github.com/gymflow/gymflow/internal/users"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const (
	backupPrefix     = "users-"
	backupSuffix     = ".json"
	backupTimeLayout = "20060102T150405.000Z"
)

// UserLister is the read side of the users repository.
type UserLister interface {
	ListUsers(ctx context.Context) ([]users.User, error)
}

// UsersBackupJob writes timestamped snapshots of the users database and
// prunes old ones.
type UsersBackupJob struct {
	Source  UserLister
	Dir     string
	Keep    int
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewUsersBackupJob wires dependencies for the backup handler. keep <= 0
// retains every snapshot.
func NewUsersBackupJob(source UserLister, dir string, keep int, logger *slog.Logger, metrics *jobmetrics.Metrics) *UsersBackupJob {
	return &UsersBackupJob{
		Source:  source,
		Dir:     dir,
		Keep:    keep,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

type backupDocument struct {
	TakenAt time.Time    `json:"takenAt"`
	Reason  string       `json:"reason,omitempty"`
	Users   []users.User `json:"users"`
}

// Handle processes users backup tasks.
func (j *UsersBackupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil {
		return errors.New("users backup: handler not configured")
	}
	var payload UsersBackupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics().Track(TaskUsersBackup)
	path, count, err := j.Run(ctx, payload.Reason)
	if err = tracker.End(err); err != nil {
		j.logger().Error("users backup failed", slog.Any("error", err))
		return err
	}
	j.logger().Info("users backup written", slog.String("path", path), slog.Int("users", count), slog.String("reason", payload.Reason))
	return nil
}

// Run writes one snapshot and returns its path and size.
func (j *UsersBackupJob) Run(ctx context.Context, reason string) (string, int, error) {
	list, err := j.Source.ListUsers(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("users backup: list: %w", err)
	}
	now := j.now()
	raw, err := json.MarshalIndent(backupDocument{TakenAt: now, Reason: reason, Users: list}, "", "  ")
	if err != nil {
		return "", 0, fmt.Errorf("users backup: encode: %w", err)
	}
	path := filepath.Join(j.Dir, backupPrefix+now.Format(backupTimeLayout)+backupSuffix)
	if err := users.WriteFileAtomic(path, raw); err != nil {
		return "", 0, fmt.Errorf("users backup: %w", err)
	}
	j.metrics().RecordBackup(len(list), now)
	if err := j.prune(); err != nil {
		j.logger().Warn("users backup prune", slog.Any("error", err))
	}
	return path, len(list), nil
}

func (j *UsersBackupJob) prune() error {
	if j.Keep <= 0 {
		return nil
	}
	entries, err := os.ReadDir(j.Dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasPrefix(e.Name(), backupPrefix) && strings.HasSuffix(e.Name(), backupSuffix) {
			names = append(names, e.Name())
		}
	}
	if len(names) <= j.Keep {
		return nil
	}
	sort.Strings(names)
	var errs []error
	for _, name := range names[:len(names)-j.Keep] {
		if err := os.Remove(filepath.Join(j.Dir, name)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (j *UsersBackupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *UsersBackupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *UsersBackupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
