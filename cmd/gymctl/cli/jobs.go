package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gymflow/gymflow/jobs"
)

// Enqueuer submits users backup tasks.
type Enqueuer interface {
	EnqueueUsersBackup(ctx context.Context, reason string) (*asynq.TaskInfo, error)
}

// Inspector reads queue state.
type Inspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
}

// JobsCLI wraps manual management helpers for background jobs.
type JobsCLI struct {
	client    Enqueuer
	inspector Inspector
	closers   []io.Closer
}

// NewJobsCLI initialises the helpers against the given Redis address.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	if redisAddr == "" {
		return nil, errors.New("jobs cli: redis address is required")
	}
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	client, err := jobs.NewClient(opts)
	if err != nil {
		return nil, err
	}
	inspector := asynq.NewInspector(opts)
	return &JobsCLI{client: client, inspector: inspector, closers: []io.Closer{inspector, client}}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var errs []error
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Backup enqueues an on-demand users backup.
func (c *JobsCLI) Backup(ctx context.Context, reason string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	if reason == "" {
		reason = "manual"
	}
	return c.client.EnqueueUsersBackup(ctx, reason)
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Failed    int    `json:"failed"`
}

// InspectQueue reports the default queue metrics.
func (c *JobsCLI) InspectQueue() (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Failed = info.Failed
	}
	return stats, nil
}

// ListScheduled returns scheduled task infos.
func (c *JobsCLI) ListScheduled(size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

// BackupCommand enqueues a backup and prints the task id.
func (c *JobsCLI) BackupCommand(ctx context.Context, reason string, out Output) int {
	out = out.withDefaults()
	info, err := c.Backup(ctx, reason)
	if err != nil {
		return fail(out, "jobs backup", err)
	}
	if out.JSON {
		return encode(out, "jobs backup", map[string]string{"id": info.ID, "queue": info.Queue})
	}
	_, _ = fmt.Fprintf(out.Stdout, "enqueued %s on %s\n", info.ID, info.Queue)
	return ExitOK
}

// StatsCommand prints the queue state.
func (c *JobsCLI) StatsCommand(out Output) int {
	out = out.withDefaults()
	stats, err := c.InspectQueue()
	if err != nil {
		return fail(out, "jobs stats", err)
	}
	if out.JSON {
		return encode(out, "jobs stats", stats)
	}
	_, _ = fmt.Fprintf(out.Stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d failed=%d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Failed)
	return ExitOK
}

// ScheduledCommand lists upcoming scheduled tasks.
func (c *JobsCLI) ScheduledCommand(size int, out Output) int {
	out = out.withDefaults()
	tasks, err := c.ListScheduled(size)
	if err != nil {
		return fail(out, "jobs scheduled", err)
	}
	if out.JSON {
		return encode(out, "jobs scheduled", tasks)
	}
	for _, task := range tasks {
		_, _ = fmt.Fprintf(out.Stdout, "%s\t%s\t%s\n", task.ID, task.Type, task.NextProcessAt.UTC().Format(time.RFC3339))
	}
	return ExitOK
}
