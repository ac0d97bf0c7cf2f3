package cli

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymflow/gymflow/jobs"
)

type fakeEnqueuer struct {
	reasons []string
	err     error
}

func (f *fakeEnqueuer) EnqueueUsersBackup(ctx context.Context, reason string) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.reasons = append(f.reasons, reason)
	return &asynq.TaskInfo{ID: "task-1", Queue: jobs.QueueDefault, Type: jobs.TaskUsersBackup}, nil
}

type fakeInspector struct {
	info      *asynq.QueueInfo
	scheduled []*asynq.TaskInfo
	err       error
}

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func (f fakeInspector) ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return f.scheduled, f.err
}

func TestNewJobsCLIRequiresAddress(t *testing.T) {
	_, err := NewJobsCLI("")
	require.Error(t, err)
}

func TestBackupCommand(t *testing.T) {
	enq := &fakeEnqueuer{}
	c := &JobsCLI{client: enq}
	out, stdout, _ := buffers()
	out.JSON = true

	require.Equal(t, ExitOK, c.BackupCommand(context.Background(), "", out))
	assert.Equal(t, []string{"manual"}, enq.reasons)

	var body map[string]string
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &body))
	assert.Equal(t, "task-1", body["id"])
	assert.Equal(t, jobs.QueueDefault, body["queue"])
}

func TestBackupCommandFailure(t *testing.T) {
	c := &JobsCLI{client: &fakeEnqueuer{err: errors.New("redis down")}}
	out, _, stderr := buffers()
	assert.Equal(t, ExitFailure, c.BackupCommand(context.Background(), "nightly", out))
	assert.Contains(t, stderr.String(), "redis down")
}

func TestStatsCommand(t *testing.T) {
	c := &JobsCLI{inspector: fakeInspector{info: &asynq.QueueInfo{Queue: jobs.QueueDefault, Pending: 2, Active: 1, Failed: 4}}}
	out, stdout, _ := buffers()
	require.Equal(t, ExitOK, c.StatsCommand(out))
	assert.Equal(t, "queue=default pending=2 active=1 scheduled=0 retry=0 failed=4\n", stdout.String())
}

func TestScheduledCommand(t *testing.T) {
	next := time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC)
	c := &JobsCLI{inspector: fakeInspector{scheduled: []*asynq.TaskInfo{{ID: "a", Type: jobs.TaskUsersBackup, NextProcessAt: next}}}}
	out, stdout, _ := buffers()
	require.Equal(t, ExitOK, c.ScheduledCommand(0, out))
	assert.Equal(t, "a\tusers:backup\t2024-06-01T03:00:00Z\n", stdout.String())
}

func TestJobsCLIWithoutDependencies(t *testing.T) {
	var c *JobsCLI
	_, err := c.Backup(context.Background(), "x")
	require.Error(t, err)
	_, err = c.InspectQueue()
	require.Error(t, err)
	_, err = c.ListScheduled(5)
	require.Error(t, err)
}
