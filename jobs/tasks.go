package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskUsersBackup is the task type for snapshotting the users database.
	TaskUsersBackup = "users:backup"
)

// UsersBackupPayload describes why a backup was requested.
type UsersBackupPayload struct {
	Reason string `json:"reason"`
}

// NewUsersBackupTask constructs an Asynq task.
func NewUsersBackupTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(UsersBackupPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskUsersBackup, data), nil
}
