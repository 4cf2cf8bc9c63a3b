package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReportsWarmup pre-populates the report caches.
	TaskReportsWarmup = "reports:warmup"
	// TaskSessionReminder nudges instructors about today's sessions.
	TaskSessionReminder = "attendance:session_reminder"
)

// ReportsWarmupPayload scopes a warmup run.
type ReportsWarmupPayload struct {
	// WindowDays also warms a trailing date-range variant of the report
	// when positive.
	WindowDays int `json:"window_days"`
}

// NewReportsWarmupTask constructs an Asynq task.
func NewReportsWarmupTask(payload ReportsWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportsWarmup, data), nil
}

// SessionReminderPayload scopes a reminder run to one day. Empty means today.
type SessionReminderPayload struct {
	Date string `json:"date"`
}

// NewSessionReminderTask constructs an Asynq task.
func NewSessionReminderTask(payload SessionReminderPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionReminder, data), nil
}
