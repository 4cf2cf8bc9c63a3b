package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/fichaflow/fichaflow/internal/jobs"
)

// SessionReminderJob notifies instructors about the sessions scheduled for a
// given day. Delivery is a log line for now; the queue boundary is what the
// callers depend on.
type SessionReminderJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSessionReminderJob wires dependencies for the reminder handler.
func NewSessionReminderJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionReminderJob {
	return &SessionReminderJob{
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

type reminderRow struct {
	SessionID  int64
	FichaCode  string
	StartTime  string
	Instructor string
}

// Handle processes session reminder tasks.
func (j *SessionReminderJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("session reminder: handler not configured")
	}
	var payload SessionReminderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	day := j.now()
	if payload.Date != "" {
		parsed, err := time.Parse("2006-01-02", payload.Date)
		if err != nil {
			return asynq.SkipRetry
		}
		day = parsed
	}
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	tracker := j.metrics().Track(TaskSessionReminder)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("day", day.Format("2006-01-02")))

	rows, err := j.fetchSessions(ctx, day)
	if err != nil {
		resultErr = err
		logger.Error("load reminder sessions", slog.Any("error", err))
		return resultErr
	}
	if len(rows) == 0 {
		logger.Info("no sessions scheduled")
		return resultErr
	}

	for _, row := range rows {
		logger.Info("session reminder",
			slog.Int64("session", row.SessionID),
			slog.String("ficha", row.FichaCode),
			slog.String("start", row.StartTime),
			slog.String("instructor", row.Instructor),
		)
	}
	logger.Info("completed session reminders", slog.Int("sessions", len(rows)))
	return resultErr
}

func (j *SessionReminderJob) fetchSessions(ctx context.Context, day time.Time) ([]reminderRow, error) {
	const q = `
SELECT s.id, f.code, s.start_time, u.email
FROM attendance_sessions s
JOIN fichas f ON f.id = s.ficha_id
JOIN users u ON u.id = s.created_by
WHERE s.session_date = $1
ORDER BY s.start_time, s.id`

	rows, err := j.Pool.Query(ctx, q, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]reminderRow, 0)
	for rows.Next() {
		var row reminderRow
		if err := rows.Scan(&row.SessionID, &row.FichaCode, &row.StartTime, &row.Instructor); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (j *SessionReminderJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSessionReminder))
	}
	return slog.Default().With(slog.String("job", TaskSessionReminder))
}

func (j *SessionReminderJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SessionReminderJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
