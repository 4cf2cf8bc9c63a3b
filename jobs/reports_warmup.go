package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/fichaflow/fichaflow/internal/jobs"
	"github.com/fichaflow/fichaflow/internal/reports"
	"github.com/fichaflow/fichaflow/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// systemActor runs scheduled aggregation with administrative scope. It never
// reaches a handler, so it carries no real account id.
var systemActor = shared.Actor{ID: 0, Role: shared.RoleAdmin}

// ReportsWarmupJob pre-populates the report caches so the first dashboard
// hit after an invalidation does not pay the aggregation cost.
type ReportsWarmupJob struct {
	Reports *reports.Service
	Cache   *reports.Cache
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReportsWarmupJob wires dependencies for the warmup handler.
func NewReportsWarmupJob(reportsSvc *reports.Service, cache *reports.Cache, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportsWarmupJob {
	return &ReportsWarmupJob{
		Reports: reportsSvc,
		Cache:   cache,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes report warmup tasks.
func (j *ReportsWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reports == nil {
		return errors.New("reports warmup: handler not configured")
	}
	var payload ReportsWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskReportsWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting reports warmup")

	filters := []reports.Filter{{}}
	if payload.WindowDays > 0 {
		now := j.now()
		from := now.AddDate(0, 0, -payload.WindowDays)
		filters = append(filters, reports.Filter{From: &from, To: &now})
	}

	start := j.now()
	for _, filter := range filters {
		if err := j.warmFilter(ctx, filter); err != nil {
			resultErr = err
			logger.Error("warm report filter", slog.Any("error", err))
			return resultErr
		}
	}

	logger.Info("completed reports warmup", slog.Int("filters", len(filters)), slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *ReportsWarmupJob) warmFilter(ctx context.Context, filter reports.Filter) error {
	// Each filter gets at most 20s of aggregation time.
	filterCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	if err := j.warm(filterCtx, "reports:global:"+filter.CacheKey(), func(ctx context.Context) (interface{}, error) {
		return j.Reports.Global(ctx, systemActor, filter)
	}); err != nil {
		return err
	}
	return j.warm(filterCtx, "reports:top_fichas:"+filter.CacheKey(), func(ctx context.Context) (interface{}, error) {
		return j.Reports.TopFichasByAbsences(ctx, systemActor, filter)
	})
}

func (j *ReportsWarmupJob) warm(ctx context.Context, keyBase string, loader func(context.Context) (interface{}, error)) error {
	key, err := j.Cache.BuildKey(ctx, keyBase)
	if err != nil {
		return err
	}
	var sink json.RawMessage
	return j.Cache.FetchJSON(ctx, key, &sink, loader)
}

func (j *ReportsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReportsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskReportsWarmup))
}

func (j *ReportsWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReportsWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
