package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/notarium/notarium/internal/accounting/reports"
	jobmetrics "github.com/notarium/notarium/internal/jobs"
)

// TrialBalancer builds (and caches) the trial balance.
type TrialBalancer interface {
	TrialBalance(ctx context.Context, asOf time.Time) (reports.TrialBalance, error)
}

// TrialBalanceWarmupJob fills the report cache before office hours.
type TrialBalanceWarmupJob struct {
	Reports TrialBalancer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewTrialBalanceWarmupJob wires dependencies for the warmup handler.
func NewTrialBalanceWarmupJob(reports TrialBalancer, logger *slog.Logger, metrics *jobmetrics.Metrics) *TrialBalanceWarmupJob {
	return &TrialBalanceWarmupJob{
		Reports: reports,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskTrialBalanceWarmup tasks.
func (j *TrialBalanceWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reports == nil {
		return errors.New("trial balance warmup: handler not configured")
	}
	var payload TrialBalanceWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	asOf := j.now()
	if payload.AsOf != "" {
		parsed, err := time.Parse("2006-01-02", payload.AsOf)
		if err != nil {
			return asynq.SkipRetry
		}
		asOf = parsed
	}
	asOf = time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)

	tracker := j.metrics().Track(TaskTrialBalanceWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("as_of", asOf.Format("2006-01-02")))
	warmCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	tb, err := j.Reports.TrialBalance(warmCtx, asOf)
	if err != nil {
		resultErr = err
		logger.Error("warm trial balance", slog.Any("error", err))
		return resultErr
	}
	logger.Info("trial balance warmed", slog.Int("rows", len(tb.Rows)), slog.Bool("balanced", tb.Balanced()))
	return resultErr
}

func (j *TrialBalanceWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTrialBalanceWarmup))
	}
	return slog.Default().With(slog.String("job", TaskTrialBalanceWarmup))
}

func (j *TrialBalanceWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *TrialBalanceWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
