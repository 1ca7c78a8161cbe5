package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/notarium/notarium/internal/accounting"
	jobmetrics "github.com/notarium/notarium/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// IntegrityChecker runs the ledger consistency sweep.
type IntegrityChecker interface {
	CheckIntegrity(ctx context.Context) (accounting.IntegrityReport, error)
}

// LedgerIntegrityJob verifies every posted entry balances and the ledger sums to zero.
type LedgerIntegrityJob struct {
	Checker IntegrityChecker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLedgerIntegrityJob wires dependencies for the integrity handler.
func NewLedgerIntegrityJob(checker IntegrityChecker, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{Checker: checker, Logger: logger, Metrics: metrics}
}

// Handle processes TaskLedgerIntegrity tasks. Findings are logged, not retried.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Checker == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload LedgerIntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics().Track(TaskLedgerIntegrity)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	if payload.RequestedBy != "" {
		logger = logger.With(slog.String("requested_by", payload.RequestedBy))
	}
	start := time.Now()
	report, err := j.Checker.CheckIntegrity(ctx)
	if err != nil {
		resultErr = err
		logger.Error("integrity check failed", slog.Any("error", err))
		return resultErr
	}
	for _, e := range report.Unbalanced {
		logger.Warn("unbalanced posted entry",
			slog.Int64("entry_id", e.EntryID),
			slog.String("debit", e.Debit.StringFixed(2)),
			slog.String("credit", e.Credit.StringFixed(2)),
		)
	}
	j.metrics().AddImbalances(len(report.Unbalanced))
	if !report.OK() {
		logger.Warn("ledger integrity violated",
			slog.String("total_debit", report.TotalDebit.StringFixed(2)),
			slog.String("total_credit", report.TotalCredit.StringFixed(2)),
			slog.Int("unbalanced", len(report.Unbalanced)),
		)
		return resultErr
	}
	logger.Info("ledger integrity verified",
		slog.String("total", report.TotalDebit.StringFixed(2)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *LedgerIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrity))
}

func (j *LedgerIntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
