package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity scans posted entries for imbalance.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskTrialBalanceWarmup pre-builds the trial balance into the report cache.
	TaskTrialBalanceWarmup = "reports:tb-warmup"
)

// LedgerIntegrityPayload parameterises an integrity sweep.
type LedgerIntegrityPayload struct {
	RequestedBy string `json:"requested_by,omitempty"`
}

// TrialBalanceWarmupPayload names the date to warm. Empty means today.
type TrialBalanceWarmupPayload struct {
	AsOf string `json:"as_of,omitempty"`
}

// NewLedgerIntegrityTask constructs an integrity task.
func NewLedgerIntegrityTask(requestedBy string) (*asynq.Task, error) {
	data, err := json.Marshal(LedgerIntegrityPayload{RequestedBy: requestedBy})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data, asynq.Queue(QueueDefault), asynq.Timeout(10*time.Minute)), nil
}

// NewTrialBalanceWarmupTask constructs a warmup task for asOf (YYYY-MM-DD or empty).
func NewTrialBalanceWarmupTask(asOf string) (*asynq.Task, error) {
	if asOf != "" {
		if _, err := time.Parse("2006-01-02", asOf); err != nil {
			return nil, err
		}
	}
	data, err := json.Marshal(TrialBalanceWarmupPayload{AsOf: asOf})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTrialBalanceWarmup, data, asynq.Queue(QueueDefault), asynq.Timeout(5*time.Minute)), nil
}
