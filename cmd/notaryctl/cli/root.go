package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
)

// JobQueue is the queue surface driven by the jobs subcommands.
type JobQueue interface {
	Trigger(ctx context.Context, name, asOf string) (*asynq.TaskInfo, error)
	InspectQueue(ctx context.Context) (QueueStats, error)
	Close() error
}

// Env resolves backing resources lazily so --help never dials a database.
type Env struct {
	Stdout  io.Writer
	Migrate func(ctx context.Context) error
	Ledger  func(ctx context.Context) (Ledger, func(), error)
	Jobs    func() (JobQueue, error)
}

// NewRootCommand assembles the notaryctl command tree.
func NewRootCommand(env Env) *cobra.Command {
	root := &cobra.Command{
		Use:           "notaryctl",
		Short:         "Operator tooling for the notarium ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	if env.Stdout != nil {
		root.SetOut(env.Stdout)
	}
	root.AddCommand(
		migrateCommand(env),
		initChartCommand(env),
		trialBalanceCommand(env),
		integrityCommand(env),
		jobsCommand(env),
	)
	return root
}

func migrateCommand(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := env.Migrate(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("schema applied")
			return nil
		},
	}
}

func initChartCommand(env Env) *cobra.Command {
	var actorID int64
	cmd := &cobra.Command{
		Use:   "init-chart",
		Short: "Seed the standard chart of accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLedger(cmd, env, func(l *LedgerCLI) error {
				return l.InitChart(cmd.Context(), actorID)
			})
		},
	}
	cmd.Flags().Int64Var(&actorID, "actor", 0, "actor id recorded in the audit log")
	return cmd
}

func trialBalanceCommand(env Env) *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "trial-balance",
		Short: "Print the trial balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			day, err := parseDay(asOf)
			if err != nil {
				return err
			}
			return withLedger(cmd, env, func(l *LedgerCLI) error {
				return l.TrialBalance(cmd.Context(), day)
			})
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "balance date (YYYY-MM-DD), defaults to today")
	return cmd
}

func integrityCommand(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "integrity",
		Short: "Check that posted entries balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLedger(cmd, env, func(l *LedgerCLI) error {
				return l.Integrity(cmd.Context())
			})
		},
	}
}

func jobsCommand(env Env) *cobra.Command {
	jobsCmd := &cobra.Command{Use: "jobs", Short: "Background job helpers"}

	var asOf string
	trigger := &cobra.Command{
		Use:   "trigger <task>",
		Short: "Enqueue ledger:integrity or reports:tb-warmup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := env.Jobs()
			if err != nil {
				return err
			}
			defer queue.Close()
			info, err := queue.Trigger(cmd.Context(), args[0], asOf)
			if err != nil {
				return err
			}
			cmd.Printf("enqueued %s (%s) on %s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	trigger.Flags().StringVar(&asOf, "as-of", "", "warmup date (YYYY-MM-DD)")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show default queue counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			queue, err := env.Jobs()
			if err != nil {
				return err
			}
			defer queue.Close()
			s, err := queue.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry)
			return nil
		},
	}

	jobsCmd.AddCommand(trigger, stats)
	return jobsCmd
}

func withLedger(cmd *cobra.Command, env Env, fn func(*LedgerCLI) error) error {
	ledger, release, err := env.Ledger(cmd.Context())
	if err != nil {
		return err
	}
	if release != nil {
		defer release()
	}
	return fn(NewLedgerCLI(ledger, cmd.OutOrStdout()))
}

func parseDay(raw string) (time.Time, error) {
	if raw == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("notaryctl: invalid date %q", raw)
	}
	return day, nil
}
