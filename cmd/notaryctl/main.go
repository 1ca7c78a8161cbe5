package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/notarium/notarium/cmd/notaryctl/cli"
	"github.com/notarium/notarium/internal/app"
	"github.com/notarium/notarium/internal/platform/db"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	root := cli.NewRootCommand(cli.Env{
		Stdout: os.Stdout,
		Migrate: func(ctx context.Context) error {
			pool, err := db.New(ctx, cfg.PGDSN)
			if err != nil {
				return err
			}
			defer pool.Close()
			return db.Migrate(ctx, pool)
		},
		Ledger: func(ctx context.Context) (cli.Ledger, func(), error) {
			pool, err := db.New(ctx, cfg.PGDSN)
			if err != nil {
				return nil, nil, err
			}
			return app.NewLedgerService(cfg, pool, app.LedgerDeps{}), pool.Close, nil
		},
		Jobs: func() (cli.JobQueue, error) {
			queue, err := cli.NewJobsCLI(cfg.RedisAddr)
			if err != nil {
				return nil, err
			}
			return queue, nil
		},
	})
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
