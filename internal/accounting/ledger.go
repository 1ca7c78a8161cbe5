package accounting

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/notarium/notarium/internal/accounting/reports"
)

const dashboardRecent = 5

// Dashboard summarises office and client positions for the home screen.
type Dashboard struct {
	OfficeTotal    decimal.Decimal
	ClientTotal    decimal.Decimal
	Counts         DocumentCounts
	RecentReceipts []Receipt
	RecentInvoices []Invoice
	GeneratedAt    time.Time
}

// EntryImbalance identifies a posted entry whose columns disagree.
type EntryImbalance struct {
	EntryID int64
	Debit   decimal.Decimal
	Credit  decimal.Decimal
}

// IntegrityReport is the outcome of a ledger consistency sweep.
type IntegrityReport struct {
	CheckedAt   time.Time
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	Unbalanced  []EntryImbalance
}

// OK reports whether the ledger is consistent.
func (r IntegrityReport) OK() bool {
	return len(r.Unbalanced) == 0 && balanced(r.TotalDebit, r.TotalCredit)
}

// GeneralLedger lists posted movements with a running balance.
func (s *Service) GeneralLedger(ctx context.Context, filter LedgerFilter) (reports.GeneralLedger, error) {
	var gl reports.GeneralLedger
	parts := []string{"gl", accountPart(filter.AccountID), datePart(filter.Range.From), datePart(filter.Range.To)}
	err := s.cached(ctx, parts, &gl, func(ctx context.Context) (any, error) {
		var movements []reports.LedgerMovement
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			movements, err = tx.LedgerMovements(ctx, filter)
			return err
		})
		if err != nil {
			return nil, err
		}
		return reports.BuildGeneralLedger(movements), nil
	})
	return gl, err
}

// TrialBalance aggregates posted movements per active account up to asOf.
func (s *Service) TrialBalance(ctx context.Context, asOf time.Time) (reports.TrialBalance, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	var tb reports.TrialBalance
	parts := []string{"tb", asOf.Format("2006-01-02")}
	err := s.cached(ctx, parts, &tb, func(ctx context.Context) (any, error) {
		var balances []reports.AccountBalance
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			balances, err = tx.AccountBalances(ctx, asOf, AccountFilter{ActiveOnly: true})
			return err
		})
		if err != nil {
			return nil, err
		}
		return reports.BuildTrialBalance(asOf, balances), nil
	})
	return tb, err
}

// Dashboard gathers category totals, document counts and recent activity.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	now := s.now()
	out := Dashboard{GeneratedAt: now}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.repo.WithTx(gctx, func(ctx context.Context, tx TxRepository) error {
			balances, err := tx.AccountBalances(ctx, now, AccountFilter{ActiveOnly: true})
			if err != nil {
				return err
			}
			for _, b := range balances {
				switch Category(b.Category) {
				case CategoryOffice:
					out.OfficeTotal = out.OfficeTotal.Add(b.Balance())
				case CategoryClientTrust:
					out.ClientTotal = out.ClientTotal.Add(b.Balance())
				}
			}
			return nil
		})
	})
	g.Go(func() error {
		return s.repo.WithTx(gctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			out.Counts, err = tx.CountDocuments(ctx)
			return err
		})
	})
	g.Go(func() error {
		return s.repo.WithTx(gctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			out.RecentReceipts, err = tx.ListReceipts(ctx, DocumentFilter{Limit: dashboardRecent})
			return err
		})
	})
	g.Go(func() error {
		return s.repo.WithTx(gctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			out.RecentInvoices, err = tx.ListInvoices(ctx, DocumentFilter{Limit: dashboardRecent})
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return out, nil
}

// CheckIntegrity verifies that every posted entry balances and that the
// ledger as a whole sums to zero.
func (s *Service) CheckIntegrity(ctx context.Context) (IntegrityReport, error) {
	report := IntegrityReport{CheckedAt: s.now()}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		unbalanced, err := tx.UnbalancedEntries(ctx, BalanceTolerance)
		if err != nil {
			return err
		}
		report.Unbalanced = unbalanced
		balances, err := tx.AccountBalances(ctx, report.CheckedAt, AccountFilter{})
		if err != nil {
			return err
		}
		for _, b := range balances {
			report.TotalDebit = report.TotalDebit.Add(b.Debit)
			report.TotalCredit = report.TotalCredit.Add(b.Credit)
		}
		return nil
	})
	if err != nil {
		return IntegrityReport{}, err
	}
	return report, nil
}

func (s *Service) cached(ctx context.Context, parts []string, dest any, loader func(context.Context) (any, error)) error {
	if s.cache == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return assign(value, dest)
	}
	key, err := s.cache.BuildKey(ctx, parts...)
	if err != nil {
		return err
	}
	return s.cache.FetchJSON(ctx, key, dest, loader)
}

func assign(value, dest any) error {
	switch out := dest.(type) {
	case *reports.GeneralLedger:
		*out = value.(reports.GeneralLedger)
	case *reports.TrialBalance:
		*out = value.(reports.TrialBalance)
	}
	return nil
}

func accountPart(id *int64) string {
	if id == nil {
		return "all"
	}
	return strconv.FormatInt(*id, 10)
}

func datePart(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02")
}
