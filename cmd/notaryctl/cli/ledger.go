package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/notarium/notarium/internal/accounting"
	"github.com/notarium/notarium/internal/accounting/reports"
)

// Ledger is the subset of the accounting service used by operators.
type Ledger interface {
	InitializeDefaultChart(ctx context.Context, actorID int64) (int, error)
	TrialBalance(ctx context.Context, asOf time.Time) (reports.TrialBalance, error)
	CheckIntegrity(ctx context.Context) (accounting.IntegrityReport, error)
}

// ErrIntegrityViolated is returned when the sweep finds unbalanced postings.
var ErrIntegrityViolated = errors.New("notaryctl: ledger integrity violated")

// LedgerCLI prints ledger operations for the terminal.
type LedgerCLI struct {
	ledger Ledger
	out    io.Writer
}

// NewLedgerCLI wraps a ledger for command output.
func NewLedgerCLI(ledger Ledger, out io.Writer) *LedgerCLI {
	return &LedgerCLI{ledger: ledger, out: out}
}

// InitChart seeds the standard chart of accounts.
func (c *LedgerCLI) InitChart(ctx context.Context, actorID int64) error {
	created, err := c.ledger.InitializeDefaultChart(ctx, actorID)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "%d account(s) created\n", created)
	return err
}

// TrialBalance renders the balance as of the given day.
func (c *LedgerCLI) TrialBalance(ctx context.Context, asOf time.Time) error {
	tb, err := c.ledger.TrialBalance(ctx, asOf)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "Compte\tLibellé\tCatégorie\tDébit\tCrédit\t\n")
	for _, row := range tb.Rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n", row.Number, row.Label, row.Category, row.Debit.StringFixed(2), row.Credit.StringFixed(2))
	}
	fmt.Fprintf(w, "Total\t\t\t%s\t%s\t\n", tb.TotalDebit.StringFixed(2), tb.TotalCredit.StringFixed(2))
	if err := w.Flush(); err != nil {
		return err
	}
	if !tb.Balanced() {
		_, err = fmt.Fprintf(c.out, "UNBALANCED: difference %s\n", tb.Difference().StringFixed(2))
		return err
	}
	return nil
}

// Integrity runs the sweep synchronously and fails on findings.
func (c *LedgerCLI) Integrity(ctx context.Context) error {
	report, err := c.ledger.CheckIntegrity(ctx)
	if err != nil {
		return err
	}
	for _, e := range report.Unbalanced {
		fmt.Fprintf(c.out, "entry %d: debit %s credit %s\n", e.EntryID, e.Debit.StringFixed(2), e.Credit.StringFixed(2))
	}
	fmt.Fprintf(c.out, "totals: debit %s credit %s\n", report.TotalDebit.StringFixed(2), report.TotalCredit.StringFixed(2))
	if !report.OK() {
		return ErrIntegrityViolated
	}
	return nil
}
