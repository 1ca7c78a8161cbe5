package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// AccountBalance aggregates posted movements of one account up to a date.
type AccountBalance struct {
	AccountID int64           `json:"account_id" db:"account_id"`
	Number    string          `json:"number" db:"number"`
	Label     string          `json:"label" db:"label"`
	Category  string          `json:"category" db:"category"`
	Debit     decimal.Decimal `json:"debit" db:"debit"`
	Credit    decimal.Decimal `json:"credit" db:"credit"`
}

// Balance returns debit minus credit.
func (a AccountBalance) Balance() decimal.Decimal {
	return a.Debit.Sub(a.Credit)
}

// TrialBalanceRow presents a non-zero balance in the debit or credit column.
type TrialBalanceRow struct {
	AccountID int64           `json:"account_id"`
	Number    string          `json:"number"`
	Label     string          `json:"label"`
	Category  string          `json:"category"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Balance   decimal.Decimal `json:"balance"`
}

// TrialBalance is the structure handed to renderers.
type TrialBalance struct {
	AsOf        time.Time         `json:"as_of"`
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  decimal.Decimal   `json:"total_debit"`
	TotalCredit decimal.Decimal   `json:"total_credit"`
}

// Difference returns total debit minus total credit.
func (tb TrialBalance) Difference() decimal.Decimal {
	return tb.TotalDebit.Sub(tb.TotalCredit)
}

// Balanced reports whether both columns agree to the cent.
func (tb TrialBalance) Balanced() bool {
	return tb.Difference().Abs().LessThan(decimal.New(1, -2))
}

// BuildTrialBalance drops zero balances and splits the rest by sign.
func BuildTrialBalance(asOf time.Time, balances []AccountBalance) TrialBalance {
	result := TrialBalance{AsOf: asOf, Rows: make([]TrialBalanceRow, 0, len(balances))}
	for _, acc := range balances {
		bal := acc.Balance()
		if bal.IsZero() {
			continue
		}
		row := TrialBalanceRow{
			AccountID: acc.AccountID,
			Number:    acc.Number,
			Label:     acc.Label,
			Category:  acc.Category,
			Debit:     decimal.Zero,
			Credit:    decimal.Zero,
			Balance:   bal,
		}
		if bal.IsPositive() {
			row.Debit = bal
		} else {
			row.Credit = bal.Abs()
		}
		result.Rows = append(result.Rows, row)
		result.TotalDebit = result.TotalDebit.Add(row.Debit)
		result.TotalCredit = result.TotalCredit.Add(row.Credit)
	}
	sort.SliceStable(result.Rows, func(i, j int) bool {
		return result.Rows[i].Number < result.Rows[j].Number
	})
	return result
}
