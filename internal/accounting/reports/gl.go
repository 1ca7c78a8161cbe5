package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerMovement is one posted movement joined with its entry and account.
type LedgerMovement struct {
	EntryID        int64           `json:"entry_id" db:"entry_id"`
	MovementID     int64           `json:"movement_id" db:"movement_id"`
	Date           time.Time       `json:"date" db:"date"`
	DocumentNumber string          `json:"document_number" db:"document_number"`
	Label          string          `json:"label" db:"label"`
	Journal        string          `json:"journal" db:"journal"`
	AccountID      int64           `json:"account_id" db:"account_id"`
	AccountNumber  string          `json:"account_number" db:"account_number"`
	Debit          decimal.Decimal `json:"debit" db:"debit"`
	Credit         decimal.Decimal `json:"credit" db:"credit"`
}

// LedgerLine is a movement with the running balance after it.
type LedgerLine struct {
	LedgerMovement
	Balance decimal.Decimal `json:"balance"`
}

// GeneralLedger is the ordered listing handed to renderers.
type GeneralLedger struct {
	Lines       []LedgerLine    `json:"lines"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	Closing     decimal.Decimal `json:"closing"`
}

// BuildGeneralLedger orders movements by entry date, entry id and movement id,
// then accumulates debit minus credit in that order.
func BuildGeneralLedger(movements []LedgerMovement) GeneralLedger {
	ordered := make([]LedgerMovement, len(movements))
	copy(ordered, movements)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.EntryID != b.EntryID {
			return a.EntryID < b.EntryID
		}
		return a.MovementID < b.MovementID
	})

	gl := GeneralLedger{Lines: make([]LedgerLine, 0, len(ordered))}
	running := decimal.Zero
	for _, mv := range ordered {
		running = running.Add(mv.Debit).Sub(mv.Credit)
		gl.Lines = append(gl.Lines, LedgerLine{LedgerMovement: mv, Balance: running})
		gl.TotalDebit = gl.TotalDebit.Add(mv.Debit)
		gl.TotalCredit = gl.TotalCredit.Add(mv.Credit)
	}
	gl.Closing = running
	return gl
}
