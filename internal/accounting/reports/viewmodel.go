package reports

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// AmountFormatter renders amounts with locale grouping and two decimals.
type AmountFormatter struct {
	printer *message.Printer
}

// NewAmountFormatter builds a formatter for the language tag.
func NewAmountFormatter(tag language.Tag) AmountFormatter {
	return AmountFormatter{printer: message.NewPrinter(tag)}
}

// Format renders d, e.g. "1 250,00" for French.
func (f AmountFormatter) Format(d decimal.Decimal) string {
	if f.printer == nil {
		return d.StringFixed(2)
	}
	v, _ := d.Round(2).Float64()
	return f.printer.Sprint(number.Decimal(v, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

// TrialBalanceRowView is a display row.
type TrialBalanceRowView struct {
	Number   string `json:"number"`
	Label    string `json:"label"`
	Category string `json:"category"`
	Debit    string `json:"debit"`
	Credit   string `json:"credit"`
}

// TrialBalanceView holds printable trial balance data.
type TrialBalanceView struct {
	AsOf        string                `json:"as_of"`
	Rows        []TrialBalanceRowView `json:"rows"`
	TotalDebit  string                `json:"total_debit"`
	TotalCredit string                `json:"total_credit"`
	Balanced    bool                  `json:"balanced"`
}

// LedgerLineView is a display row of the general ledger.
type LedgerLineView struct {
	Date           string `json:"date"`
	DocumentNumber string `json:"document_number"`
	Label          string `json:"label"`
	Account        string `json:"account"`
	Debit          string `json:"debit"`
	Credit         string `json:"credit"`
	Balance        string `json:"balance"`
}

// GeneralLedgerView holds printable general ledger data.
type GeneralLedgerView struct {
	Lines       []LedgerLineView `json:"lines"`
	TotalDebit  string           `json:"total_debit"`
	TotalCredit string           `json:"total_credit"`
	Closing     string           `json:"closing"`
}

// TrialBalance converts a trial balance for display. Zero cells stay blank.
func (f AmountFormatter) TrialBalance(tb TrialBalance) TrialBalanceView {
	view := TrialBalanceView{
		AsOf:        tb.AsOf.Format("02/01/2006"),
		Rows:        make([]TrialBalanceRowView, 0, len(tb.Rows)),
		TotalDebit:  f.Format(tb.TotalDebit),
		TotalCredit: f.Format(tb.TotalCredit),
		Balanced:    tb.Balanced(),
	}
	for _, row := range tb.Rows {
		view.Rows = append(view.Rows, TrialBalanceRowView{
			Number:   row.Number,
			Label:    row.Label,
			Category: row.Category,
			Debit:    f.cell(row.Debit),
			Credit:   f.cell(row.Credit),
		})
	}
	return view
}

// GeneralLedger converts a general ledger for display.
func (f AmountFormatter) GeneralLedger(gl GeneralLedger) GeneralLedgerView {
	view := GeneralLedgerView{
		Lines:       make([]LedgerLineView, 0, len(gl.Lines)),
		TotalDebit:  f.Format(gl.TotalDebit),
		TotalCredit: f.Format(gl.TotalCredit),
		Closing:     f.Format(gl.Closing),
	}
	for _, line := range gl.Lines {
		view.Lines = append(view.Lines, LedgerLineView{
			Date:           line.Date.Format("02/01/2006"),
			DocumentNumber: line.DocumentNumber,
			Label:          line.Label,
			Account:        line.AccountNumber,
			Debit:          f.cell(line.Debit),
			Credit:         f.cell(line.Credit),
			Balance:        f.Format(line.Balance),
		})
	}
	return view
}

func (f AmountFormatter) cell(d decimal.Decimal) string {
	if d.IsZero() {
		return ""
	}
	return f.Format(d)
}
