package accounting

import (
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type createAccountRequest struct {
	Number   string `json:"number" validate:"required,max=32"`
	Label    string `json:"label" validate:"required,max=200"`
	Type     string `json:"type" validate:"required,oneof=GENERAL CLIENT TIERS"`
	Category string `json:"category" validate:"omitempty,oneof=OFFICE CLIENT"`
}

type lineRequest struct {
	AccountID int64           `json:"account_id" validate:"required,gt=0"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

type entryRequest struct {
	Date           string        `json:"date" validate:"required,datetime=2006-01-02"`
	Label          string        `json:"label" validate:"required,max=255"`
	Journal        string        `json:"journal" validate:"required,oneof=BQ CA OD VT"`
	CaseID         *int64        `json:"case_id" validate:"omitempty,gt=0"`
	DocumentNumber string        `json:"document_number" validate:"max=64"`
	Lines          []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type reverseRequest struct {
	Date  string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Label string `json:"label" validate:"max=255"`
}

type receiptRequest struct {
	Date       string          `json:"date" validate:"required,datetime=2006-01-02"`
	Amount     decimal.Decimal `json:"amount"`
	Mode       string          `json:"mode" validate:"required,oneof=CASH CHECK TRANSFER MOBILE"`
	Purpose    string          `json:"purpose" validate:"required,max=255"`
	CaseID     *int64          `json:"case_id" validate:"omitempty,gt=0"`
	ClientID   *int64          `json:"client_id" validate:"omitempty,gt=0"`
	PaymentRef string          `json:"payment_ref" validate:"max=100"`
}

type invoiceRequest struct {
	IssueDate   string          `json:"issue_date" validate:"required,datetime=2006-01-02"`
	DueDate     string          `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	CaseID      *int64          `json:"case_id" validate:"omitempty,gt=0"`
	ClientID    *int64          `json:"client_id" validate:"omitempty,gt=0"`
	Pretax      decimal.Decimal `json:"pretax"`
	Tax         decimal.Decimal `json:"tax"`
	Description string          `json:"description" validate:"required"`
}

type paymentRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Mode string `json:"mode" validate:"omitempty,oneof=CASH CHECK TRANSFER MOBILE"`
}

type accountResponse struct {
	ID        int64     `json:"id"`
	Number    string    `json:"number"`
	Label     string    `json:"label"`
	Type      string    `json:"type"`
	Category  string    `json:"category"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func toAccountResponse(a Account) accountResponse {
	return accountResponse{
		ID:        a.ID,
		Number:    a.Number,
		Label:     a.Label,
		Type:      string(a.Type),
		Category:  string(a.Category),
		Active:    a.Active,
		CreatedAt: a.CreatedAt,
	}
}

type movementResponse struct {
	ID        int64           `json:"id"`
	AccountID int64           `json:"account_id"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

type entryResponse struct {
	ID             int64              `json:"id"`
	Date           string             `json:"date"`
	Label          string             `json:"label"`
	Journal        string             `json:"journal"`
	CaseID         *int64             `json:"case_id,omitempty"`
	DocumentNumber string             `json:"document_number,omitempty"`
	Posted         bool               `json:"posted"`
	PostedAt       *time.Time         `json:"posted_at,omitempty"`
	Kind           string             `json:"kind"`
	ReversalOf     *int64             `json:"reversal_of,omitempty"`
	TotalDebit     decimal.Decimal    `json:"total_debit"`
	TotalCredit    decimal.Decimal    `json:"total_credit"`
	Lines          []movementResponse `json:"lines"`
}

func toEntryResponse(e Entry) entryResponse {
	debit, credit := e.Totals()
	out := entryResponse{
		ID:             e.ID,
		Date:           e.Date.Format(dateLayout),
		Label:          e.Label,
		Journal:        string(e.Journal),
		CaseID:         e.CaseID,
		DocumentNumber: e.DocumentNumber,
		Posted:         e.Posted,
		PostedAt:       e.PostedAt,
		Kind:           string(e.Kind),
		ReversalOf:     e.ReversalOf,
		TotalDebit:     debit,
		TotalCredit:    credit,
		Lines:          make([]movementResponse, 0, len(e.Lines)),
	}
	for _, m := range e.Lines {
		out.Lines = append(out.Lines, movementResponse{ID: m.ID, AccountID: m.AccountID, Debit: m.Debit, Credit: m.Credit})
	}
	return out
}

type receiptResponse struct {
	ID         int64           `json:"id"`
	Number     string          `json:"number"`
	Date       string          `json:"date"`
	CaseID     *int64          `json:"case_id,omitempty"`
	ClientID   *int64          `json:"client_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Mode       string          `json:"mode"`
	PaymentRef string          `json:"payment_ref,omitempty"`
	Purpose    string          `json:"purpose"`
	EntryID    int64           `json:"entry_id"`
}

func toReceiptResponse(r Receipt) receiptResponse {
	return receiptResponse{
		ID:         r.ID,
		Number:     r.Number,
		Date:       r.Date.Format(dateLayout),
		CaseID:     r.CaseID,
		ClientID:   r.ClientID,
		Amount:     r.Amount,
		Mode:       string(r.Mode),
		PaymentRef: r.PaymentRef,
		Purpose:    r.Purpose,
		EntryID:    r.EntryID,
	}
}

type invoiceResponse struct {
	ID             int64           `json:"id"`
	Number         string          `json:"number"`
	IssueDate      string          `json:"issue_date"`
	DueDate        string          `json:"due_date,omitempty"`
	CaseID         *int64          `json:"case_id,omitempty"`
	ClientID       *int64          `json:"client_id,omitempty"`
	Pretax         decimal.Decimal `json:"pretax"`
	Tax            decimal.Decimal `json:"tax"`
	Total          decimal.Decimal `json:"total"`
	Status         string          `json:"status"`
	Description    string          `json:"description"`
	EntryID        *int64          `json:"entry_id,omitempty"`
	PaymentEntryID *int64          `json:"payment_entry_id,omitempty"`
	PaidAt         string          `json:"paid_at,omitempty"`
}

func toInvoiceResponse(inv Invoice) invoiceResponse {
	out := invoiceResponse{
		ID:             inv.ID,
		Number:         inv.Number,
		IssueDate:      inv.IssueDate.Format(dateLayout),
		CaseID:         inv.CaseID,
		ClientID:       inv.ClientID,
		Pretax:         inv.Pretax,
		Tax:            inv.Tax,
		Total:          inv.Total,
		Status:         string(inv.Status),
		Description:    inv.Description,
		EntryID:        inv.EntryID,
		PaymentEntryID: inv.PaymentEntryID,
	}
	if inv.DueDate != nil {
		out.DueDate = inv.DueDate.Format(dateLayout)
	}
	if inv.PaidAt != nil {
		out.PaidAt = inv.PaidAt.Format(dateLayout)
	}
	return out
}

type dashboardResponse struct {
	OfficeTotal    decimal.Decimal   `json:"office_total"`
	ClientTotal    decimal.Decimal   `json:"client_total"`
	Accounts       int               `json:"accounts"`
	Receipts       int               `json:"receipts"`
	Invoices       int               `json:"invoices"`
	RecentReceipts []receiptResponse `json:"recent_receipts"`
	RecentInvoices []invoiceResponse `json:"recent_invoices"`
	GeneratedAt    time.Time         `json:"generated_at"`
}

func toDashboardResponse(d Dashboard) dashboardResponse {
	out := dashboardResponse{
		OfficeTotal:    d.OfficeTotal,
		ClientTotal:    d.ClientTotal,
		Accounts:       d.Counts.Accounts,
		Receipts:       d.Counts.Receipts,
		Invoices:       d.Counts.Invoices,
		RecentReceipts: make([]receiptResponse, 0, len(d.RecentReceipts)),
		RecentInvoices: make([]invoiceResponse, 0, len(d.RecentInvoices)),
		GeneratedAt:    d.GeneratedAt,
	}
	for _, r := range d.RecentReceipts {
		out.RecentReceipts = append(out.RecentReceipts, toReceiptResponse(r))
	}
	for _, inv := range d.RecentInvoices {
		out.RecentInvoices = append(out.RecentInvoices, toInvoiceResponse(inv))
	}
	return out
}

func parseDate(raw string) (time.Time, error) {
	return time.Parse(dateLayout, raw)
}

func parseOptionalDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := parseDate(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
