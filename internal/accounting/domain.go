package accounting

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType classifies accounts in the chart.
type AccountType string

const (
	AccountTypeGeneral     AccountType = "GENERAL"
	AccountTypeClientTrust AccountType = "CLIENT"
	AccountTypeThirdParty  AccountType = "TIERS"
)

// Category separates office money from funds held for clients.
type Category string

const (
	CategoryUnset       Category = ""
	CategoryOffice      Category = "OFFICE"
	CategoryClientTrust Category = "CLIENT"
)

// JournalCode enumerates the journals an entry can belong to.
type JournalCode string

const (
	JournalBank  JournalCode = "BQ"
	JournalCash  JournalCode = "CA"
	JournalMisc  JournalCode = "OD"
	JournalSales JournalCode = "VT"
)

// EntryKind distinguishes ordinary entries from reversals.
type EntryKind string

const (
	EntryKindNormal   EntryKind = "NORMAL"
	EntryKindReversal EntryKind = "REVERSAL"
)

// PaymentMode enumerates how money was received.
type PaymentMode string

const (
	PaymentCash     PaymentMode = "CASH"
	PaymentCheck    PaymentMode = "CHECK"
	PaymentTransfer PaymentMode = "TRANSFER"
	PaymentMobile   PaymentMode = "MOBILE"
)

// InvoiceStatus enumerates invoice lifecycle values.
type InvoiceStatus string

const (
	InvoiceUnpaid    InvoiceStatus = "UNPAID"
	InvoicePaid      InvoiceStatus = "PAID"
	InvoiceCancelled InvoiceStatus = "CANCELLED"
)

// BalanceTolerance is the largest accepted gap between debits and credits.
var BalanceTolerance = decimal.New(1, -2)

// Account models a chart of accounts entry.
type Account struct {
	ID        int64
	Number    string
	Label     string
	Type      AccountType
	Category  Category
	Active    bool
	CreatedAt time.Time
}

// Entry is one journal transaction. Posted entries are immutable.
type Entry struct {
	ID             int64
	Date           time.Time
	Label          string
	Journal        JournalCode
	CaseID         *int64
	DocumentNumber string
	Posted         bool
	PostedAt       *time.Time
	Kind           EntryKind
	ReversalOf     *int64
	CreatedBy      int64
	CreatedAt      time.Time
	Lines          []Movement
}

// Totals sums the debit and credit columns of the entry.
func (e Entry) Totals() (debit, credit decimal.Decimal) {
	return sumLines(e.Lines)
}

// Movement is a single line of an entry.
type Movement struct {
	ID        int64
	EntryID   int64
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// Receipt records money received into a client-trust account.
type Receipt struct {
	ID         int64
	Number     string
	Sequence   int64
	Date       time.Time
	CaseID     *int64
	ClientID   *int64
	Amount     decimal.Decimal
	Mode       PaymentMode
	PaymentRef string
	Purpose    string
	EntryID    int64
	CreatedBy  int64
	CreatedAt  time.Time
}

// Invoice records office fees billed to a client.
type Invoice struct {
	ID             int64
	Number         string
	Sequence       int64
	IssueDate      time.Time
	DueDate        *time.Time
	CaseID         *int64
	ClientID       *int64
	Pretax         decimal.Decimal
	Tax            decimal.Decimal
	Total          decimal.Decimal
	Status         InvoiceStatus
	Description    string
	EntryID        *int64
	PaymentEntryID *int64
	PaidAt         *time.Time
	CreatedBy      int64
	CreatedAt      time.Time
}

// CreateAccountInput carries the fields for a new account.
type CreateAccountInput struct {
	Number   string
	Label    string
	Type     AccountType
	Category Category
}

// AccountFilter narrows account listings.
type AccountFilter struct {
	ActiveOnly bool
	Category   *Category
}

// LineInput describes one movement of a new entry.
type LineInput struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// EntryInput groups the fields required to create an entry.
type EntryInput struct {
	Date           time.Time
	Label          string
	Journal        JournalCode
	Lines          []LineInput
	CaseID         *int64
	DocumentNumber string
	AuthorID       int64
}

// ReverseInput wraps parameters for a reversal.
type ReverseInput struct {
	EntryID int64
	ActorID int64
	Label   string
	Date    *time.Time
}

// DateRange bounds entry dates, both ends inclusive.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether d falls inside the range.
func (r DateRange) Contains(d time.Time) bool {
	if r.From != nil && d.Before(*r.From) {
		return false
	}
	if r.To != nil && d.After(*r.To) {
		return false
	}
	return true
}

// ReceiptInput groups the fields of a new receipt.
type ReceiptInput struct {
	Date       time.Time
	Amount     decimal.Decimal
	Mode       PaymentMode
	Purpose    string
	CaseID     *int64
	ClientID   *int64
	PaymentRef string
	AuthorID   int64
}

// InvoiceInput groups the fields of a new invoice.
type InvoiceInput struct {
	IssueDate   time.Time
	DueDate     *time.Time
	CaseID      *int64
	ClientID    *int64
	Pretax      decimal.Decimal
	Tax         decimal.Decimal
	Description string
	AuthorID    int64
}

// PaymentInput settles an invoice.
type PaymentInput struct {
	Date    time.Time
	Mode    PaymentMode
	ActorID int64
}

// DocumentFilter pages through receipts or invoices.
type DocumentFilter struct {
	Limit  int
	Offset int
	Status *InvoiceStatus
}

// LedgerFilter narrows the general ledger to one account or a date window.
type LedgerFilter struct {
	AccountID *int64
	Range     DateRange
}

// DocumentCounts summarises how many business documents exist.
type DocumentCounts struct {
	Accounts int
	Receipts int
	Invoices int
}

func sumLines(lines []Movement) (debit, credit decimal.Decimal) {
	for _, l := range lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}

func balanced(debit, credit decimal.Decimal) bool {
	return debit.Sub(credit).Abs().LessThanOrEqual(BalanceTolerance)
}
