package accounting

import (
	"fmt"
	"strings"
)

func validJournal(code JournalCode) bool {
	switch code {
	case JournalBank, JournalCash, JournalMisc, JournalSales:
		return true
	}
	return false
}

func validPaymentMode(mode PaymentMode) bool {
	switch mode {
	case PaymentCash, PaymentCheck, PaymentTransfer, PaymentMobile:
		return true
	}
	return false
}

// Validate ensures the entry input is well formed. Balance is checked separately
// so that an unbalanced draft can still be stored.
func (in EntryInput) Validate() error {
	if in.Date.IsZero() {
		return fmt.Errorf("%w: entry date required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Label) == "" {
		return fmt.Errorf("%w: entry label required", ErrInvalidInput)
	}
	if !validJournal(in.Journal) {
		return fmt.Errorf("accounting: unknown journal %q", in.Journal)
	}
	if len(in.Lines) == 0 {
		return ErrNoLines
	}
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("accounting: line %d missing account", idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("accounting: line %d negative amount: %w", idx, ErrInvalidAmount)
		}
	}
	return nil
}

// Validate checks a receipt request.
func (in ReceiptInput) Validate() error {
	if in.Date.IsZero() {
		return fmt.Errorf("%w: receipt date required", ErrInvalidInput)
	}
	if !in.Amount.IsPositive() {
		return fmt.Errorf("accounting: receipt amount must be positive: %w", ErrInvalidAmount)
	}
	if !validPaymentMode(in.Mode) {
		return ErrInvalidPaymentMode
	}
	if strings.TrimSpace(in.Purpose) == "" {
		return fmt.Errorf("%w: receipt purpose required", ErrInvalidInput)
	}
	return nil
}

// Validate checks an invoice request.
func (in InvoiceInput) Validate() error {
	if in.IssueDate.IsZero() {
		return fmt.Errorf("%w: invoice issue date required", ErrInvalidInput)
	}
	if in.Pretax.IsNegative() || in.Tax.IsNegative() {
		return fmt.Errorf("accounting: invoice amounts cannot be negative: %w", ErrInvalidAmount)
	}
	if !in.Pretax.Add(in.Tax).IsPositive() {
		return fmt.Errorf("accounting: invoice total must be positive: %w", ErrInvalidAmount)
	}
	if in.DueDate != nil && in.DueDate.Before(in.IssueDate) {
		return fmt.Errorf("%w: due date before issue date", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Description) == "" {
		return fmt.Errorf("%w: invoice description required", ErrInvalidInput)
	}
	return nil
}
