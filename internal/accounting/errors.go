package accounting

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrDuplicateAccount indicates the account number is taken.
	ErrDuplicateAccount = errors.New("accounting: account number already exists")
	// ErrUnbalanced indicates debit != credit beyond tolerance.
	ErrUnbalanced = errors.New("accounting: entry lines must balance")
	// ErrEntryNotFound indicates a missing entry.
	ErrEntryNotFound = errors.New("accounting: entry not found")
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = errors.New("accounting: account not found")
	// ErrAlreadyPosted indicates the entry was posted before.
	ErrAlreadyPosted = errors.New("accounting: entry already posted")
	// ErrNotPosted indicates a draft was used where a posted entry is required.
	ErrNotPosted = errors.New("accounting: entry is not posted")
	// ErrAlreadyReversed indicates a reversal already exists for the entry.
	ErrAlreadyReversed = errors.New("accounting: entry already reversed")
	// ErrCannotReverse indicates an attempt to reverse a reversal.
	ErrCannotReverse = errors.New("accounting: reversal entries cannot be reversed")
	// ErrNoLines indicates an entry without movements.
	ErrNoLines = errors.New("accounting: entry requires at least one line")
	// ErrCategoryMismatch indicates an account from the wrong category was selected.
	ErrCategoryMismatch = errors.New("accounting: account category mismatch")
	// ErrAccountInactive indicates the account was deactivated.
	ErrAccountInactive = errors.New("accounting: account inactive")
	// ErrAccountHasBalance indicates an account cannot be deactivated while it carries a balance.
	ErrAccountHasBalance = errors.New("accounting: account balance is not zero")
	// ErrReceiptNotFound indicates a missing receipt.
	ErrReceiptNotFound = errors.New("accounting: receipt not found")
	// ErrInvoiceNotFound indicates a missing invoice.
	ErrInvoiceNotFound = errors.New("accounting: invoice not found")
	// ErrInvalidInvoiceStatus indicates the invoice cannot move to the requested status.
	ErrInvalidInvoiceStatus = errors.New("accounting: invalid invoice status transition")
	// ErrInvalidInput indicates a malformed request.
	ErrInvalidInput = errors.New("accounting: invalid input")
	// ErrInvalidAmount indicates a non-positive or negative amount.
	ErrInvalidAmount = errors.New("accounting: invalid amount")
	// ErrInvalidAccount indicates missing number or label, or an unknown type or category.
	ErrInvalidAccount = errors.New("accounting: invalid account definition")
	// ErrInvalidPaymentMode indicates an unknown payment mode.
	ErrInvalidPaymentMode = errors.New("accounting: invalid payment mode")
)

// AccountHasBalanceError carries the outstanding balance that blocks deactivation.
type AccountHasBalanceError struct {
	Number  string
	Balance decimal.Decimal
}

func (e *AccountHasBalanceError) Error() string {
	return fmt.Sprintf("accounting: account %s still carries %s", e.Number, e.Balance.StringFixed(2))
}

// Is matches ErrAccountHasBalance.
func (e *AccountHasBalanceError) Is(target error) bool { return target == ErrAccountHasBalance }

// DuplicateAccountError carries the colliding number.
type DuplicateAccountError struct {
	Number string
}

func (e *DuplicateAccountError) Error() string {
	return fmt.Sprintf("accounting: account %s already exists", e.Number)
}

// Is matches ErrDuplicateAccount.
func (e *DuplicateAccountError) Is(target error) bool { return target == ErrDuplicateAccount }

// UnbalancedEntryError carries both column sums.
type UnbalancedEntryError struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

func (e *UnbalancedEntryError) Error() string {
	return fmt.Sprintf("accounting: entry unbalanced (debit %s, credit %s)", e.Debit.StringFixed(2), e.Credit.StringFixed(2))
}

// Is matches ErrUnbalanced.
func (e *UnbalancedEntryError) Is(target error) bool { return target == ErrUnbalanced }

// EntryNotFoundError carries the missing entry id.
type EntryNotFoundError struct {
	ID int64
}

func (e *EntryNotFoundError) Error() string {
	return fmt.Sprintf("accounting: entry %d not found", e.ID)
}

// Is matches ErrEntryNotFound.
func (e *EntryNotFoundError) Is(target error) bool { return target == ErrEntryNotFound }

// AccountNotFoundError identifies the missing account by id or number.
type AccountNotFoundError struct {
	ID     int64
	Number string
}

func (e *AccountNotFoundError) Error() string {
	if e.Number != "" {
		return fmt.Sprintf("accounting: account %s not found", e.Number)
	}
	return fmt.Sprintf("accounting: account %d not found", e.ID)
}

// Is matches ErrAccountNotFound.
func (e *AccountNotFoundError) Is(target error) bool { return target == ErrAccountNotFound }

// CategoryMismatchError reports the category an operation expected.
type CategoryMismatchError struct {
	Number   string
	Expected Category
	Actual   Category
}

func (e *CategoryMismatchError) Error() string {
	return fmt.Sprintf("accounting: account %s is %q, expected %q", e.Number, e.Actual, e.Expected)
}

// Is matches ErrCategoryMismatch.
func (e *CategoryMismatchError) Is(target error) bool { return target == ErrCategoryMismatch }
