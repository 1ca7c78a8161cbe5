package accounting

import "github.com/shopspring/decimal"

// Office tags handles on office accounts.
type Office struct{}

// ClientTrust tags handles on client-trust accounts.
type ClientTrust struct{}

func (Office) category() Category      { return CategoryOffice }
func (ClientTrust) category() Category { return CategoryClientTrust }

// CategoryTag is the closed set of account categories usable in postings.
type CategoryTag interface {
	Office | ClientTrust
	category() Category
}

// AccountRef is an account handle whose category is fixed at compile time.
// Postings built from refs of different tags do not type-check.
type AccountRef[C CategoryTag] struct {
	id     int64
	number string
}

// ID returns the underlying account id.
func (r AccountRef[C]) ID() int64 { return r.id }

// Number returns the account number.
func (r AccountRef[C]) Number() string { return r.number }

// NewAccountRef checks the account against tag C and returns a typed handle.
func NewAccountRef[C CategoryTag](acc Account) (AccountRef[C], error) {
	var tag C
	if acc.Category != tag.category() {
		return AccountRef[C]{}, &CategoryMismatchError{Number: acc.Number, Expected: tag.category(), Actual: acc.Category}
	}
	if !acc.Active {
		return AccountRef[C]{}, ErrAccountInactive
	}
	return AccountRef[C]{id: acc.ID, number: acc.Number}, nil
}

// posting accumulates lines that all belong to category C.
type posting[C CategoryTag] struct {
	lines []LineInput
}

func newPosting[C CategoryTag]() *posting[C] {
	return &posting[C]{}
}

func (p *posting[C]) debit(ref AccountRef[C], amount decimal.Decimal) *posting[C] {
	if amount.IsZero() {
		return p
	}
	p.lines = append(p.lines, LineInput{AccountID: ref.id, Debit: amount, Credit: decimal.Zero})
	return p
}

func (p *posting[C]) credit(ref AccountRef[C], amount decimal.Decimal) *posting[C] {
	if amount.IsZero() {
		return p
	}
	p.lines = append(p.lines, LineInput{AccountID: ref.id, Debit: decimal.Zero, Credit: amount})
	return p
}

func (p *posting[C]) build() []LineInput {
	return p.lines
}
