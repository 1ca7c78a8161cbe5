package accounting

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/notarium/notarium/internal/accounting/reports"
	"github.com/notarium/notarium/internal/numbering"
	"github.com/notarium/notarium/internal/shared"
)

// memoryStore mimics the Postgres schema. WithTx holds the lock for the whole
// transaction and restores a snapshot when fn fails.
type memoryStore struct {
	mu        sync.Mutex
	nextID    int64
	accounts  map[int64]Account
	entries   map[int64]Entry
	receipts  map[int64]Receipt
	invoices  map[int64]Invoice
	sequences map[numbering.Key]int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		accounts:  map[int64]Account{},
		entries:   map[int64]Entry{},
		receipts:  map[int64]Receipt{},
		invoices:  map[int64]Invoice{},
		sequences: map[numbering.Key]int64{},
	}
}

type memorySnapshot struct {
	nextID    int64
	accounts  map[int64]Account
	entries   map[int64]Entry
	receipts  map[int64]Receipt
	invoices  map[int64]Invoice
	sequences map[numbering.Key]int64
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *memoryStore) snapshot() memorySnapshot {
	return memorySnapshot{
		nextID:    s.nextID,
		accounts:  copyMap(s.accounts),
		entries:   copyMap(s.entries),
		receipts:  copyMap(s.receipts),
		invoices:  copyMap(s.invoices),
		sequences: copyMap(s.sequences),
	}
}

func (s *memoryStore) restore(snap memorySnapshot) {
	s.nextID = snap.nextID
	s.accounts = snap.accounts
	s.entries = snap.entries
	s.receipts = snap.receipts
	s.invoices = snap.invoices
	s.sequences = snap.sequences
}

func (s *memoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

type memoryRepo struct {
	store *memoryStore
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	snap := r.store.snapshot()
	if err := fn(ctx, &memoryTx{s: r.store}); err != nil {
		r.store.restore(snap)
		return err
	}
	return nil
}

type memoryTx struct {
	s *memoryStore
}

func (tx *memoryTx) InsertAccount(_ context.Context, in CreateAccountInput) (Account, error) {
	for _, acc := range tx.s.accounts {
		if acc.Number == in.Number {
			return Account{}, &DuplicateAccountError{Number: in.Number}
		}
	}
	acc := Account{ID: tx.s.id(), Number: in.Number, Label: in.Label, Type: in.Type, Category: in.Category, Active: true, CreatedAt: time.Now()}
	tx.s.accounts[acc.ID] = acc
	return acc, nil
}

func (tx *memoryTx) InsertAccountIfMissing(ctx context.Context, in CreateAccountInput) (*Account, error) {
	acc, err := tx.InsertAccount(ctx, in)
	if errors.Is(err, ErrDuplicateAccount) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (tx *memoryTx) GetAccount(_ context.Context, id int64) (Account, error) {
	acc, ok := tx.s.accounts[id]
	if !ok {
		return Account{}, &AccountNotFoundError{ID: id}
	}
	return acc, nil
}

func (tx *memoryTx) GetAccountByNumber(_ context.Context, number string) (Account, error) {
	for _, acc := range tx.s.accounts {
		if acc.Number == number {
			return acc, nil
		}
	}
	return Account{}, &AccountNotFoundError{Number: number}
}

func (tx *memoryTx) matchingAccounts(filter AccountFilter) []Account {
	var out []Account
	for _, acc := range tx.s.accounts {
		if filter.ActiveOnly && !acc.Active {
			continue
		}
		if filter.Category != nil && acc.Category != *filter.Category {
			continue
		}
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func (tx *memoryTx) ListAccounts(_ context.Context, filter AccountFilter) ([]Account, error) {
	return tx.matchingAccounts(filter), nil
}

func (tx *memoryTx) SetAccountActive(_ context.Context, id int64, active bool) error {
	acc, ok := tx.s.accounts[id]
	if !ok {
		return &AccountNotFoundError{ID: id}
	}
	acc.Active = active
	tx.s.accounts[id] = acc
	return nil
}

func (tx *memoryTx) InsertEntry(_ context.Context, in EntryInput, kind EntryKind, reversalOf *int64) (Entry, error) {
	if reversalOf != nil {
		for _, e := range tx.s.entries {
			if e.ReversalOf != nil && *e.ReversalOf == *reversalOf {
				return Entry{}, ErrAlreadyReversed
			}
		}
	}
	entry := Entry{
		ID:             tx.s.id(),
		Date:           in.Date,
		Label:          in.Label,
		Journal:        in.Journal,
		CaseID:         in.CaseID,
		DocumentNumber: in.DocumentNumber,
		Kind:           kind,
		ReversalOf:     reversalOf,
		CreatedBy:      in.AuthorID,
		CreatedAt:      time.Now(),
	}
	tx.s.entries[entry.ID] = entry
	return entry, nil
}

func (tx *memoryTx) InsertMovements(_ context.Context, entryID int64, lines []LineInput) ([]Movement, error) {
	entry, ok := tx.s.entries[entryID]
	if !ok {
		return nil, &EntryNotFoundError{ID: entryID}
	}
	out := make([]Movement, 0, len(lines))
	for _, line := range lines {
		out = append(out, Movement{ID: tx.s.id(), EntryID: entryID, AccountID: line.AccountID, Debit: line.Debit, Credit: line.Credit})
	}
	entry.Lines = append(append([]Movement(nil), entry.Lines...), out...)
	tx.s.entries[entryID] = entry
	return out, nil
}

func (tx *memoryTx) GetEntry(_ context.Context, id int64) (Entry, error) {
	entry, ok := tx.s.entries[id]
	if !ok {
		return Entry{}, &EntryNotFoundError{ID: id}
	}
	return entry, nil
}

func (tx *memoryTx) GetEntryForUpdate(ctx context.Context, id int64) (Entry, error) {
	return tx.GetEntry(ctx, id)
}

func (tx *memoryTx) MarkEntryPosted(_ context.Context, id int64, at time.Time) error {
	entry, ok := tx.s.entries[id]
	if !ok {
		return &EntryNotFoundError{ID: id}
	}
	if entry.Posted {
		return ErrAlreadyPosted
	}
	entry.Posted = true
	entry.PostedAt = &at
	tx.s.entries[id] = entry
	return nil
}

func (tx *memoryTx) HasReversal(_ context.Context, entryID int64) (bool, error) {
	for _, e := range tx.s.entries {
		if e.ReversalOf != nil && *e.ReversalOf == entryID {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) AccountBalance(_ context.Context, accountID int64, rng DateRange) (decimal.Decimal, error) {
	balance := decimal.Zero
	for _, e := range tx.s.entries {
		if !e.Posted || !rng.Contains(e.Date) {
			continue
		}
		for _, m := range e.Lines {
			if m.AccountID == accountID {
				balance = balance.Add(m.Debit).Sub(m.Credit)
			}
		}
	}
	return balance, nil
}

func (tx *memoryTx) UnbalancedEntries(_ context.Context, tolerance decimal.Decimal) ([]EntryImbalance, error) {
	var out []EntryImbalance
	for _, e := range tx.s.entries {
		if !e.Posted {
			continue
		}
		debit, credit := e.Totals()
		if debit.Sub(credit).Abs().GreaterThan(tolerance) {
			out = append(out, EntryImbalance{EntryID: e.ID, Debit: debit, Credit: credit})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryID < out[j].EntryID })
	return out, nil
}

func (tx *memoryTx) ReserveNumber(_ context.Context, key numbering.Key, n int64) (int64, error) {
	if n <= 0 {
		return 0, numbering.ErrInvalidCount
	}
	floor := int64(0)
	switch key.Doc {
	case numbering.DocReceipt:
		for _, r := range tx.s.receipts {
			if r.Sequence > floor {
				floor = r.Sequence
			}
		}
	case numbering.DocInvoice:
		for _, inv := range tx.s.invoices {
			if inv.Sequence > floor {
				floor = inv.Sequence
			}
		}
	}
	current := tx.s.sequences[key]
	if floor > current {
		current = floor
	}
	current += n
	tx.s.sequences[key] = current
	return current - n + 1, nil
}

func (tx *memoryTx) InsertReceipt(_ context.Context, r Receipt) (Receipt, error) {
	for _, existing := range tx.s.receipts {
		if existing.Number == r.Number {
			return Receipt{}, &numbering.ConflictError{Key: numbering.ReceiptKey()}
		}
	}
	r.ID = tx.s.id()
	r.CreatedAt = time.Now()
	tx.s.receipts[r.ID] = r
	return r, nil
}

func (tx *memoryTx) GetReceipt(_ context.Context, id int64) (Receipt, error) {
	r, ok := tx.s.receipts[id]
	if !ok {
		return Receipt{}, ErrReceiptNotFound
	}
	return r, nil
}

func (tx *memoryTx) ListReceipts(_ context.Context, filter DocumentFilter) ([]Receipt, error) {
	out := make([]Receipt, 0, len(tx.s.receipts))
	for _, r := range tx.s.receipts {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return window(out, filter), nil
}

func (tx *memoryTx) InsertInvoice(_ context.Context, inv Invoice) (Invoice, error) {
	inv.ID = tx.s.id()
	inv.CreatedAt = time.Now()
	tx.s.invoices[inv.ID] = inv
	return inv, nil
}

func (tx *memoryTx) GetInvoice(_ context.Context, id int64) (Invoice, error) {
	inv, ok := tx.s.invoices[id]
	if !ok {
		return Invoice{}, ErrInvoiceNotFound
	}
	return inv, nil
}

func (tx *memoryTx) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	return tx.GetInvoice(ctx, id)
}

func (tx *memoryTx) UpdateInvoiceStatus(_ context.Context, inv Invoice) error {
	current, ok := tx.s.invoices[inv.ID]
	if !ok {
		return ErrInvoiceNotFound
	}
	current.Status = inv.Status
	current.PaidAt = inv.PaidAt
	current.PaymentEntryID = inv.PaymentEntryID
	tx.s.invoices[inv.ID] = current
	return nil
}

func (tx *memoryTx) ListInvoices(_ context.Context, filter DocumentFilter) ([]Invoice, error) {
	out := make([]Invoice, 0, len(tx.s.invoices))
	for _, inv := range tx.s.invoices {
		if filter.Status != nil && inv.Status != *filter.Status {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IssueDate.Equal(out[j].IssueDate) {
			return out[i].IssueDate.After(out[j].IssueDate)
		}
		return out[i].ID > out[j].ID
	})
	return window(out, filter), nil
}

func (tx *memoryTx) CountDocuments(context.Context) (DocumentCounts, error) {
	return DocumentCounts{
		Accounts: len(tx.matchingAccounts(AccountFilter{ActiveOnly: true})),
		Receipts: len(tx.s.receipts),
		Invoices: len(tx.s.invoices),
	}, nil
}

func (tx *memoryTx) LedgerMovements(_ context.Context, filter LedgerFilter) ([]reports.LedgerMovement, error) {
	var out []reports.LedgerMovement
	for _, e := range tx.s.entries {
		if !e.Posted || !filter.Range.Contains(e.Date) {
			continue
		}
		for _, m := range e.Lines {
			if filter.AccountID != nil && m.AccountID != *filter.AccountID {
				continue
			}
			out = append(out, reports.LedgerMovement{
				EntryID:        e.ID,
				MovementID:     m.ID,
				Date:           e.Date,
				DocumentNumber: e.DocumentNumber,
				Label:          e.Label,
				Journal:        string(e.Journal),
				AccountID:      m.AccountID,
				AccountNumber:  tx.s.accounts[m.AccountID].Number,
				Debit:          m.Debit,
				Credit:         m.Credit,
			})
		}
	}
	return out, nil
}

func (tx *memoryTx) AccountBalances(_ context.Context, asOf time.Time, filter AccountFilter) ([]reports.AccountBalance, error) {
	accounts := tx.matchingAccounts(filter)
	out := make([]reports.AccountBalance, 0, len(accounts))
	for _, acc := range accounts {
		row := reports.AccountBalance{AccountID: acc.ID, Number: acc.Number, Label: acc.Label, Category: string(acc.Category)}
		for _, e := range tx.s.entries {
			if !e.Posted || e.Date.After(asOf) {
				continue
			}
			for _, m := range e.Lines {
				if m.AccountID == acc.ID {
					row.Debit = row.Debit.Add(m.Debit)
					row.Credit = row.Credit.Add(m.Credit)
				}
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func window[T any](items []T, filter DocumentFilter) []T {
	if filter.Offset >= len(items) {
		return nil
	}
	items = items[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(items) {
		items = items[:filter.Limit]
	}
	return items
}

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if log.Action == "" {
		return errors.New("action required")
	}
	a.actions = append(a.actions, log.Action)
	return nil
}

func (a *recordingAudit) has(action string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, got := range a.actions {
		if got == action {
			return true
		}
	}
	return false
}
