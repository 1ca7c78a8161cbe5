package accounting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/notarium/notarium/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReportCache stores built reports and is invalidated on every posting.
type ReportCache interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Bump(ctx context.Context) error
}

// MetricsPort counts ledger activity.
type MetricsPort interface {
	RecordPosting(journal, kind string)
	RecordDocument(doc string)
}

// PaymentRoute selects the treasury side used for mobile-money receipts.
type PaymentRoute string

const (
	RouteBank PaymentRoute = "bank"
	RouteCash PaymentRoute = "cash"
)

// InvoicePosting controls whether invoices write journal entries.
type InvoicePosting string

const (
	InvoicePostingNone    InvoicePosting = "none"
	InvoicePostingOnIssue InvoicePosting = "on_issue"
)

// ServiceConfig tunes posting behaviour.
type ServiceConfig struct {
	MobileMoneyRoute PaymentRoute
	InvoicePosting   InvoicePosting
}

// Service coordinates the chart of accounts, postings, receipts and invoices.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	cache   ReportCache
	metrics MetricsPort
	cfg     ServiceConfig
	now     func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort, cfg ServiceConfig) *Service {
	if cfg.MobileMoneyRoute == "" {
		cfg.MobileMoneyRoute = RouteBank
	}
	if cfg.InvoicePosting == "" {
		cfg.InvoicePosting = InvoicePostingNone
	}
	return &Service{repo: repo, audit: audit, cfg: cfg, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithReportCache enables report caching.
func (s *Service) WithReportCache(cache ReportCache) {
	s.cache = cache
}

// WithMetrics enables ledger counters.
func (s *Service) WithMetrics(metrics MetricsPort) {
	s.metrics = metrics
}

// Config returns the active posting configuration.
func (s *Service) Config() ServiceConfig {
	return s.cfg
}

// CreateAccount adds an account, failing with *DuplicateAccountError when the number exists.
func (s *Service) CreateAccount(ctx context.Context, in CreateAccountInput, actorID int64) (Account, error) {
	in.Number = strings.TrimSpace(in.Number)
	in.Label = strings.TrimSpace(in.Label)
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.InsertAccount(ctx, in)
		if err != nil {
			return err
		}
		account = created
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, actorID, "account.create", "account", account.ID, map[string]any{
		"number":   account.Number,
		"category": string(account.Category),
	})
	return account, nil
}

// InitializeDefaultChart seeds the standard accounts that do not exist yet.
func (s *Service) InitializeDefaultChart(ctx context.Context, actorID int64) (int, error) {
	created := 0
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created = 0
		for _, seed := range DefaultChart {
			acc, err := tx.InsertAccountIfMissing(ctx, seed)
			if err != nil {
				return err
			}
			if acc != nil {
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if created > 0 {
		s.record(ctx, actorID, "chart.initialize", "chart", 0, map[string]any{"created": created})
	}
	return created, nil
}

// GetAccount fetches an account by id.
func (s *Service) GetAccount(ctx context.Context, id int64) (Account, error) {
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		account, err = tx.GetAccount(ctx, id)
		return err
	})
	return account, err
}

// ListAccounts retrieves accounts matching the filter ordered by number.
func (s *Service) ListAccounts(ctx context.Context, filter AccountFilter) ([]Account, error) {
	var accounts []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		accounts, err = tx.ListAccounts(ctx, filter)
		return err
	})
	return accounts, err
}

// ListActiveAccounts returns every active account.
func (s *Service) ListActiveAccounts(ctx context.Context) ([]Account, error) {
	return s.ListAccounts(ctx, AccountFilter{ActiveOnly: true})
}

// ListAccountsByCategory returns active accounts of one category.
func (s *Service) ListAccountsByCategory(ctx context.Context, category Category) ([]Account, error) {
	return s.ListAccounts(ctx, AccountFilter{ActiveOnly: true, Category: &category})
}

// DeactivateAccount hides a zero-balance account from new postings while keeping its history.
func (s *Service) DeactivateAccount(ctx context.Context, id, actorID int64) (Account, error) {
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		acc, err := tx.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		if !acc.Active {
			account = acc
			return nil
		}
		balance, err := tx.AccountBalance(ctx, id, DateRange{})
		if err != nil {
			return err
		}
		if !balance.IsZero() {
			return &AccountHasBalanceError{Number: acc.Number, Balance: balance}
		}
		if err := tx.SetAccountActive(ctx, id, false); err != nil {
			return err
		}
		acc.Active = false
		account = acc
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
	s.record(ctx, actorID, "account.deactivate", "account", id, nil)
	return account, nil
}

// CreateEntry stores a draft entry with its lines. When the lines do not
// balance the draft is still kept and returned together with an
// *UnbalancedEntryError; PostEntry will refuse it.
func (s *Service) CreateEntry(ctx context.Context, in EntryInput) (Entry, error) {
	if err := in.Validate(); err != nil {
		return Entry{}, err
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := insertDraft(ctx, tx, in, EntryKindNormal, nil)
		if err != nil {
			return err
		}
		entry = created
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, in.AuthorID, "entry.create", "entry", entry.ID, map[string]any{"journal": string(entry.Journal)})
	debit, credit := entry.Totals()
	if !balanced(debit, credit) {
		return entry, &UnbalancedEntryError{Debit: debit, Credit: credit}
	}
	return entry, nil
}

// PostEntry re-checks balance under a row lock and flips the entry to posted.
func (s *Service) PostEntry(ctx context.Context, entryID, actorID int64) (Entry, error) {
	if entryID == 0 {
		return Entry{}, fmt.Errorf("%w: entry id required", ErrInvalidInput)
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if current.Posted {
			return ErrAlreadyPosted
		}
		if err := s.post(ctx, tx, &current); err != nil {
			return err
		}
		entry = current
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.afterPosting(ctx, entry)
	s.record(ctx, actorID, "entry.post", "entry", entry.ID, map[string]any{"journal": string(entry.Journal)})
	return entry, nil
}

// ReverseEntry posts a new entry with swapped columns that cancels a posted one.
func (s *Service) ReverseEntry(ctx context.Context, in ReverseInput) (Entry, error) {
	if in.EntryID == 0 {
		return Entry{}, fmt.Errorf("%w: entry id required", ErrInvalidInput)
	}
	var reversal Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntryForUpdate(ctx, in.EntryID)
		if err != nil {
			return err
		}
		reversal, err = s.reverse(ctx, tx, original, in)
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	s.afterPosting(ctx, reversal)
	s.record(ctx, in.ActorID, "entry.reverse", "entry", in.EntryID, map[string]any{"reversal_id": reversal.ID})
	return reversal, nil
}

// GetEntry loads an entry with its lines.
func (s *Service) GetEntry(ctx context.Context, id int64) (Entry, error) {
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.GetEntry(ctx, id)
		return err
	})
	return entry, err
}

// GetAccountBalance sums debit minus credit over posted entries in the range.
func (s *Service) GetAccountBalance(ctx context.Context, accountID int64, rng DateRange) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetAccount(ctx, accountID); err != nil {
			return err
		}
		var err error
		balance, err = tx.AccountBalance(ctx, accountID, rng)
		return err
	})
	return balance, err
}

// requireActive fails unless every referenced account exists and is active.
func requireActive(ctx context.Context, tx TxRepository, ids []int64) error {
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		acc, err := tx.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		if !acc.Active {
			return fmt.Errorf("%w: %s", ErrAccountInactive, acc.Number)
		}
	}
	return nil
}

func insertDraft(ctx context.Context, tx TxRepository, in EntryInput, kind EntryKind, reversalOf *int64) (Entry, error) {
	ids := make([]int64, 0, len(in.Lines))
	for _, line := range in.Lines {
		ids = append(ids, line.AccountID)
	}
	if err := requireActive(ctx, tx, ids); err != nil {
		return Entry{}, err
	}
	entry, err := tx.InsertEntry(ctx, in, kind, reversalOf)
	if err != nil {
		return Entry{}, err
	}
	lines, err := tx.InsertMovements(ctx, entry.ID, in.Lines)
	if err != nil {
		return Entry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

func (s *Service) post(ctx context.Context, tx TxRepository, entry *Entry) error {
	debit, credit := entry.Totals()
	if !balanced(debit, credit) {
		return &UnbalancedEntryError{Debit: debit, Credit: credit}
	}
	ids := make([]int64, 0, len(entry.Lines))
	for _, line := range entry.Lines {
		ids = append(ids, line.AccountID)
	}
	if err := requireActive(ctx, tx, ids); err != nil {
		return err
	}
	at := s.now()
	if err := tx.MarkEntryPosted(ctx, entry.ID, at); err != nil {
		return err
	}
	entry.Posted = true
	entry.PostedAt = &at
	return nil
}

// insertPosted creates and posts an entry inside the caller's transaction.
func (s *Service) insertPosted(ctx context.Context, tx TxRepository, in EntryInput, kind EntryKind, reversalOf *int64) (Entry, error) {
	if err := in.Validate(); err != nil {
		return Entry{}, err
	}
	entry, err := insertDraft(ctx, tx, in, kind, reversalOf)
	if err != nil {
		return Entry{}, err
	}
	if err := s.post(ctx, tx, &entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (s *Service) reverse(ctx context.Context, tx TxRepository, original Entry, in ReverseInput) (Entry, error) {
	if !original.Posted {
		return Entry{}, ErrNotPosted
	}
	if original.Kind == EntryKindReversal {
		return Entry{}, ErrCannotReverse
	}
	exists, err := tx.HasReversal(ctx, original.ID)
	if err != nil {
		return Entry{}, err
	}
	if exists {
		return Entry{}, ErrAlreadyReversed
	}
	date := s.now()
	if in.Date != nil {
		date = *in.Date
	}
	label := in.Label
	if label == "" {
		label = fmt.Sprintf("Extourne écriture %d - %s", original.ID, original.Label)
	}
	return s.insertPosted(ctx, tx, EntryInput{
		Date:           date,
		Label:          label,
		Journal:        original.Journal,
		Lines:          reverseLines(original.Lines),
		CaseID:         original.CaseID,
		DocumentNumber: original.DocumentNumber,
		AuthorID:       in.ActorID,
	}, EntryKindReversal, &original.ID)
}

func reverseLines(lines []Movement) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountID: line.AccountID,
			Debit:     line.Credit,
			Credit:    line.Debit,
		})
	}
	return out
}

func (s *Service) afterPosting(ctx context.Context, entry Entry) {
	if s.metrics != nil {
		s.metrics.RecordPosting(string(entry.Journal), string(entry.Kind))
	}
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	})
}
