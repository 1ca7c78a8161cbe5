package accounting

import (
	"context"
	"errors"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/notarium/notarium/internal/accounting/reports"
	"github.com/notarium/notarium/internal/numbering"
	"github.com/notarium/notarium/internal/platform/db"
)

// Repository persists accounting entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	InsertAccount(ctx context.Context, in CreateAccountInput) (Account, error)
	// InsertAccountIfMissing returns nil when the number is already taken.
	InsertAccountIfMissing(ctx context.Context, in CreateAccountInput) (*Account, error)
	GetAccount(ctx context.Context, id int64) (Account, error)
	GetAccountByNumber(ctx context.Context, number string) (Account, error)
	ListAccounts(ctx context.Context, filter AccountFilter) ([]Account, error)
	SetAccountActive(ctx context.Context, id int64, active bool) error

	InsertEntry(ctx context.Context, in EntryInput, kind EntryKind, reversalOf *int64) (Entry, error)
	InsertMovements(ctx context.Context, entryID int64, lines []LineInput) ([]Movement, error)
	GetEntry(ctx context.Context, id int64) (Entry, error)
	GetEntryForUpdate(ctx context.Context, id int64) (Entry, error)
	MarkEntryPosted(ctx context.Context, id int64, at time.Time) error
	HasReversal(ctx context.Context, entryID int64) (bool, error)
	AccountBalance(ctx context.Context, accountID int64, rng DateRange) (decimal.Decimal, error)
	UnbalancedEntries(ctx context.Context, tolerance decimal.Decimal) ([]EntryImbalance, error)

	ReserveNumber(ctx context.Context, key numbering.Key, n int64) (int64, error)
	InsertReceipt(ctx context.Context, r Receipt) (Receipt, error)
	GetReceipt(ctx context.Context, id int64) (Receipt, error)
	ListReceipts(ctx context.Context, filter DocumentFilter) ([]Receipt, error)
	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, inv Invoice) error
	ListInvoices(ctx context.Context, filter DocumentFilter) ([]Invoice, error)
	CountDocuments(ctx context.Context) (DocumentCounts, error)

	LedgerMovements(ctx context.Context, filter LedgerFilter) ([]reports.LedgerMovement, error)
	AccountBalances(ctx context.Context, asOf time.Time, filter AccountFilter) ([]reports.AccountBalance, error)
}

type txRepository struct {
	tx      pgx.Tx
	builder squirrel.StatementBuilderType
}

// WithTx executes fn within a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("accounting repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{
			tx:      tx,
			builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		})
	})
}

const accountColumns = `id, number, label, type, category, active, created_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Number, &a.Label, &a.Type, &a.Category, &a.Active, &a.CreatedAt)
	return a, err
}

func (r *txRepository) InsertAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	acc, err := scanAccount(r.tx.QueryRow(ctx, `INSERT INTO accounts (number, label, type, category)
VALUES ($1,$2,$3,$4) RETURNING `+accountColumns, in.Number, in.Label, in.Type, in.Category))
	if err != nil {
		if isUniqueViolation(err) {
			return Account{}, &DuplicateAccountError{Number: in.Number}
		}
		return Account{}, err
	}
	return acc, nil
}

func (r *txRepository) InsertAccountIfMissing(ctx context.Context, in CreateAccountInput) (*Account, error) {
	acc, err := scanAccount(r.tx.QueryRow(ctx, `INSERT INTO accounts (number, label, type, category)
VALUES ($1,$2,$3,$4) ON CONFLICT (number) DO NOTHING RETURNING `+accountColumns, in.Number, in.Label, in.Type, in.Category))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &acc, nil
}

func (r *txRepository) GetAccount(ctx context.Context, id int64) (Account, error) {
	acc, err := scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, &AccountNotFoundError{ID: id}
		}
		return Account{}, err
	}
	return acc, nil
}

func (r *txRepository) GetAccountByNumber(ctx context.Context, number string) (Account, error) {
	acc, err := scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE number=$1`, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, &AccountNotFoundError{Number: number}
		}
		return Account{}, err
	}
	return acc, nil
}

func (r *txRepository) ListAccounts(ctx context.Context, filter AccountFilter) ([]Account, error) {
	q := r.builder.Select(accountColumns).From("accounts").OrderBy("number")
	if filter.ActiveOnly {
		q = q.Where(squirrel.Eq{"active": true})
	}
	if filter.Category != nil {
		q = q.Where(squirrel.Eq{"category": string(*filter.Category)})
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	var accounts []Account
	if err := pgxscan.Select(ctx, r.tx, &accounts, sql, args...); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *txRepository) SetAccountActive(ctx context.Context, id int64, active bool) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET active=$2 WHERE id=$1`, id, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return &AccountNotFoundError{ID: id}
	}
	return nil
}

func (r *txRepository) InsertEntry(ctx context.Context, in EntryInput, kind EntryKind, reversalOf *int64) (Entry, error) {
	entry := Entry{
		Date:           in.Date,
		Label:          in.Label,
		Journal:        in.Journal,
		CaseID:         in.CaseID,
		DocumentNumber: in.DocumentNumber,
		Kind:           kind,
		ReversalOf:     reversalOf,
		CreatedBy:      in.AuthorID,
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO entries (date, label, journal, case_id, document_number, kind, reversal_of, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, created_at`,
		in.Date, in.Label, in.Journal, in.CaseID, in.DocumentNumber, kind, reversalOf, in.AuthorID).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		if reversalOf != nil && isUniqueViolation(err) {
			return Entry{}, ErrAlreadyReversed
		}
		return Entry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertMovements(ctx context.Context, entryID int64, lines []LineInput) ([]Movement, error) {
	batch := &pgx.Batch{}
	for _, line := range lines {
		batch.Queue(`INSERT INTO movements (entry_id, account_id, debit, credit) VALUES ($1,$2,$3,$4) RETURNING id`,
			entryID, line.AccountID, line.Debit, line.Credit)
	}
	results := r.tx.SendBatch(ctx, batch)
	out := make([]Movement, 0, len(lines))
	for _, line := range lines {
		m := Movement{EntryID: entryID, AccountID: line.AccountID, Debit: line.Debit, Credit: line.Credit}
		if err := results.QueryRow().Scan(&m.ID); err != nil {
			_ = results.Close()
			return nil, err
		}
		out = append(out, m)
	}
	if err := results.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *txRepository) GetEntry(ctx context.Context, id int64) (Entry, error) {
	return r.loadEntry(ctx, id, false)
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, id int64) (Entry, error) {
	return r.loadEntry(ctx, id, true)
}

func (r *txRepository) loadEntry(ctx context.Context, id int64, lock bool) (Entry, error) {
	query := `SELECT id, date, label, journal, case_id, document_number, posted, posted_at, kind, reversal_of, created_by, created_at
FROM entries WHERE id=$1`
	if lock {
		query += ` FOR UPDATE`
	}
	var e Entry
	err := r.tx.QueryRow(ctx, query, id).Scan(&e.ID, &e.Date, &e.Label, &e.Journal, &e.CaseID, &e.DocumentNumber,
		&e.Posted, &e.PostedAt, &e.Kind, &e.ReversalOf, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, &EntryNotFoundError{ID: id}
		}
		return Entry{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, entry_id, account_id, debit, credit FROM movements WHERE entry_id=$1 ORDER BY id`, id)
	if err != nil {
		return Entry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.EntryID, &m.AccountID, &m.Debit, &m.Credit); err != nil {
			return Entry{}, err
		}
		e.Lines = append(e.Lines, m)
	}
	return e, rows.Err()
}

func (r *txRepository) MarkEntryPosted(ctx context.Context, id int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE entries SET posted=TRUE, posted_at=$2 WHERE id=$1 AND NOT posted`, id, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAlreadyPosted
	}
	return nil
}

func (r *txRepository) HasReversal(ctx context.Context, entryID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM entries WHERE reversal_of=$1)`, entryID).Scan(&exists)
	return exists, err
}

func (r *txRepository) AccountBalance(ctx context.Context, accountID int64, rng DateRange) (decimal.Decimal, error) {
	q := r.builder.
		Select("COALESCE(SUM(m.debit - m.credit), 0)").
		From("movements m").
		Join("entries e ON e.id = m.entry_id").
		Where(squirrel.Eq{"m.account_id": accountID, "e.posted": true})
	q = applyRange(q, "e.date", rng)
	sql, args, err := q.ToSql()
	if err != nil {
		return decimal.Zero, err
	}
	var balance decimal.Decimal
	if err := r.tx.QueryRow(ctx, sql, args...).Scan(&balance); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

func (r *txRepository) UnbalancedEntries(ctx context.Context, tolerance decimal.Decimal) ([]EntryImbalance, error) {
	var rows []EntryImbalance
	err := pgxscan.Select(ctx, r.tx, &rows, `SELECT e.id AS entry_id, COALESCE(SUM(m.debit),0) AS debit, COALESCE(SUM(m.credit),0) AS credit
FROM entries e LEFT JOIN movements m ON m.entry_id = e.id
WHERE e.posted
GROUP BY e.id
HAVING ABS(COALESCE(SUM(m.debit),0) - COALESCE(SUM(m.credit),0)) > $1
ORDER BY e.id`, tolerance)
	return rows, err
}

// ReserveNumber seeds the counter from the highest number already issued, so
// a fresh counter row never reissues an existing document number.
func (r *txRepository) ReserveNumber(ctx context.Context, key numbering.Key, n int64) (int64, error) {
	var floorQuery string
	switch key.Doc {
	case numbering.DocReceipt:
		floorQuery = `SELECT COALESCE(MAX(sequence), 0) FROM receipts`
	case numbering.DocInvoice:
		floorQuery = `SELECT COALESCE(MAX(sequence), 0) FROM invoices`
	default:
		return numbering.Reserve(ctx, r.tx, key, n, 0)
	}
	var floor int64
	if err := r.tx.QueryRow(ctx, floorQuery).Scan(&floor); err != nil {
		return 0, err
	}
	return numbering.Reserve(ctx, r.tx, key, n, floor)
}

const receiptColumns = `id, number, sequence, date, case_id, client_id, amount, mode, payment_ref, purpose, entry_id, created_by, created_at`

func (r *txRepository) InsertReceipt(ctx context.Context, rec Receipt) (Receipt, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO receipts (number, sequence, date, case_id, client_id, amount, mode, payment_ref, purpose, entry_id, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id, created_at`,
		rec.Number, rec.Sequence, rec.Date, rec.CaseID, rec.ClientID, rec.Amount, rec.Mode, rec.PaymentRef, rec.Purpose, rec.EntryID, rec.CreatedBy).
		Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Receipt{}, &numbering.ConflictError{Key: numbering.ReceiptKey(), Cause: err}
		}
		return Receipt{}, err
	}
	return rec, nil
}

func (r *txRepository) GetReceipt(ctx context.Context, id int64) (Receipt, error) {
	var rec Receipt
	err := pgxscan.Get(ctx, r.tx, &rec, `SELECT `+receiptColumns+` FROM receipts WHERE id=$1`, id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return Receipt{}, ErrReceiptNotFound
		}
		return Receipt{}, err
	}
	return rec, nil
}

func (r *txRepository) ListReceipts(ctx context.Context, filter DocumentFilter) ([]Receipt, error) {
	q := r.builder.Select(receiptColumns).From("receipts").OrderBy("date DESC", "id DESC")
	q = paginate(q, filter)
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	var receipts []Receipt
	if err := pgxscan.Select(ctx, r.tx, &receipts, sql, args...); err != nil {
		return nil, err
	}
	return receipts, nil
}

const invoiceColumns = `id, number, sequence, issue_date, due_date, case_id, client_id, pretax, tax, total, status, description, entry_id, payment_entry_id, paid_at, created_by, created_at`

func (r *txRepository) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO invoices (number, sequence, issue_date, due_date, case_id, client_id, pretax, tax, total, status, description, entry_id, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING id, created_at`,
		inv.Number, inv.Sequence, inv.IssueDate, inv.DueDate, inv.CaseID, inv.ClientID, inv.Pretax, inv.Tax, inv.Total,
		inv.Status, inv.Description, inv.EntryID, inv.CreatedBy).
		Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Invoice{}, &numbering.ConflictError{Key: numbering.InvoiceKey(), Cause: err}
		}
		return Invoice{}, err
	}
	return inv, nil
}

func (r *txRepository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return r.loadInvoice(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1`, id)
}

func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	return r.loadInvoice(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1 FOR UPDATE`, id)
}

func (r *txRepository) loadInvoice(ctx context.Context, query string, id int64) (Invoice, error) {
	var inv Invoice
	if err := pgxscan.Get(ctx, r.tx, &inv, query, id); err != nil {
		if pgxscan.NotFound(err) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	return inv, nil
}

func (r *txRepository) UpdateInvoiceStatus(ctx context.Context, inv Invoice) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE invoices SET status=$2, paid_at=$3, payment_entry_id=$4 WHERE id=$1`,
		inv.ID, inv.Status, inv.PaidAt, inv.PaymentEntryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *txRepository) ListInvoices(ctx context.Context, filter DocumentFilter) ([]Invoice, error) {
	q := r.builder.Select(invoiceColumns).From("invoices").OrderBy("issue_date DESC", "id DESC")
	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": string(*filter.Status)})
	}
	q = paginate(q, filter)
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	var invoices []Invoice
	if err := pgxscan.Select(ctx, r.tx, &invoices, sql, args...); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *txRepository) CountDocuments(ctx context.Context) (DocumentCounts, error) {
	var counts DocumentCounts
	err := r.tx.QueryRow(ctx, `SELECT
    (SELECT COUNT(*) FROM accounts WHERE active),
    (SELECT COUNT(*) FROM receipts),
    (SELECT COUNT(*) FROM invoices)`).Scan(&counts.Accounts, &counts.Receipts, &counts.Invoices)
	return counts, err
}

func (r *txRepository) LedgerMovements(ctx context.Context, filter LedgerFilter) ([]reports.LedgerMovement, error) {
	q := r.builder.
		Select(
			"e.id AS entry_id",
			"m.id AS movement_id",
			"e.date",
			"e.document_number",
			"e.label",
			"e.journal",
			"a.id AS account_id",
			"a.number AS account_number",
			"m.debit",
			"m.credit",
		).
		From("movements m").
		Join("entries e ON e.id = m.entry_id").
		Join("accounts a ON a.id = m.account_id").
		Where(squirrel.Eq{"e.posted": true}).
		OrderBy("e.date", "e.id", "m.id")
	if filter.AccountID != nil {
		q = q.Where(squirrel.Eq{"m.account_id": *filter.AccountID})
	}
	q = applyRange(q, "e.date", filter.Range)
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	var items []reports.LedgerMovement
	if err := pgxscan.Select(ctx, r.tx, &items, sql, args...); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *txRepository) AccountBalances(ctx context.Context, asOf time.Time, filter AccountFilter) ([]reports.AccountBalance, error) {
	q := r.builder.
		Select(
			"a.id AS account_id",
			"a.number",
			"a.label",
			"a.category",
		).
		Column(squirrel.Expr("COALESCE(SUM(m.debit) FILTER (WHERE e.posted AND e.date <= ?), 0) AS debit", asOf)).
		Column(squirrel.Expr("COALESCE(SUM(m.credit) FILTER (WHERE e.posted AND e.date <= ?), 0) AS credit", asOf)).
		From("accounts a").
		LeftJoin("movements m ON m.account_id = a.id").
		LeftJoin("entries e ON e.id = m.entry_id").
		GroupBy("a.id", "a.number", "a.label", "a.category").
		OrderBy("a.number")
	if filter.ActiveOnly {
		q = q.Where(squirrel.Eq{"a.active": true})
	}
	if filter.Category != nil {
		q = q.Where(squirrel.Eq{"a.category": string(*filter.Category)})
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	var items []reports.AccountBalance
	if err := pgxscan.Select(ctx, r.tx, &items, sql, args...); err != nil {
		return nil, err
	}
	return items, nil
}

func applyRange(q squirrel.SelectBuilder, column string, rng DateRange) squirrel.SelectBuilder {
	if rng.From != nil {
		q = q.Where(squirrel.GtOrEq{column: *rng.From})
	}
	if rng.To != nil {
		q = q.Where(squirrel.LtOrEq{column: *rng.To})
	}
	return q
}

func paginate(q squirrel.SelectBuilder, filter DocumentFilter) squirrel.SelectBuilder {
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	return q
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
