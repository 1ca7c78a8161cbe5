package acts

import (
	"context"
	"errors"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notarium/notarium/internal/numbering"
	"github.com/notarium/notarium/internal/platform/db"
)

// Repository persists acts and their cases.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	GetCase(ctx context.Context, id int64) (Case, error)
	GetCaseForUpdate(ctx context.Context, id int64) (Case, error)
	UpdateCase(ctx context.Context, c Case) error
	SearchArchivedCases(ctx context.Context, search ArchiveSearch) ([]Case, int, error)

	InsertAct(ctx context.Context, act Act) (Act, error)
	GetAct(ctx context.Context, id int64) (Act, error)
	GetActForUpdate(ctx context.Context, id int64) (Act, error)
	ListCaseActs(ctx context.Context, caseID int64, forUpdate bool) ([]Act, error)
	UpdateAct(ctx context.Context, act Act) error
	InsertSignature(ctx context.Context, actID int64, sig Signature) error

	ReserveRepertoire(ctx context.Context, year int, n int64) (int64, error)
}

type txRepository struct {
	tx      pgx.Tx
	builder squirrel.StatementBuilderType
}

// WithTx executes fn within a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("acts repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{
			tx:      tx,
			builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		})
	})
}

const caseColumns = `c.id, c.reference, c.title, c.case_type, c.status, c.archived_by, c.archived_at, c.created_at`

type caseRow struct {
	ID         int64      `db:"id"`
	Reference  string     `db:"reference"`
	Title      string     `db:"title"`
	CaseType   string     `db:"case_type"`
	Status     string     `db:"status"`
	ArchivedBy *int64     `db:"archived_by"`
	ArchivedAt *time.Time `db:"archived_at"`
	CreatedAt  time.Time  `db:"created_at"`
}

func (row caseRow) toCase() Case {
	return Case{
		ID:         row.ID,
		Reference:  row.Reference,
		Title:      row.Title,
		Type:       row.CaseType,
		Status:     CaseStatus(row.Status),
		ArchivedBy: row.ArchivedBy,
		ArchivedAt: row.ArchivedAt,
		CreatedAt:  row.CreatedAt,
	}
}

func (r *txRepository) getCase(ctx context.Context, id int64, lock bool) (Case, error) {
	sql := `SELECT ` + caseColumns + ` FROM cases c WHERE c.id=$1`
	if lock {
		sql += ` FOR UPDATE`
	}
	var row caseRow
	if err := pgxscan.Get(ctx, r.tx, &row, sql, id); err != nil {
		if pgxscan.NotFound(err) {
			return Case{}, ErrCaseNotFound
		}
		return Case{}, err
	}
	return row.toCase(), nil
}

func (r *txRepository) GetCase(ctx context.Context, id int64) (Case, error) {
	return r.getCase(ctx, id, false)
}

func (r *txRepository) GetCaseForUpdate(ctx context.Context, id int64) (Case, error) {
	return r.getCase(ctx, id, true)
}

func (r *txRepository) UpdateCase(ctx context.Context, c Case) error {
	tag, err := r.tx.Exec(ctx, `UPDATE cases SET status=$2, archived_by=$3, archived_at=$4 WHERE id=$1`,
		c.ID, string(c.Status), c.ArchivedBy, c.ArchivedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCaseNotFound
	}
	return nil
}

func (r *txRepository) SearchArchivedCases(ctx context.Context, search ArchiveSearch) ([]Case, int, error) {
	where := squirrel.And{squirrel.Eq{"c.status": string(CaseArchived)}}
	if search.Number != "" {
		where = append(where, squirrel.ILike{"c.reference": "%" + search.Number + "%"})
	}
	if search.Title != "" {
		where = append(where, squirrel.ILike{"c.title": "%" + search.Title + "%"})
	}
	if search.Type != "" {
		where = append(where, squirrel.Eq{"c.case_type": search.Type})
	}
	if search.Client != "" {
		pattern := "%" + search.Client + "%"
		where = append(where, squirrel.Expr(`EXISTS (SELECT 1 FROM case_parties p JOIN clients cl ON cl.id = p.client_id
WHERE p.case_id = c.id AND (cl.last_name ILIKE ? OR cl.first_name ILIKE ?))`, pattern, pattern))
	}

	countSQL, countArgs, err := r.builder.Select("COUNT(*)").From("cases c").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.tx.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (search.Page - 1) * search.PerPage
	if offset < 0 {
		offset = 0
	}
	sql, args, err := r.builder.Select(caseColumns).From("cases c").Where(where).
		OrderBy("c.created_at DESC", "c.id DESC").
		Limit(uint64(search.PerPage)).Offset(uint64(offset)).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var rows []caseRow
	if err := pgxscan.Select(ctx, r.tx, &rows, sql, args...); err != nil {
		return nil, 0, err
	}
	out := make([]Case, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toCase())
	}
	return out, total, nil
}

const actColumns = `a.id, a.case_id, a.title, a.act_type, a.status, a.content, a.file_name, a.version,
a.finalized_by, a.finalized_at, a.signed_at, a.repertoire_number, a.repertoire_year, a.archived_by, a.archived_at,
a.created_by, a.created_at, s.id AS sig_id, s.method AS sig_method, s.value AS sig_value, s.signer_id AS sig_signer_id`

type actRow struct {
	ID               int64      `db:"id"`
	CaseID           int64      `db:"case_id"`
	Title            string     `db:"title"`
	ActType          string     `db:"act_type"`
	Status           string     `db:"status"`
	Content          string     `db:"content"`
	FileName         string     `db:"file_name"`
	Version          int        `db:"version"`
	FinalizedBy      *int64     `db:"finalized_by"`
	FinalizedAt      *time.Time `db:"finalized_at"`
	SignedAt         *time.Time `db:"signed_at"`
	RepertoireNumber *int64     `db:"repertoire_number"`
	RepertoireYear   *int       `db:"repertoire_year"`
	ArchivedBy       *int64     `db:"archived_by"`
	ArchivedAt       *time.Time `db:"archived_at"`
	CreatedBy        int64      `db:"created_by"`
	CreatedAt        time.Time  `db:"created_at"`
	SigID            *uuid.UUID `db:"sig_id"`
	SigMethod        *string    `db:"sig_method"`
	SigValue         *string    `db:"sig_value"`
	SigSignerID      *int64     `db:"sig_signer_id"`
}

func (row actRow) toAct() Act {
	act := Act{
		ID:               row.ID,
		CaseID:           row.CaseID,
		Title:            row.Title,
		Type:             row.ActType,
		Status:           Status(row.Status),
		Content:          row.Content,
		FileName:         row.FileName,
		Version:          row.Version,
		FinalizedBy:      row.FinalizedBy,
		FinalizedAt:      row.FinalizedAt,
		SignedAt:         row.SignedAt,
		RepertoireNumber: row.RepertoireNumber,
		RepertoireYear:   row.RepertoireYear,
		ArchivedBy:       row.ArchivedBy,
		ArchivedAt:       row.ArchivedAt,
		CreatedBy:        row.CreatedBy,
		CreatedAt:        row.CreatedAt,
	}
	if row.SigID != nil && row.SigMethod != nil && row.SigValue != nil && row.SigSignerID != nil {
		sig := Signature{ID: *row.SigID, Method: *row.SigMethod, Value: *row.SigValue, SignerID: *row.SigSignerID}
		if row.SignedAt != nil {
			sig.SignedAt = *row.SignedAt
		}
		act.Signature = &sig
	}
	return act
}

const actFrom = `acts a LEFT JOIN act_signatures s ON s.act_id = a.id`

func (r *txRepository) InsertAct(ctx context.Context, act Act) (Act, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO acts (case_id, title, act_type, status, content, file_name, version, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, created_at`,
		act.CaseID, act.Title, act.Type, string(act.Status), act.Content, act.FileName, act.Version, act.CreatedBy).
		Scan(&act.ID, &act.CreatedAt)
	if err != nil {
		return Act{}, err
	}
	return act, nil
}

func (r *txRepository) getAct(ctx context.Context, id int64, lock bool) (Act, error) {
	sql := `SELECT ` + actColumns + ` FROM ` + actFrom + ` WHERE a.id=$1`
	if lock {
		sql += ` FOR UPDATE OF a`
	}
	var row actRow
	if err := pgxscan.Get(ctx, r.tx, &row, sql, id); err != nil {
		if pgxscan.NotFound(err) {
			return Act{}, ErrActNotFound
		}
		return Act{}, err
	}
	return row.toAct(), nil
}

func (r *txRepository) GetAct(ctx context.Context, id int64) (Act, error) {
	return r.getAct(ctx, id, false)
}

func (r *txRepository) GetActForUpdate(ctx context.Context, id int64) (Act, error) {
	return r.getAct(ctx, id, true)
}

func (r *txRepository) ListCaseActs(ctx context.Context, caseID int64, forUpdate bool) ([]Act, error) {
	q := r.builder.Select(actColumns).From(actFrom).Where(squirrel.Eq{"a.case_id": caseID}).OrderBy("a.id")
	if forUpdate {
		q = q.Suffix("FOR UPDATE OF a")
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	var rows []actRow
	if err := pgxscan.Select(ctx, r.tx, &rows, sql, args...); err != nil {
		return nil, err
	}
	out := make([]Act, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toAct())
	}
	return out, nil
}

func (r *txRepository) UpdateAct(ctx context.Context, act Act) error {
	key := numbering.Key{}
	if act.RepertoireYear != nil {
		key = numbering.RepertoireKey(*act.RepertoireYear)
	}
	tag, err := r.tx.Exec(ctx, `UPDATE acts SET status=$2, version=$3, finalized_by=$4, finalized_at=$5, signed_at=$6,
repertoire_number=$7, repertoire_year=$8, archived_by=$9, archived_at=$10, updated_at=NOW() WHERE id=$1`,
		act.ID, string(act.Status), act.Version, act.FinalizedBy, act.FinalizedAt, act.SignedAt,
		act.RepertoireNumber, act.RepertoireYear, act.ArchivedBy, act.ArchivedAt)
	if err != nil {
		return numbering.Classify(key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrActNotFound
	}
	return nil
}

func (r *txRepository) InsertSignature(ctx context.Context, actID int64, sig Signature) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO act_signatures (id, act_id, method, value, signer_id, signed_at)
VALUES ($1,$2,$3,$4,$5,$6)`, sig.ID, actID, sig.Method, sig.Value, sig.SignerID, sig.SignedAt)
	return err
}

// ReserveRepertoire seeds the yearly counter from the highest number already
// stored so numbering continues across deployments.
func (r *txRepository) ReserveRepertoire(ctx context.Context, year int, n int64) (int64, error) {
	var floor int64
	if err := r.tx.QueryRow(ctx, `SELECT COALESCE(MAX(repertoire_number), 0) FROM acts WHERE repertoire_year=$1`, year).
		Scan(&floor); err != nil {
		return 0, err
	}
	return numbering.Reserve(ctx, r.tx, numbering.RepertoireKey(year), n, floor)
}
