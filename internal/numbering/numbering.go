// Package numbering reserves document numbers from transactional counter rows.
package numbering

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DocType identifies an independent number sequence.
type DocType string

const (
	DocReceipt    DocType = "RECEIPT"
	DocInvoice    DocType = "INVOICE"
	DocRepertoire DocType = "REPERTOIRE"
)

const (
	receiptPrefix = "REC-"
	invoicePrefix = "FACT-"
)

// Key addresses a counter row. Period is zero for sequences that never reset.
type Key struct {
	Doc    DocType
	Period int
}

// ReceiptKey returns the global receipt sequence key.
func ReceiptKey() Key { return Key{Doc: DocReceipt} }

// InvoiceKey returns the global invoice sequence key.
func InvoiceKey() Key { return Key{Doc: DocInvoice} }

// RepertoireKey returns the repertoire sequence for a calendar year.
func RepertoireKey(year int) Key { return Key{Doc: DocRepertoire, Period: year} }

func (k Key) String() string {
	if k.Period == 0 {
		return string(k.Doc)
	}
	return fmt.Sprintf("%s/%d", k.Doc, k.Period)
}

var (
	// ErrInvalidCount indicates a non-positive reservation size.
	ErrInvalidCount = errors.New("numbering: count must be positive")
	// ErrConflict indicates a number collided with a concurrent writer.
	ErrConflict = errors.New("numbering: number conflict")
)

// ConflictError reports the sequence that collided. Callers retry the whole operation.
type ConflictError struct {
	Key   Key
	Cause error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("numbering: conflict on %s sequence, retry the operation", e.Key)
}

// Is matches ErrConflict.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// Unwrap exposes the driver error.
func (e *ConflictError) Unwrap() error { return e.Cause }

// Querier is satisfied by pgx.Tx and pgxpool.Pool.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Reserve atomically reserves n consecutive numbers and returns the first one.
// The counter never drops below floor, which lets existing business rows seed a
// fresh sequence. The upsert keeps the counter row locked until the enclosing
// transaction ends, so a rollback releases the block without leaving a gap.
func Reserve(ctx context.Context, q Querier, key Key, n, floor int64) (int64, error) {
	if n <= 0 {
		return 0, ErrInvalidCount
	}
	if floor < 0 {
		floor = 0
	}
	var last int64
	err := q.QueryRow(ctx, `INSERT INTO document_sequences (doc_type, period, seq)
VALUES ($1, $2, $3::bigint + $4::bigint)
ON CONFLICT (doc_type, period)
DO UPDATE SET seq = GREATEST(document_sequences.seq, $3::bigint) + $4::bigint, updated_at = NOW()
RETURNING seq`, string(key.Doc), key.Period, floor, n).Scan(&last)
	if err != nil {
		return 0, Classify(key, err)
	}
	return last - n + 1, nil
}

// Classify maps unique-violation and serialization failures to *ConflictError.
func Classify(key Key, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "40001":
			return &ConflictError{Key: key, Cause: err}
		}
	}
	return err
}

// FormatReceipt renders REC-NNNNNN.
func FormatReceipt(n int64) string { return fmt.Sprintf("%s%06d", receiptPrefix, n) }

// FormatInvoice renders FACT-NNNNNN.
func FormatInvoice(n int64) string { return fmt.Sprintf("%s%06d", invoicePrefix, n) }

// ParseReceipt extracts the numeric suffix of a receipt number.
func ParseReceipt(number string) (int64, bool) { return parseSuffix(number, receiptPrefix) }

// ParseInvoice extracts the numeric suffix of an invoice number.
func ParseInvoice(number string) (int64, bool) { return parseSuffix(number, invoicePrefix) }

func parseSuffix(number, prefix string) (int64, bool) {
	if !strings.HasPrefix(number, prefix) {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(number, prefix), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
