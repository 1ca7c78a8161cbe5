package numbering

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type counterRow struct {
	value int64
	err   error
}

func (r counterRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int64)) = r.value
	return nil
}

// memoryCounter mimics the document_sequences upsert.
type memoryCounter struct {
	mu   sync.Mutex
	seqs map[string]int64
	err  error
	args []any
}

func (m *memoryCounter) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.args = args
	if m.err != nil {
		return counterRow{err: m.err}
	}
	if m.seqs == nil {
		m.seqs = make(map[string]int64)
	}
	key := fmt.Sprintf("%v/%v", args[0], args[1])
	floor := args[2].(int64)
	n := args[3].(int64)
	current := m.seqs[key]
	if current < floor {
		current = floor
	}
	current += n
	m.seqs[key] = current
	return counterRow{value: current}
}

func TestReserveReturnsFirstOfBlock(t *testing.T) {
	q := &memoryCounter{}
	first, err := Reserve(context.Background(), q, RepertoireKey(2024), 3, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, first)

	next, err := Reserve(context.Background(), q, RepertoireKey(2024), 2, 0)
	require.NoError(t, err)
	require.EqualValues(t, 4, next)
}

func TestReserveHonoursFloor(t *testing.T) {
	q := &memoryCounter{}
	first, err := Reserve(context.Background(), q, ReceiptKey(), 1, 41)
	require.NoError(t, err)
	require.EqualValues(t, 42, first)
	require.Equal(t, "RECEIPT", q.args[0])
	require.Equal(t, 0, q.args[1])
}

func TestReserveRejectsEmptyBlock(t *testing.T) {
	_, err := Reserve(context.Background(), &memoryCounter{}, InvoiceKey(), 0, 0)
	require.ErrorIs(t, err, ErrInvalidCount)
}

func TestReserveConcurrentCallersGetDistinctNumbers(t *testing.T) {
	q := &memoryCounter{}
	const workers = 50
	results := make(chan int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := Reserve(context.Background(), q, ReceiptKey(), 1, 0)
			if err == nil {
				results <- n
			}
		}()
	}
	wg.Wait()
	close(results)
	seen := make(map[int64]struct{})
	for n := range results {
		_, dup := seen[n]
		require.False(t, dup, "duplicate number %d", n)
		seen[n] = struct{}{}
	}
	require.Len(t, seen, workers)
}

func TestClassifyMapsConflicts(t *testing.T) {
	for _, code := range []string{"23505", "40001"} {
		err := Classify(ReceiptKey(), &pgconn.PgError{Code: code})
		require.ErrorIs(t, err, ErrConflict)
		var conflict *ConflictError
		require.True(t, errors.As(err, &conflict))
		require.Equal(t, DocReceipt, conflict.Key.Doc)
	}
	other := errors.New("boom")
	require.Equal(t, other, Classify(ReceiptKey(), other))
	require.NoError(t, Classify(ReceiptKey(), nil))
}

func TestReserveWrapsDriverConflict(t *testing.T) {
	q := &memoryCounter{err: &pgconn.PgError{Code: "40001"}}
	_, err := Reserve(context.Background(), q, RepertoireKey(2025), 1, 0)
	require.ErrorIs(t, err, ErrConflict)
}

func TestFormatAndParse(t *testing.T) {
	require.Equal(t, "REC-000001", FormatReceipt(1))
	require.Equal(t, "FACT-001234", FormatInvoice(1234))

	n, ok := ParseReceipt("REC-000042")
	require.True(t, ok)
	require.EqualValues(t, 42, n)

	_, ok = ParseReceipt("FACT-000042")
	require.False(t, ok)
	_, ok = ParseInvoice("FACT-abc")
	require.False(t, ok)
}

func TestKeyString(t *testing.T) {
	require.Equal(t, "RECEIPT", ReceiptKey().String())
	require.Equal(t, "REPERTOIRE/2024", RepertoireKey(2024).String())
}
