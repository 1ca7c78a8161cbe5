package acts

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/notarium/notarium/internal/numbering"
	"github.com/notarium/notarium/internal/shared"
)

// memoryStore mirrors the acts tables. WithTx restores a snapshot when fn fails.
type memoryStore struct {
	mu         sync.Mutex
	nextID     int64
	cases      map[int64]Case
	parties    map[int64][]string
	acts       map[int64]Act
	signatures map[int64]Signature
	sequences  map[int]int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		cases:      map[int64]Case{},
		parties:    map[int64][]string{},
		acts:       map[int64]Act{},
		signatures: map[int64]Signature{},
		sequences:  map[int]int64{},
	}
}

type memorySnapshot struct {
	nextID     int64
	cases      map[int64]Case
	acts       map[int64]Act
	signatures map[int64]Signature
	sequences  map[int]int64
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
		nextID:     s.nextID,
		cases:      copyMap(s.cases),
		acts:       copyMap(s.acts),
		signatures: copyMap(s.signatures),
		sequences:  copyMap(s.sequences),
	}
}

func (s *memoryStore) restore(snap memorySnapshot) {
	s.nextID = snap.nextID
	s.cases = snap.cases
	s.acts = snap.acts
	s.signatures = snap.signatures
	s.sequences = snap.sequences
}

func (s *memoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memoryStore) addCase(c Case, clients ...string) Case {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id()
	if c.Status == "" {
		c.Status = CaseOpen
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(c.ID) * time.Hour)
	}
	s.cases[c.ID] = c
	s.parties[c.ID] = clients
	return c
}

func (s *memoryStore) addAct(act Act) Act {
	s.mu.Lock()
	defer s.mu.Unlock()
	act.ID = s.id()
	if act.Version == 0 {
		act.Version = 1
	}
	s.acts[act.ID] = act
	return act
}

func (s *memoryStore) act(id int64) Act {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acts[id]
}

func (s *memoryStore) caseByID(id int64) Case {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cases[id]
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

func (tx *memoryTx) GetCase(_ context.Context, id int64) (Case, error) {
	c, ok := tx.s.cases[id]
	if !ok {
		return Case{}, ErrCaseNotFound
	}
	return c, nil
}

func (tx *memoryTx) GetCaseForUpdate(ctx context.Context, id int64) (Case, error) {
	return tx.GetCase(ctx, id)
}

func (tx *memoryTx) UpdateCase(_ context.Context, c Case) error {
	if _, ok := tx.s.cases[c.ID]; !ok {
		return ErrCaseNotFound
	}
	tx.s.cases[c.ID] = c
	return nil
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func (tx *memoryTx) SearchArchivedCases(_ context.Context, search ArchiveSearch) ([]Case, int, error) {
	var matched []Case
	for _, c := range tx.s.cases {
		if c.Status != CaseArchived {
			continue
		}
		if search.Number != "" && !containsFold(c.Reference, search.Number) {
			continue
		}
		if search.Title != "" && !containsFold(c.Title, search.Title) {
			continue
		}
		if search.Type != "" && c.Type != search.Type {
			continue
		}
		if search.Client != "" {
			found := false
			for _, name := range tx.s.parties[c.ID] {
				if containsFold(name, search.Client) {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		matched = append(matched, c)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	total := len(matched)
	offset := (search.Page - 1) * search.PerPage
	if offset >= total {
		return nil, total, nil
	}
	end := offset + search.PerPage
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (tx *memoryTx) withSignature(act Act) Act {
	if sig, ok := tx.s.signatures[act.ID]; ok {
		act.Signature = &sig
	}
	return act
}

func (tx *memoryTx) InsertAct(_ context.Context, act Act) (Act, error) {
	if _, ok := tx.s.cases[act.CaseID]; !ok {
		return Act{}, ErrCaseNotFound
	}
	act.ID = tx.s.id()
	act.CreatedAt = time.Now()
	tx.s.acts[act.ID] = act
	return act, nil
}

func (tx *memoryTx) GetAct(_ context.Context, id int64) (Act, error) {
	act, ok := tx.s.acts[id]
	if !ok {
		return Act{}, ErrActNotFound
	}
	return tx.withSignature(act), nil
}

func (tx *memoryTx) GetActForUpdate(ctx context.Context, id int64) (Act, error) {
	return tx.GetAct(ctx, id)
}

func (tx *memoryTx) ListCaseActs(_ context.Context, caseID int64, _ bool) ([]Act, error) {
	var out []Act
	for _, act := range tx.s.acts {
		if act.CaseID == caseID {
			out = append(out, tx.withSignature(act))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memoryTx) UpdateAct(_ context.Context, act Act) error {
	if _, ok := tx.s.acts[act.ID]; !ok {
		return ErrActNotFound
	}
	if act.RepertoireNumber != nil {
		for id, other := range tx.s.acts {
			if id != act.ID && other.RepertoireNumber != nil && *other.RepertoireNumber == *act.RepertoireNumber &&
				*other.RepertoireYear == *act.RepertoireYear {
				return &numbering.ConflictError{Key: numbering.RepertoireKey(*act.RepertoireYear)}
			}
		}
	}
	act.Signature = nil
	tx.s.acts[act.ID] = act
	return nil
}

func (tx *memoryTx) InsertSignature(_ context.Context, actID int64, sig Signature) error {
	if _, ok := tx.s.signatures[actID]; ok {
		return errors.New("duplicate signature")
	}
	tx.s.signatures[actID] = sig
	return nil
}

func (tx *memoryTx) ReserveRepertoire(_ context.Context, year int, n int64) (int64, error) {
	if n <= 0 {
		return 0, numbering.ErrInvalidCount
	}
	floor := int64(0)
	for _, act := range tx.s.acts {
		if act.RepertoireYear != nil && *act.RepertoireYear == year && *act.RepertoireNumber > floor {
			floor = *act.RepertoireNumber
		}
	}
	current := tx.s.sequences[year]
	if floor > current {
		current = floor
	}
	current += n
	tx.s.sequences[year] = current
	return current - n + 1, nil
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}
