package acts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/notarium/notarium/internal/shared"
)

const defaultArchivePerPage = 10

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records lifecycle events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts lifecycle transitions.
type MetricsPort interface {
	RecordTransition(status string, n int)
}

// Service moves acts through draft, finalized, signed and archived.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	signer  SigningProvider
	vault   FileMover
	metrics MetricsPort
	now     func() time.Time
}

// NewService constructs the lifecycle service. A nil signer falls back to PlaceholderSigner.
func NewService(repo RepositoryPort, audit AuditPort, signer SigningProvider, vault FileMover) *Service {
	if signer == nil {
		signer = PlaceholderSigner{}
	}
	return &Service{repo: repo, audit: audit, signer: signer, vault: vault, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics enables transition counters.
func (s *Service) WithMetrics(metrics MetricsPort) {
	s.metrics = metrics
}

// CreateDraft registers a new act in draft state.
func (s *Service) CreateDraft(ctx context.Context, in DraftInput) (Act, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Type = strings.TrimSpace(in.Type)
	if in.CaseID <= 0 || in.Title == "" {
		return Act{}, fmt.Errorf("%w: case and title are required", ErrInvalidInput)
	}
	var act Act
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err := tx.GetCase(ctx, in.CaseID)
		if err != nil {
			return err
		}
		if c.Status == CaseArchived {
			return &InvalidTransitionError{Entity: "case", ID: c.ID, From: string(c.Status), To: "new act"}
		}
		act, err = tx.InsertAct(ctx, Act{
			CaseID:    in.CaseID,
			Title:     in.Title,
			Type:      in.Type,
			Status:    StatusDraft,
			Content:   in.Content,
			FileName:  in.FileName,
			Version:   1,
			CreatedBy: in.AuthorID,
		})
		return err
	})
	if err != nil {
		return Act{}, err
	}
	s.record(ctx, in.AuthorID, "act.create", "act", act.ID, map[string]any{"case_id": act.CaseID})
	return act, nil
}

// Finalize moves a draft act to finalized.
func (s *Service) Finalize(ctx context.Context, actID, actorID int64) (Act, error) {
	var act Act
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		act, err = tx.GetActForUpdate(ctx, actID)
		if err != nil {
			return err
		}
		if act.Status != StatusDraft {
			return &InvalidTransitionError{Entity: "act", ID: act.ID, From: string(act.Status), To: string(StatusFinalized)}
		}
		at := s.now()
		act.Status = StatusFinalized
		act.FinalizedBy = &actorID
		act.FinalizedAt = &at
		return tx.UpdateAct(ctx, act)
	})
	if err != nil {
		return Act{}, err
	}
	s.transitioned(ctx, actorID, "act.finalize", act, nil)
	return act, nil
}

// Sign moves a finalized act to signed through the configured provider.
func (s *Service) Sign(ctx context.Context, actID, actorID int64) (Act, error) {
	var act Act
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		act, err = tx.GetActForUpdate(ctx, actID)
		if err != nil {
			return err
		}
		if act.Status != StatusFinalized {
			return &InvalidTransitionError{Entity: "act", ID: act.ID, From: string(act.Status), To: string(StatusSigned)}
		}
		at := s.now()
		sig, err := s.signer.Sign(ctx, act, actorID, at)
		if err != nil {
			return fmt.Errorf("acts: sign act %d: %w", act.ID, err)
		}
		if err := tx.InsertSignature(ctx, act.ID, sig); err != nil {
			return err
		}
		act.Status = StatusSigned
		act.SignedAt = &sig.SignedAt
		act.Signature = &sig
		return tx.UpdateAct(ctx, act)
	})
	if err != nil {
		return Act{}, err
	}
	s.transitioned(ctx, actorID, "act.sign", act, map[string]any{"method": act.Signature.Method, "signature_id": act.Signature.ID.String()})
	return act, nil
}

// ArchiveCase archives every signed act of a case in one batch. Repertoire
// numbers are consecutive within the archival year. A failure restores moved
// files and leaves no metadata change behind.
func (s *Service) ArchiveCase(ctx context.Context, caseID, actorID int64) (ArchiveResult, error) {
	if s.vault == nil {
		return ArchiveResult{}, errors.New("acts: archive vault not configured")
	}
	at := s.now()
	year := at.Year()
	var (
		result ArchiveResult
		moved  []string
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err := tx.GetCaseForUpdate(ctx, caseID)
		if err != nil {
			return err
		}
		if c.Status == CaseArchived {
			return &InvalidTransitionError{Entity: "case", ID: c.ID, From: string(c.Status), To: string(CaseArchived)}
		}
		all, err := tx.ListCaseActs(ctx, caseID, true)
		if err != nil {
			return err
		}
		signed := make([]Act, 0, len(all))
		for _, act := range all {
			if act.Status == StatusSigned {
				signed = append(signed, act)
			}
		}
		if len(signed) == 0 {
			return &NothingToArchiveError{CaseID: caseID}
		}
		next, err := tx.ReserveRepertoire(ctx, year, int64(len(signed)))
		if err != nil {
			return err
		}
		for _, act := range signed {
			dest, err := s.vault.Move(ctx, caseID, act.FileName)
			if err != nil {
				return fmt.Errorf("acts: archive act %d: %w", act.ID, err)
			}
			if dest != "" {
				moved = append(moved, act.FileName)
			}
			number := next
			next++
			act.Status = StatusArchived
			act.RepertoireNumber = &number
			act.RepertoireYear = &year
			act.ArchivedBy = &actorID
			act.ArchivedAt = &at
			if err := tx.UpdateAct(ctx, act); err != nil {
				return err
			}
			result.Archived = append(result.Archived, act)
		}
		c.Status = CaseArchived
		c.ArchivedBy = &actorID
		c.ArchivedAt = &at
		if err := tx.UpdateCase(ctx, c); err != nil {
			return err
		}
		result.Case = c
		result.Skipped = len(all) - len(signed)
		return nil
	})
	if err != nil {
		return ArchiveResult{}, errors.Join(err, s.restore(ctx, caseID, moved))
	}
	if s.metrics != nil {
		s.metrics.RecordTransition(string(StatusArchived), len(result.Archived))
	}
	numbers := make([]int64, 0, len(result.Archived))
	for _, act := range result.Archived {
		numbers = append(numbers, *act.RepertoireNumber)
	}
	s.record(ctx, actorID, "case.archive", "case", caseID, map[string]any{
		"year":    year,
		"numbers": numbers,
		"skipped": result.Skipped,
	})
	return result, nil
}

func (s *Service) restore(ctx context.Context, caseID int64, moved []string) error {
	var errs []error
	for i := len(moved) - 1; i >= 0; i-- {
		if err := s.vault.Restore(ctx, caseID, moved[i]); err != nil {
			errs = append(errs, fmt.Errorf("acts: restore %s: %w", moved[i], err))
		}
	}
	return errors.Join(errs...)
}

// GetAct loads one act with its signature.
func (s *Service) GetAct(ctx context.Context, id int64) (Act, error) {
	var act Act
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		act, err = tx.GetAct(ctx, id)
		return err
	})
	return act, err
}

// ListCaseActs returns the acts of a case in creation order.
func (s *Service) ListCaseActs(ctx context.Context, caseID int64) ([]Act, error) {
	var out []Act
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetCase(ctx, caseID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListCaseActs(ctx, caseID, false)
		return err
	})
	return out, err
}

// SearchArchivedCases pages through archived cases, newest first.
func (s *Service) SearchArchivedCases(ctx context.Context, search ArchiveSearch) (ArchivePage, error) {
	search.Number = strings.TrimSpace(search.Number)
	search.Title = strings.TrimSpace(search.Title)
	search.Type = strings.TrimSpace(search.Type)
	search.Client = strings.TrimSpace(search.Client)
	if search.PerPage <= 0 || search.PerPage > 100 {
		search.PerPage = defaultArchivePerPage
	}
	if search.Page <= 0 {
		search.Page = 1
	}
	var (
		cases []Case
		total int
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		cases, total, err = tx.SearchArchivedCases(ctx, search)
		return err
	})
	if err != nil {
		return ArchivePage{}, err
	}
	return ArchivePage{Cases: cases, Pagination: shared.NewPagination(search.Page, search.PerPage, total)}, nil
}

func (s *Service) transitioned(ctx context.Context, actorID int64, action string, act Act, meta map[string]any) {
	if s.metrics != nil {
		s.metrics.RecordTransition(string(act.Status), 1)
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["case_id"] = act.CaseID
	s.record(ctx, actorID, action, "act", act.ID, meta)
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
