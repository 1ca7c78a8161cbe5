// Package acts drives notarial acts from draft to the archived repertoire.
package acts

import (
	"time"

	"github.com/google/uuid"

	"github.com/notarium/notarium/internal/shared"
)

// Status enumerates act lifecycle values. Transitions only move forward.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusFinalized Status = "FINALIZED"
	StatusSigned    Status = "SIGNED"
	StatusArchived  Status = "ARCHIVED"
)

// CaseStatus enumerates case (dossier) states the lifecycle cares about.
type CaseStatus string

const (
	CaseOpen     CaseStatus = "OPEN"
	CaseArchived CaseStatus = "ARCHIVED"
)

// Act is a legal document generated for a case.
type Act struct {
	ID               int64
	CaseID           int64
	Title            string
	Type             string
	Status           Status
	Content          string
	FileName         string
	Version          int
	FinalizedBy      *int64
	FinalizedAt      *time.Time
	SignedAt         *time.Time
	Signature        *Signature
	RepertoireNumber *int64
	RepertoireYear   *int
	ArchivedBy       *int64
	ArchivedAt       *time.Time
	CreatedBy        int64
	CreatedAt        time.Time
}

// Signature records how and by whom an act was signed.
type Signature struct {
	ID       uuid.UUID
	Method   string
	Value    string
	SignerID int64
	SignedAt time.Time
}

// Case is the dossier owning a set of acts.
type Case struct {
	ID         int64
	Reference  string
	Title      string
	Type       string
	Status     CaseStatus
	ArchivedBy *int64
	ArchivedAt *time.Time
	CreatedAt  time.Time
}

// DraftInput describes a new act.
type DraftInput struct {
	CaseID   int64
	Title    string
	Type     string
	Content  string
	FileName string
	AuthorID int64
}

// ArchiveResult reports the outcome of a batch archive.
type ArchiveResult struct {
	Case     Case
	Archived []Act
	Skipped  int
}

// ArchiveSearch filters archived cases. Empty fields are ignored.
type ArchiveSearch struct {
	Number  string
	Title   string
	Type    string
	Client  string
	Page    int
	PerPage int
}

// ArchivePage is one page of archived cases.
type ArchivePage struct {
	Cases      []Case
	Pagination shared.Pagination
}
