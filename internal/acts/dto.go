package acts

import (
	"time"

	"github.com/notarium/notarium/internal/shared"
)

type draftRequest struct {
	Title    string `json:"title" validate:"required,max=255"`
	Type     string `json:"type" validate:"max=100"`
	Content  string `json:"content"`
	FileName string `json:"file_name" validate:"max=255"`
}

type signatureResponse struct {
	ID       string    `json:"id"`
	Method   string    `json:"method"`
	Value    string    `json:"value"`
	SignerID int64     `json:"signer_id"`
	SignedAt time.Time `json:"signed_at"`
}

type actResponse struct {
	ID               int64              `json:"id"`
	CaseID           int64              `json:"case_id"`
	Title            string             `json:"title"`
	Type             string             `json:"type"`
	Status           string             `json:"status"`
	FileName         string             `json:"file_name,omitempty"`
	Version          int                `json:"version"`
	FinalizedBy      *int64             `json:"finalized_by,omitempty"`
	FinalizedAt      *time.Time         `json:"finalized_at,omitempty"`
	Signature        *signatureResponse `json:"signature,omitempty"`
	RepertoireNumber *int64             `json:"repertoire_number,omitempty"`
	RepertoireYear   *int               `json:"repertoire_year,omitempty"`
	ArchivedBy       *int64             `json:"archived_by,omitempty"`
	ArchivedAt       *time.Time         `json:"archived_at,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}

func toActResponse(a Act) actResponse {
	out := actResponse{
		ID:               a.ID,
		CaseID:           a.CaseID,
		Title:            a.Title,
		Type:             a.Type,
		Status:           string(a.Status),
		FileName:         a.FileName,
		Version:          a.Version,
		FinalizedBy:      a.FinalizedBy,
		FinalizedAt:      a.FinalizedAt,
		RepertoireNumber: a.RepertoireNumber,
		RepertoireYear:   a.RepertoireYear,
		ArchivedBy:       a.ArchivedBy,
		ArchivedAt:       a.ArchivedAt,
		CreatedAt:        a.CreatedAt,
	}
	if a.Signature != nil {
		out.Signature = &signatureResponse{
			ID:       a.Signature.ID.String(),
			Method:   a.Signature.Method,
			Value:    a.Signature.Value,
			SignerID: a.Signature.SignerID,
			SignedAt: a.Signature.SignedAt,
		}
	}
	return out
}

type caseResponse struct {
	ID         int64      `json:"id"`
	Reference  string     `json:"reference"`
	Title      string     `json:"title"`
	Type       string     `json:"type,omitempty"`
	Status     string     `json:"status"`
	ArchivedBy *int64     `json:"archived_by,omitempty"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

func toCaseResponse(c Case) caseResponse {
	return caseResponse{
		ID:         c.ID,
		Reference:  c.Reference,
		Title:      c.Title,
		Type:       c.Type,
		Status:     string(c.Status),
		ArchivedBy: c.ArchivedBy,
		ArchivedAt: c.ArchivedAt,
	}
}

type archiveResponse struct {
	Case     caseResponse  `json:"case"`
	Archived []actResponse `json:"archived"`
	Skipped  int           `json:"skipped"`
}

type archivePageResponse struct {
	Cases      []caseResponse    `json:"cases"`
	Pagination shared.Pagination `json:"pagination"`
}
