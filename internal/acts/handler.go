package acts

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/notarium/notarium/internal/numbering"
	"github.com/notarium/notarium/internal/platform/httpx"
	"github.com/notarium/notarium/internal/rbac"
	"github.com/notarium/notarium/internal/shared"
)

// Handler exposes act lifecycle endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validate: validator.New()}
}

// MountRoutes registers act, case and archive routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermActsView))
		r.Get("/acts/{id}", h.handleGetAct)
		r.Get("/cases/{id}/acts", h.handleListCaseActs)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermActsFinalize))
		r.Post("/cases/{id}/acts", h.handleCreateDraft)
		r.Post("/acts/{id}/finalize", h.handleFinalize)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermActsSign))
		r.Post("/acts/{id}/sign", h.handleSign)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermArchivesManage))
		r.Post("/cases/{id}/archive", h.handleArchiveCase)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermArchivesView))
		r.Get("/archives", h.handleSearchArchives)
	})
}

func (h *Handler) handleGetAct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	act, err := h.service.GetAct(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toActResponse(act))
}

func (h *Handler) handleListCaseActs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	list, err := h.service.ListCaseActs(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]actResponse, 0, len(list))
	for _, act := range list {
		out = append(out, toActResponse(act))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	caseID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req draftRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	act, err := h.service.CreateDraft(r.Context(), DraftInput{
		CaseID:   caseID,
		Title:    req.Title,
		Type:     req.Type,
		Content:  req.Content,
		FileName: req.FileName,
		AuthorID: actorID(r),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toActResponse(act))
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	act, err := h.service.Finalize(r.Context(), id, actorID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toActResponse(act))
}

func (h *Handler) handleSign(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	act, err := h.service.Sign(r.Context(), id, actorID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toActResponse(act))
}

func (h *Handler) handleArchiveCase(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.service.ArchiveCase(r.Context(), id, actorID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := archiveResponse{Case: toCaseResponse(result.Case), Skipped: result.Skipped}
	for _, act := range result.Archived {
		out.Archived = append(out.Archived, toActResponse(act))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleSearchArchives(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	result, err := h.service.SearchArchivedCases(r.Context(), ArchiveSearch{
		Number:  q.Get("num"),
		Title:   q.Get("title"),
		Type:    q.Get("type"),
		Client:  q.Get("client"),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := archivePageResponse{Cases: make([]caseResponse, 0, len(result.Cases)), Pagination: result.Pagination}
	for _, c := range result.Cases {
		out.Cases = append(out.Cases, toCaseResponse(c))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrActNotFound), errors.Is(err, ErrCaseNotFound):
		httpx.RespondError(w, httpx.Classify(httpx.ErrNotFound, err))
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNothingToArchive):
		httpx.RespondError(w, httpx.Classify(httpx.ErrUnprocessable, err))
	case errors.Is(err, ErrInvalidInput):
		httpx.RespondError(w, httpx.Classify(httpx.ErrValidation, err))
	case errors.Is(err, numbering.ErrConflict):
		httpx.RespondError(w, httpx.Classify(httpx.ErrConflict, err))
	default:
		h.logger.Error("acts request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func actorID(r *http.Request) int64 {
	actor, _ := shared.ActorFromContext(r.Context())
	return actor.ID
}
