package accounting

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/language"

	"github.com/notarium/notarium/internal/accounting/reports"
	"github.com/notarium/notarium/internal/numbering"
	"github.com/notarium/notarium/internal/platform/httpx"
	"github.com/notarium/notarium/internal/rbac"
	"github.com/notarium/notarium/internal/shared"
)

const idempotencyModule = "accounting.receipts"

// IdempotencyPort guards replays of receipt creation.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Handler wires ledger endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	idem      IdempotencyPort
	validate  *validator.Validate
	formatter reports.AmountFormatter
	rateLimit func(http.Handler) http.Handler
}

// NewHandler builds a Handler instance. exportsPerMinute bounds CSV exports per actor.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, idem IdempotencyPort, exportsPerMinute int) *Handler {
	if exportsPerMinute <= 0 {
		exportsPerMinute = 10
	}
	limiter := httprate.Limit(exportsPerMinute, time.Minute, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
		if actor, ok := shared.ActorFromContext(r.Context()); ok {
			return "actor:" + strconv.FormatInt(actor.ID, 10), nil
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return "ip:" + r.RemoteAddr, nil
		}
		return "ip:" + host, nil
	}))
	return &Handler{
		logger:    logger,
		service:   service,
		rbac:      rbac,
		idem:      idem,
		validate:  validator.New(),
		formatter: reports.NewAmountFormatter(language.French),
		rateLimit: limiter,
	}
}

// MountRoutes registers HTTP routes for the ledger module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/accounting", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(shared.PermLedgerView))
			r.Get("/accounts", h.handleListAccounts)
			r.Get("/accounts/{id}", h.handleGetAccount)
			r.Get("/accounts/{id}/balance", h.handleAccountBalance)
			r.Get("/entries/{id}", h.handleGetEntry)
			r.Get("/receipts", h.handleListReceipts)
			r.Get("/receipts/{id}", h.handleGetReceipt)
			r.Get("/invoices", h.handleListInvoices)
			r.Get("/invoices/{id}", h.handleGetInvoice)
			r.Get("/reports/general-ledger", h.handleGeneralLedger)
			r.Get("/reports/trial-balance", h.handleTrialBalance)
			r.Get("/reports/dashboard", h.handleDashboard)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(shared.PermLedgerView))
			r.Use(h.rateLimit)
			r.Get("/reports/trial-balance/export.csv", h.handleExportTrialBalance)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(shared.PermChartAdmin))
			r.Post("/accounts", h.handleCreateAccount)
			r.Post("/accounts/init-chart", h.handleInitChart)
			r.Post("/accounts/{id}/deactivate", h.handleDeactivateAccount)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(shared.PermLedgerPost))
			r.Post("/entries", h.handleCreateEntry)
			r.Post("/entries/{id}/post", h.handlePostEntry)
			r.Post("/entries/{id}/reverse", h.handleReverseEntry)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(shared.PermReceiptsCreate))
			r.Post("/receipts", h.handleCreateReceipt)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(shared.PermInvoicesManage))
			r.Post("/invoices", h.handleCreateInvoice)
			r.Post("/invoices/{id}/pay", h.handlePayInvoice)
			r.Post("/invoices/{id}/cancel", h.handleCancelInvoice)
		})
	})
}

func (h *Handler) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	filter := AccountFilter{ActiveOnly: r.URL.Query().Get("include_inactive") != "true"}
	if raw := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("category"))); raw != "" {
		category := Category(raw)
		if category != CategoryOffice && category != CategoryClientTrust {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "category must be OFFICE or CLIENT")
			return
		}
		filter.Category = &category
	}
	accounts, err := h.service.ListAccounts(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	account, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) handleAccountBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	rng, err := parseRange(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	balance, err := h.service.GetAccountBalance(r.Context(), id, rng)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"account_id": id, "balance": balance})
}

func (h *Handler) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	account, err := h.service.CreateAccount(r.Context(), CreateAccountInput{
		Number:   req.Number,
		Label:    req.Label,
		Type:     AccountType(req.Type),
		Category: Category(req.Category),
	}, actorID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAccountResponse(account))
}

func (h *Handler) handleInitChart(w http.ResponseWriter, r *http.Request) {
	created, err := h.service.InitializeDefaultChart(r.Context(), actorID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"created": created})
}

func (h *Handler) handleDeactivateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	account, err := h.service.DeactivateAccount(r.Context(), id, actorID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	entry, err := h.service.GetEntry(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if !h.decode(w, r, &req) {
		return
	}
	entryDate, _ := parseDate(req.Date)
	in := EntryInput{
		Date:           entryDate,
		Label:          req.Label,
		Journal:        JournalCode(req.Journal),
		CaseID:         req.CaseID,
		DocumentNumber: req.DocumentNumber,
		AuthorID:       actorID(r),
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, LineInput{AccountID: line.AccountID, Debit: line.Debit, Credit: line.Credit})
	}
	entry, err := h.service.CreateEntry(r.Context(), in)
	if err != nil {
		var unbalanced *UnbalancedEntryError
		if errors.As(err, &unbalanced) && entry.ID != 0 {
			httpx.JSON(w, http.StatusUnprocessableEntity, map[string]any{
				"title":  "Unbalanced Entry",
				"status": http.StatusUnprocessableEntity,
				"detail": err.Error(),
				"entry":  toEntryResponse(entry),
			})
			return
		}
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) handlePostEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	entry, err := h.service.PostEntry(r.Context(), id, actorID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) handleReverseEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req reverseRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	reversalDate, _ := parseOptionalDate(req.Date)
	entry, err := h.service.ReverseEntry(r.Context(), ReverseInput{
		EntryID: id,
		ActorID: actorID(r),
		Label:   req.Label,
		Date:    reversalDate,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) handleCreateReceipt(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if !h.decode(w, r, &req) {
		return
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" && h.idem != nil {
		if err := h.idem.CheckAndInsert(r.Context(), key, idempotencyModule); err != nil {
			h.respondError(w, err)
			return
		}
	}
	receiptDate, _ := parseDate(req.Date)
	receipt, err := h.service.CreateReceipt(r.Context(), ReceiptInput{
		Date:       receiptDate,
		Amount:     req.Amount,
		Mode:       PaymentMode(req.Mode),
		Purpose:    req.Purpose,
		CaseID:     req.CaseID,
		ClientID:   req.ClientID,
		PaymentRef: req.PaymentRef,
		AuthorID:   actorID(r),
	})
	if err != nil {
		if key != "" && h.idem != nil {
			if delErr := h.idem.Delete(r.Context(), key); delErr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toReceiptResponse(receipt))
}

func (h *Handler) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseDocumentFilter(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	receipts, err := h.service.ListReceipts(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]receiptResponse, 0, len(receipts))
	for _, rec := range receipts {
		out = append(out, toReceiptResponse(rec))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	receipt, err := h.service.GetReceipt(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReceiptResponse(receipt))
}

func (h *Handler) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if !h.decode(w, r, &req) {
		return
	}
	issue, _ := parseDate(req.IssueDate)
	due, _ := parseOptionalDate(req.DueDate)
	invoice, err := h.service.CreateInvoice(r.Context(), InvoiceInput{
		IssueDate:   issue,
		DueDate:     due,
		CaseID:      req.CaseID,
		ClientID:    req.ClientID,
		Pretax:      req.Pretax,
		Tax:         req.Tax,
		Description: req.Description,
		AuthorID:    actorID(r),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toInvoiceResponse(invoice))
}

func (h *Handler) handlePayInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	in := PaymentInput{Mode: PaymentMode(req.Mode), ActorID: actorID(r)}
	if paid, _ := parseOptionalDate(req.Date); paid != nil {
		in.Date = *paid
	}
	invoice, err := h.service.MarkInvoicePaid(r.Context(), id, in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(invoice))
}

func (h *Handler) handleCancelInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	invoice, err := h.service.CancelInvoice(r.Context(), id, actorID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(invoice))
}

func (h *Handler) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	filter, err := parseDocumentFilter(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	invoices, err := h.service.ListInvoices(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, toInvoiceResponse(inv))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	invoice, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(invoice))
}

func (h *Handler) handleGeneralLedger(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	filter := LedgerFilter{Range: rng}
	if raw := r.URL.Query().Get("account"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "account must be a positive id")
			return
		}
		filter.AccountID = &id
	}
	gl, err := h.service.GeneralLedger(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if r.URL.Query().Get("format") == "display" {
		httpx.JSON(w, http.StatusOK, h.formatter.GeneralLedger(gl))
		return
	}
	httpx.JSON(w, http.StatusOK, gl)
}

func (h *Handler) handleTrialBalance(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseAsOf(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), asOf)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if r.URL.Query().Get("format") == "display" {
		httpx.JSON(w, http.StatusOK, h.formatter.TrialBalance(tb))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"as_of":        tb.AsOf.Format(dateLayout),
		"rows":         tb.Rows,
		"total_debit":  tb.TotalDebit,
		"total_credit": tb.TotalCredit,
		"balanced":     tb.Balanced(),
	})
}

func (h *Handler) handleExportTrialBalance(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseAsOf(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), asOf)
	if err != nil {
		h.respondError(w, err)
		return
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	writer.Comma = ';'
	_ = writer.Write([]string{"Compte", "Libellé", "Catégorie", "Débit", "Crédit"})
	for _, row := range tb.Rows {
		_ = writer.Write([]string{row.Number, row.Label, row.Category, row.Debit.StringFixed(2), row.Credit.StringFixed(2)})
	}
	_ = writer.Write([]string{"", "Total", "", tb.TotalDebit.StringFixed(2), tb.TotalCredit.StringFixed(2)})
	writer.Flush()
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=balance_%s.csv", tb.AsOf.Format("20060102")))
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := h.service.Dashboard(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDashboardResponse(dash))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
			}
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", strings.Join(msgs, "; "))
			return false
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrEntryNotFound),
		errors.Is(err, ErrReceiptNotFound), errors.Is(err, ErrInvoiceNotFound):
		httpx.RespondError(w, httpx.Classify(httpx.ErrNotFound, err))
	case errors.Is(err, ErrDuplicateAccount):
		httpx.RespondError(w, httpx.Classify(httpx.ErrDuplicate, err))
	case errors.Is(err, ErrAlreadyPosted), errors.Is(err, ErrAlreadyReversed),
		errors.Is(err, numbering.ErrConflict), errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.RespondError(w, httpx.Classify(httpx.ErrConflict, err))
	case errors.Is(err, ErrUnbalanced), errors.Is(err, ErrNotPosted), errors.Is(err, ErrCannotReverse),
		errors.Is(err, ErrInvalidInvoiceStatus), errors.Is(err, ErrCategoryMismatch), errors.Is(err, ErrAccountInactive),
		errors.Is(err, ErrAccountHasBalance):
		httpx.RespondError(w, httpx.Classify(httpx.ErrUnprocessable, err))
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidAccount),
		errors.Is(err, ErrInvalidPaymentMode), errors.Is(err, ErrNoLines):
		httpx.RespondError(w, httpx.Classify(httpx.ErrValidation, err))
	default:
		h.logger.Error("accounting request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func actorID(r *http.Request) int64 {
	actor, _ := shared.ActorFromContext(r.Context())
	return actor.ID
}

func parseRange(r *http.Request) (DateRange, error) {
	q := r.URL.Query()
	from, err := parseOptionalDate(q.Get("from"))
	if err != nil {
		return DateRange{}, fmt.Errorf("from: %w", err)
	}
	to, err := parseOptionalDate(q.Get("to"))
	if err != nil {
		return DateRange{}, fmt.Errorf("to: %w", err)
	}
	if from != nil && to != nil && to.Before(*from) {
		return DateRange{}, errors.New("to must not be before from")
	}
	return DateRange{From: from, To: to}, nil
}

func parseAsOf(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return time.Time{}, nil
	}
	asOf, err := parseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("as_of: %w", err)
	}
	return asOf, nil
}

func parseDocumentFilter(r *http.Request) (DocumentFilter, error) {
	q := r.URL.Query()
	var filter DocumentFilter
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return DocumentFilter{}, errors.New("limit must be a non-negative integer")
		}
		filter.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return DocumentFilter{}, errors.New("offset must be a non-negative integer")
		}
		filter.Offset = n
	}
	if raw := strings.ToUpper(q.Get("status")); raw != "" {
		status := InvoiceStatus(raw)
		switch status {
		case InvoiceUnpaid, InvoicePaid, InvoiceCancelled:
		default:
			return DocumentFilter{}, errors.New("status must be UNPAID, PAID or CANCELLED")
		}
		filter.Status = &status
	}
	return filter, nil
}
