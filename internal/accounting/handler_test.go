package accounting

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/notarium/notarium/internal/rbac"
	"github.com/notarium/notarium/internal/shared"
)

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func (m *memoryIdempotency) CheckAndInsert(_ context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]string{}
	}
	if _, ok := m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = module
	return nil
}

func (m *memoryIdempotency) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type handlerFixture struct {
	fixture
	router http.Handler
	idem   *memoryIdempotency
}

func newHandlerFixture(t *testing.T) handlerFixture {
	t.Helper()
	f := newFixture(t, ServiceConfig{})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mw := rbac.Middleware{Service: rbac.NewDefaultService(), Logger: logger}
	idem := &memoryIdempotency{}
	h := NewHandler(logger, f.svc, mw, idem, 2)
	r := chi.NewRouter()
	r.Use(mw.Identify)
	h.MountRoutes(r)
	return handlerFixture{fixture: f, router: r, idem: idem}
}

func (f handlerFixture) do(t *testing.T, method, path, role, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if role != "" {
		req.Header.Set(rbac.HeaderActorID, "9")
		req.Header.Set(rbac.HeaderActorRole, role)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerRequiresIdentityAndPermission(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodGet, "/accounting/accounts", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/accounting/accounts", shared.RoleClerk, "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/accounting/accounts?category=client", shared.RoleAccountant, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var accounts []accountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accounts))
	require.Len(t, accounts, 3)

	rec = f.do(t, http.MethodPost, "/accounting/accounts/init-chart", shared.RoleNotary, "")
	require.Equal(t, http.StatusForbidden, rec.Code, "chart administration is reserved to admins")

	rec = f.do(t, http.MethodPost, "/accounting/accounts/init-chart", shared.RoleAdmin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"created":0}`, rec.Body.String())
}

func TestHandlerCreateAccountConflict(t *testing.T) {
	f := newHandlerFixture(t)
	body := `{"number":"4671","label":"Client Martin","type":"TIERS","category":"CLIENT"}`

	rec := f.do(t, http.MethodPost, "/accounting/accounts", shared.RoleAdmin, body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/accounting/accounts", shared.RoleAdmin, body)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/accounting/accounts", shared.RoleAdmin, `{"number":"1","label":"x","type":"BOGUS"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerDeactivateAccountWithBalance(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.do(t, http.MethodPost, "/accounting/receipts", shared.RoleSecretary,
		`{"date":"2024-05-10","amount":"50000","mode":"CASH","purpose":"Provision"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	cash := f.account(t, AccountTrustCash)
	rec = f.do(t, http.MethodPost, "/accounting/accounts/"+strconv.FormatInt(cash.ID, 10)+"/deactivate", shared.RoleAdmin, "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(), AccountTrustCash)

	suspense := f.account(t, AccountSuspense)
	rec = f.do(t, http.MethodPost, "/accounting/accounts/"+strconv.FormatInt(suspense.ID, 10)+"/deactivate", shared.RoleAdmin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var acc accountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acc))
	require.False(t, acc.Active)
}

func TestHandlerEntryLifecycle(t *testing.T) {
	f := newHandlerFixture(t)
	bank := f.account(t, AccountOfficeBank)
	fees := f.account(t, AccountFees)

	unbalanced := `{"date":"2024-03-01","label":"Honoraires","journal":"OD","lines":[` +
		`{"account_id":` + strconv.FormatInt(bank.ID, 10) + `,"debit":"100"},` +
		`{"account_id":` + strconv.FormatInt(fees.ID, 10) + `,"credit":"90"}]}`
	rec := f.do(t, http.MethodPost, "/accounting/entries", shared.RoleAccountant, unbalanced)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var problem struct {
		Entry entryResponse `json:"entry"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.NotZero(t, problem.Entry.ID)
	require.False(t, problem.Entry.Posted)

	balanced := strings.Replace(unbalanced, `"credit":"90"`, `"credit":"100"`, 1)
	rec = f.do(t, http.MethodPost, "/accounting/entries", shared.RoleAccountant, balanced)
	require.Equal(t, http.StatusCreated, rec.Code)
	var entry entryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))

	path := "/accounting/entries/" + strconv.FormatInt(entry.ID, 10)
	rec = f.do(t, http.MethodPost, path+"/post", shared.RoleAccountant, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodPost, path+"/post", shared.RoleAccountant, "")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, path+"/reverse", shared.RoleAccountant, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = f.do(t, http.MethodPost, path+"/reverse", shared.RoleAccountant, "")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/accounting/entries/999999", shared.RoleAccountant, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/accounting/entries", shared.RoleAccountant, `{"date":"01/03/2024","label":"x","journal":"OD","lines":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerReceiptIdempotencyKey(t *testing.T) {
	f := newHandlerFixture(t)
	body := `{"date":"2024-04-02","amount":"2500.00","mode":"CHECK","purpose":"Provision vente"}`

	rec := f.do(t, http.MethodPost, "/accounting/receipts", shared.RoleSecretary, body, "Idempotency-Key", "rcpt-1")
	require.Equal(t, http.StatusCreated, rec.Code)
	var receipt receiptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	require.Equal(t, "REC-000001", receipt.Number)

	rec = f.do(t, http.MethodPost, "/accounting/receipts", shared.RoleSecretary, body, "Idempotency-Key", "rcpt-1")
	require.Equal(t, http.StatusConflict, rec.Code)

	bad := `{"date":"2024-04-02","amount":"-5","mode":"CHECK","purpose":"x"}`
	rec = f.do(t, http.MethodPost, "/accounting/receipts", shared.RoleSecretary, bad, "Idempotency-Key", "rcpt-2")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotContains(t, f.idem.keys, "rcpt-2", "failed requests release their key")

	rec = f.do(t, http.MethodGet, "/accounting/receipts", shared.RoleSecretary, "")
	require.Equal(t, http.StatusForbidden, rec.Code, "secretaries record receipts but do not read the ledger")
}

func TestHandlerInvoiceStatusConflicts(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.do(t, http.MethodPost, "/accounting/invoices", shared.RoleNotary,
		`{"issue_date":"2024-05-01","pretax":"1000","tax":"200","description":"Acte de vente"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var inv invoiceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inv))
	require.Equal(t, "1200", inv.Total.String())
	require.Equal(t, string(InvoiceUnpaid), inv.Status)

	path := "/accounting/invoices/" + strconv.FormatInt(inv.ID, 10)
	rec = f.do(t, http.MethodPost, path+"/pay", shared.RoleNotary, `{"mode":"TRANSFER"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodPost, path+"/cancel", shared.RoleNotary, "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodGet, "/accounting/invoices?status=paid", shared.RoleNotary, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var invoices []invoiceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &invoices))
	require.Len(t, invoices, 1)

	rec = f.do(t, http.MethodGet, "/accounting/invoices?status=lost", shared.RoleNotary, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerTrialBalanceExportIsRateLimited(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.do(t, http.MethodPost, "/accounting/receipts", shared.RoleNotary,
		`{"date":"2024-04-02","amount":"300","mode":"CASH","purpose":"Frais"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/accounting/reports/trial-balance?as_of=2024-06-30&format=display", shared.RoleAccountant, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/accounting/reports/trial-balance/export.csv?as_of=2024-06-30", shared.RoleAccountant, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	require.Contains(t, body, "Compte;")
	require.Contains(t, body, AccountTrustCash+";")
	require.Contains(t, body, ";Total;;300.00;300.00")

	rec = f.do(t, http.MethodGet, "/accounting/reports/trial-balance/export.csv", shared.RoleAccountant, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodGet, "/accounting/reports/trial-balance/export.csv", shared.RoleAccountant, "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestHandlerDashboard(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.do(t, http.MethodPost, "/accounting/receipts", shared.RoleNotary,
		`{"date":"2024-04-02","amount":"150","mode":"TRANSFER","purpose":"Provision"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/accounting/reports/dashboard", shared.RoleNotary, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var dash dashboardResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dash))
	require.Equal(t, 1, dash.Receipts)
	require.Len(t, dash.RecentReceipts, 1)
	require.True(t, dash.ClientTotal.IsZero(), "trust debit and credit cancel out across the category")
}
