package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"caixa/internal/core"
	"caixa/internal/services"
	"caixa/internal/storage/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 2, 15, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts Options) (*Server, *services.LedgerService) {
	t.Helper()
	store := memory.New([]core.Category{
		{Name: "Fornecedor", Kind: core.CashOutflow},
		{Name: "Balcão", Kind: core.CardSale},
	})
	ledger := services.NewLedgerService(store, nil, services.Options{})
	opts.Location = time.UTC
	opts.Now = func() time.Time { return testNow }

	srv := NewServer(":0", ledger, opts)
	require.NotNil(t, srv.templates, "templates must parse")
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, ledger
}

func do(srv *Server, method, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func mustAmount(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := core.ParseAmount(s)
	require.NoError(t, err)
	return d
}

func ptr[T any](v T) *T { return &v }

func doJSON(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(srv, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}

	rr := do(srv, http.MethodGet, "/readyz", nil)
	assert.Contains(t, rr.Body.String(), `"status":"ready"`)

	failing, _ := newTestServer(t, Options{Ready: func(context.Context) error { return errors.New("db down") }})
	rr = do(failing, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), `"store":"failed"`)
}

func TestMetrics(t *testing.T) {
	srv, _ := newTestServer(t, Options{SitePassword: "segredo"})

	do(srv, http.MethodGet, "/healthz", nil)
	do(srv, "TRACE", "/", nil)

	rr := do(srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "http_requests_total 2")
	assert.Contains(t, body, "blocked_requests_total 1")
	assert.Contains(t, body, `rate_limit_rejected_total{limiter="login"} 0`)
	assert.Contains(t, body, "ledger_transactions_recorded_total 0")
}

func TestIndexRedirectsToToday(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rr := do(srv, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/days/2024-05-02", rr.Header().Get("Location"))
}

func TestDayPage(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rr := do(srv, http.MethodGet, "/days/2024-05-02", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "02/05/2024")
	assert.Contains(t, body, "quinta")
	assert.Contains(t, body, `href="/days/2024-05-01"`)
	assert.Contains(t, body, `href="/days/2024-05-03"`)
	assert.Contains(t, body, "Nenhum movimento neste dia.")
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.NotEmpty(t, rr.Header().Get("Content-Security-Policy"))
}

func TestDayPage_MalformedDate(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	for _, path := range []string{"/days/ontem", "/days/2024-13-01", "/api/days/2023-02-30"} {
		rr := do(srv, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, path)
	}
}

// The worked example: opening 100, supplies 20, withdrawals 30, counted 250,
// card 75 gives a cash sale of 160 and a total of 235.
func TestDayFormulaThroughHTTP(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rr := do(srv, http.MethodPost, "/days/2024-05-01/balances", url.Values{"closing": {"100,00"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)

	for _, tx := range []url.Values{
		{"kind": {"CASH_INFLOW"}, "amount": {"20"}},
		{"kind": {"CASH_OUTFLOW"}, "amount": {"30"}, "category_id": {"1"}},
		{"kind": {"CARD_SALE"}, "amount": {"75"}},
	} {
		rr := do(srv, http.MethodPost, "/days/2024-05-02/transactions", tx)
		require.Equal(t, http.StatusSeeOther, rr.Code, rr.Body.String())
		assert.Equal(t, "/days/2024-05-02#movimentos", rr.Header().Get("Location"))
	}
	rr = do(srv, http.MethodPost, "/days/2024-05-02/balances", url.Values{"closing": {"250"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)

	rr = do(srv, http.MethodGet, "/api/days/2024-05-02", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `"opening":100.00`)
	assert.Contains(t, body, `"closing":250.00`)
	assert.Contains(t, body, `"card":75.00`)
	assert.Contains(t, body, `"cash_from_sales":160.00`)
	assert.Contains(t, body, `"withdrawals":30.00`)
	assert.Contains(t, body, `"supplies":20.00`)
	assert.Contains(t, body, `"overall":235.00`)
	assert.Contains(t, body, `"clamped":false`)
	assert.Contains(t, body, `"category":"Fornecedor"`)
	assert.Contains(t, body, `"previous":"2024-05-01"`)

	page := do(srv, http.MethodGet, "/days/2024-05-02", nil).Body.String()
	assert.Contains(t, page, "R$ 235,00")
	assert.Contains(t, page, "R$ 160,00")
}

func TestDayFormula_ClampedThroughHTTP(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	require.Equal(t, http.StatusSeeOther, do(srv, http.MethodPost, "/days/2024-05-01/balances", url.Values{"closing": {"10"}}).Code)
	require.Equal(t, http.StatusSeeOther, do(srv, http.MethodPost, "/days/2024-05-02/transactions",
		url.Values{"kind": {"CASH_OUTFLOW"}, "amount": {"3"}}).Code)
	require.Equal(t, http.StatusSeeOther, do(srv, http.MethodPost, "/days/2024-05-02/balances", url.Values{"closing": {"5"}}).Code)

	body := do(srv, http.MethodGet, "/api/days/2024-05-02", nil).Body.String()
	assert.Contains(t, body, `"cash_from_sales":0.00`)
	assert.Contains(t, body, `"clamped":true`)
	assert.Contains(t, body, `"discrepancy":-2.00`)
}

func TestCreateTransaction_Validation(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	tests := []struct {
		name    string
		form    url.Values
		message string
	}{
		{"bad amount", url.Values{"kind": {"CARD_SALE"}, "amount": {"abc"}}, "Valor inválido"},
		{"zero amount", url.Values{"kind": {"CARD_SALE"}, "amount": {"0"}}, "Valor inválido"},
		{"bad kind", url.Values{"kind": {"REFUND"}, "amount": {"5"}}, "Tipo de movimento inválido"},
		{"category of another kind", url.Values{"kind": {"CARD_SALE"}, "amount": {"5"}, "category_id": {"1"}}, "não corresponde"},
		{"unknown category", url.Values{"kind": {"CARD_SALE"}, "amount": {"5"}, "category_id": {"99"}}, "Categoria inexistente"},
		{"long description", url.Values{"kind": {"CARD_SALE"}, "amount": {"5"}, "description": {strings.Repeat("x", 201)}}, "Descrição muito longa"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(srv, http.MethodPost, "/days/2024-05-02/transactions", tt.form)
			assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.message)
			// the page is rendered again with the user's input
			assert.Contains(t, rr.Body.String(), `value="`+tt.form.Get("amount")+`"`)
		})
	}
}

func TestCreateTransaction_JSON(t *testing.T) {
	srv, ledger := newTestServer(t, Options{})

	rr := doJSON(srv, http.MethodPost, "/days/2024-05-02/transactions",
		`{"kind":"CARD_SALE","amount":"12,34","description":"mesa 4"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"amount":12.34`)
	assert.Contains(t, rr.Body.String(), `"description":"mesa 4"`)

	rr = doJSON(srv, http.MethodPost, "/days/2024-05-02/transactions", `{"kind":"CARD_SALE","amount":"-1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.JSONEq(t, `{"error":"Valor inválido"}`, rr.Body.String())

	totals, err := ledger.SummarizeDay(context.Background(), core.NewDate(2024, 5, 2))
	require.NoError(t, err)
	assert.Equal(t, "12.34", totals.Card.StringFixed(2))
}

func TestSetBalance_Validation(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	for _, v := range []string{"-5", "abc", ""} {
		rr := do(srv, http.MethodPost, "/days/2024-05-02/balances", url.Values{"closing": {v}})
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, v)
		assert.Contains(t, rr.Body.String(), "Saldo final inválido", v)
	}

	rr := do(srv, http.MethodPost, "/days/2024-05-02/balances", url.Values{"closing": {"0"}})
	assert.Equal(t, http.StatusSeeOther, rr.Code)
}

func TestSetClosed(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	require.Equal(t, http.StatusSeeOther, do(srv, http.MethodPost, "/days/2024-05-01/balances", url.Values{"closing": {"80"}}).Code)

	rr := do(srv, http.MethodPost, "/days/2024-05-02/closed", url.Values{"closed": {"1"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/days/2024-05-02", rr.Header().Get("Location"))

	body := do(srv, http.MethodGet, "/api/days/2024-05-02", nil).Body.String()
	assert.Contains(t, body, `"closed":true`)
	assert.Contains(t, body, `"non_operating":true`)
	// a non-operating day passes its opening straight through
	assert.Contains(t, body, `"closing":80.00`)

	page := do(srv, http.MethodGet, "/days/2024-05-02", nil).Body.String()
	assert.Contains(t, page, "Reabrir dia")

	require.Equal(t, http.StatusSeeOther, do(srv, http.MethodPost, "/days/2024-05-02/closed", url.Values{"closed": {"0"}}).Code)
	body = do(srv, http.MethodGet, "/api/days/2024-05-02", nil).Body.String()
	assert.Contains(t, body, `"closed":false`)
}

func TestEditAndDeleteTransaction(t *testing.T) {
	srv, ledger := newTestServer(t, Options{})
	ctx := context.Background()

	tx, err := ledger.RecordTransaction(ctx, core.Transaction{
		Date:   core.NewDate(2024, 5, 2),
		Kind:   core.CardSale,
		Amount: mustAmount(t, "40"),
	})
	require.NoError(t, err)
	editPath := "/transactions/" + strconv.FormatInt(tx.ID, 10) + "/edit"
	deletePath := "/transactions/" + strconv.FormatInt(tx.ID, 10) + "/delete"

	rr := do(srv, http.MethodGet, editPath, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `value="40.00"`)
	assert.Contains(t, rr.Body.String(), `value="2024-05-02"`)

	rr = do(srv, http.MethodPost, editPath, url.Values{"kind": {"CARD_SALE"}, "amount": {"0"}, "date": {"2024-05-02"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), "Valor inválido")

	rr = do(srv, http.MethodPost, editPath, url.Values{"kind": {"CARD_SALE"}, "amount": {"50"}, "date": {"2024-05-03"}})
	require.Equal(t, http.StatusSeeOther, rr.Code, rr.Body.String())
	assert.Equal(t, "/days/2024-05-03#movimentos", rr.Header().Get("Location"))

	moved, err := ledger.SummarizeDay(ctx, core.NewDate(2024, 5, 3))
	require.NoError(t, err)
	assert.Equal(t, "50.00", moved.Card.StringFixed(2))
	left, err := ledger.SummarizeDay(ctx, core.NewDate(2024, 5, 2))
	require.NoError(t, err)
	assert.Equal(t, "0.00", left.Card.StringFixed(2))

	rr = do(srv, http.MethodPost, deletePath, url.Values{})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/days/2024-05-03#movimentos", rr.Header().Get("Location"))

	assert.Equal(t, http.StatusNotFound, do(srv, http.MethodGet, editPath, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(srv, http.MethodGet, "/transactions/abc/edit", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(srv, http.MethodPost, deletePath, url.Values{}).Code)
}

func TestReport(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	require.Equal(t, http.StatusSeeOther, do(srv, http.MethodPost, "/days/2024-05-01/transactions",
		url.Values{"kind": {"CARD_SALE"}, "amount": {"10"}, "category_id": {"2"}}).Code)
	require.Equal(t, http.StatusSeeOther, do(srv, http.MethodPost, "/days/2024-05-02/transactions",
		url.Values{"kind": {"CARD_SALE"}, "amount": {"15"}}).Code)

	rr := do(srv, http.MethodGet, "/api/report?start=2024-05-01&end=2024-05-02", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `"days":2`)
	assert.Contains(t, body, `"overall":25.00`)
	assert.Contains(t, body, `"name":"Balcão"`)
	assert.Contains(t, body, `"name":"Sem categoria"`)

	rr = do(srv, http.MethodGet, "/report?start=2024-05-01&end=2024-05-02", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "R$ 25,00")

	// month to date by default
	rr = do(srv, http.MethodGet, "/api/report", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"start":"2024-05-01"`)

	tests := []string{
		"/api/report?start=2024-05-10&end=2024-05-01",
		"/api/report?start=2020-01-01&end=2024-01-01",
		"/api/report?start=maio",
	}
	for _, path := range tests {
		rr := do(srv, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, path)
		assert.Contains(t, rr.Body.String(), `"error"`, path)
	}

	rr = do(srv, http.MethodGet, "/report?start=2024-05-10&end=2024-05-01", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Período inválido")
}

func TestCategories(t *testing.T) {
	srv, ledger := newTestServer(t, Options{})

	rr := do(srv, http.MethodPost, "/categories", url.Values{"name": {"Troco"}, "kind": {"cash_inflow"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/categories", rr.Header().Get("Location"))

	rr = do(srv, http.MethodGet, "/categories", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Troco")

	rr = do(srv, http.MethodPost, "/categories", url.Values{"name": {"Troco"}, "kind": {"CASH_INFLOW"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), "Categoria já existe")

	rr = do(srv, http.MethodPost, "/categories", url.Values{"name": {"  "}, "kind": {"CASH_INFLOW"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	// category 1 is referenced, so it is kept
	_, err := ledger.RecordTransaction(context.Background(), core.Transaction{
		Date: core.NewDate(2024, 5, 2), Kind: core.CashOutflow, Amount: mustAmount(t, "5"), CategoryID: ptr(int64(1)),
	})
	require.NoError(t, err)
	rr = do(srv, http.MethodPost, "/categories/1/delete", url.Values{})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/categories?kept=1", rr.Header().Get("Location"))
	assert.Contains(t, do(srv, http.MethodGet, "/categories?kept=1", nil).Body.String(), "não foi removida")

	rr = do(srv, http.MethodPost, "/categories/2/delete", url.Values{})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/categories", rr.Header().Get("Location"))

	cats, err := ledger.ListCategories(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, cats, 2)

	assert.Equal(t, http.StatusNotFound, do(srv, http.MethodPost, "/categories/99/delete", url.Values{}).Code)
}

func TestPasswordGate(t *testing.T) {
	srv, _ := newTestServer(t, Options{SitePassword: "segredo", SessionTTL: time.Hour})

	rr := do(srv, http.MethodGet, "/days/2024-05-02", nil)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/site-login?next=%2Fdays%2F2024-05-02", rr.Header().Get("Location"))

	assert.Equal(t, http.StatusUnauthorized, do(srv, http.MethodGet, "/api/days/2024-05-02", nil).Code)
	assert.Equal(t, http.StatusSeeOther, do(srv, http.MethodPost, "/days/2024-05-02/transactions", url.Values{}).Code)
	assert.Equal(t, http.StatusOK, do(srv, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, do(srv, http.MethodGet, "/static/app.css", nil).Code)

	rr = do(srv, http.MethodGet, "/site-login?next=/report", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `value="/report"`)

	rr = do(srv, http.MethodPost, "/site-login", url.Values{"password": {"errada"}})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "Senha incorreta")

	rr = do(srv, http.MethodPost, "/site-login", url.Values{"password": {"segredo"}, "next": {"/report"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/report", rr.Header().Get("Location"))
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	session := cookies[0]
	assert.True(t, session.HttpOnly)
	assert.Equal(t, 3600, session.MaxAge)

	rr = do(srv, http.MethodGet, "/days/2024-05-02", nil, session)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Sair")

	rr = do(srv, http.MethodPost, "/site-logout", url.Values{}, session)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/site-login", rr.Header().Get("Location"))

	rr = do(srv, http.MethodGet, "/days/2024-05-02", nil, session)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
}

func TestPasswordGate_Disabled(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rr := do(srv, http.MethodGet, "/site-login", nil)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))
}

func TestLoginRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, Options{SitePassword: "segredo", LoginAttemptsPerMinute: 2})

	for i := 0; i < 2; i++ {
		rr := do(srv, http.MethodPost, "/site-login", url.Values{"password": {"x"}})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	}
	rr := do(srv, http.MethodPost, "/site-login", url.Values{"password": {"segredo"}})
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Contains(t, rr.Body.String(), "Muitas tentativas")
}

func TestSafeNext(t *testing.T) {
	tests := map[string]string{
		"":                 "/",
		"/report":          "/report",
		"//evil.example":   "/",
		"https://evil.com": "/",
		`/\evil.example`:   "/",
	}
	for in, want := range tests {
		assert.Equal(t, want, safeNext(in), in)
	}
}

func TestStaticAssets(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rr := do(srv, http.MethodGet, "/static/app.js", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "public, max-age=3600", rr.Header().Get("Cache-Control"))
	assert.Contains(t, rr.Body.String(), "/api/days/")
}

func TestBlockedMethod(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rr := do(srv, "TRACE", "/", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
