package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"bilancio/internal/auth"
	"bilancio/internal/config"
	"bilancio/internal/core"
	"bilancio/internal/ledger"
)

type memStore struct {
	budgets map[string]core.BudgetSnapshot
}

func (m *memStore) LoadBudget(_ context.Context, identity string) (core.BudgetSnapshot, bool, error) {
	snap, ok := m.budgets[identity]
	return snap, ok, nil
}

func (m *memStore) SaveBudget(_ context.Context, identity string, snap core.BudgetSnapshot) error {
	m.budgets[identity] = snap
	return nil
}

func (m *memStore) CommitSpend(_ context.Context, identity string, snap core.BudgetSnapshot, _ ledger.Transaction) error {
	m.budgets[identity] = snap
	return nil
}

type testApp struct {
	e     *echo.Echo
	token string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	cfg := &config.Config{
		Port:               "8081",
		RateLimitPerMinute: 6000,
		RateLimitBurst:     100,
		JWTSecret:          "a-very-long-test-secret",
		JWTIssuer:          "bilancio-test",
	}

	store := &memStore{budgets: make(map[string]core.BudgetSnapshot)}
	svc := ledger.New(store, nil)
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, nil)

	token, err := tokenManager.IssueToken("alice", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	return &testApp{
		e:     New(cfg, nil, svc, tokenManager),
		token: token,
	}
}

func (a *testApp) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", "Bearer "+a.token)
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	app.e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decode[HealthResponse](t, rec)
	if resp.Status != "ok" {
		t.Fatalf("status = %q", resp.Status)
	}
}

func TestBudgetRoutesRequireToken(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/budget", nil)
	rec := httptest.NewRecorder()
	app.e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestInitializeBudget(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, http.MethodPost, "/api/v1/budget", `{"income_cents":100000}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	resp := decode[SummaryResponse](t, rec)
	if resp.TotalIncomeCents != 100000 || resp.TotalIncome != "1000.00" {
		t.Fatalf("income = %d / %q", resp.TotalIncomeCents, resp.TotalIncome)
	}
	if resp.NeedsAllocationCents != 50000 || resp.WantsAllocationCents != 30000 || resp.SavingsAllocationCents != 20000 {
		t.Fatalf("allocations = %+v", resp)
	}
	if resp.DailyLimitCents != 3333 {
		t.Fatalf("daily limit = %d", resp.DailyLimitCents)
	}
}

func TestInitializeBudgetDecimalIncome(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, http.MethodPost, "/api/v1/budget", `{"income":"1000,00"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decode[SummaryResponse](t, rec)
	if resp.TotalIncomeCents != 100000 {
		t.Fatalf("income = %d, want 100000", resp.TotalIncomeCents)
	}
}

func TestInitializeBudgetInvalidIncome(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, http.MethodPost, "/api/v1/budget", `{"income_cents":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSummaryWithoutBudget(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, http.MethodGet, "/api/v1/budget", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSubDivisionLifecycle(t *testing.T) {
	app := newTestApp(t)

	if rec := app.do(t, http.MethodPost, "/api/v1/budget", `{"income_cents":100000}`); rec.Code != http.StatusCreated {
		t.Fatalf("init status = %d", rec.Code)
	}

	rec := app.do(t, http.MethodPost, "/api/v1/budget/subdivisions",
		`{"category":"Needs","name":"Groceries","amount_cents":20000}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d, body = %s", rec.Code, rec.Body.String())
	}
	sd := decode[SubDivisionResponse](t, rec)
	if sd.Name != "Groceries" || sd.AllocationCents != 20000 || sd.PercentOfCategory != 40 {
		t.Fatalf("sub-division = %+v", sd)
	}

	rec = app.do(t, http.MethodPost, "/api/v1/budget/subdivisions",
		`{"category":"Needs","name":"Rent","amount":"250.00"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add rent status = %d", rec.Code)
	}

	rec = app.do(t, http.MethodGet, "/api/v1/budget/subdivisions?category=Needs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	list := decode[map[string][]SubDivisionResponse](t, rec)
	subs := list["sub_divisions"]
	if len(subs) != 2 || subs[0].Name != "Groceries" || subs[1].Name != "Rent" {
		t.Fatalf("sub-divisions = %+v", subs)
	}

	// Over-allocating the category is rejected.
	rec = app.do(t, http.MethodPost, "/api/v1/budget/subdivisions",
		`{"category":"Needs","name":"Yacht","amount_cents":99999999}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("overshoot status = %d, want 400", rec.Code)
	}

	// Unknown category.
	rec = app.do(t, http.MethodGet, "/api/v1/budget/subdivisions?category=Luxuries", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown category status = %d, want 400", rec.Code)
	}

	// Missing required field.
	rec = app.do(t, http.MethodPost, "/api/v1/budget/subdivisions", `{"name":"NoCategory","amount_cents":100}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing category status = %d, want 400", rec.Code)
	}
}

func TestSpendEndpoints(t *testing.T) {
	app := newTestApp(t)

	if rec := app.do(t, http.MethodPost, "/api/v1/budget", `{"income_cents":100000}`); rec.Code != http.StatusCreated {
		t.Fatalf("init status = %d", rec.Code)
	}
	if rec := app.do(t, http.MethodPost, "/api/v1/budget/subdivisions",
		`{"category":"Needs","name":"Groceries","amount_cents":20000}`); rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d", rec.Code)
	}

	rec := app.do(t, http.MethodPost, "/api/v1/budget/spend/subdivision",
		`{"category":"Needs","name":"Groceries","amount_cents":500}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("spend status = %d, body = %s", rec.Code, rec.Body.String())
	}
	tx := decode[TransactionResponse](t, rec)
	if tx.ID == "" || tx.Category != "Needs" || tx.SubDivision != "Groceries" || tx.AmountCents != 500 {
		t.Fatalf("transaction = %+v", tx)
	}
	if tx.Amount != "5.00" {
		t.Fatalf("amount = %q, want 5.00", tx.Amount)
	}

	rec = app.do(t, http.MethodPost, "/api/v1/budget/spend/category",
		`{"category":"Wants","amount":"3.50"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("category spend status = %d", rec.Code)
	}
	tx = decode[TransactionResponse](t, rec)
	if tx.AmountCents != 350 || tx.SubDivision != "" {
		t.Fatalf("transaction = %+v", tx)
	}

	rec = app.do(t, http.MethodPost, "/api/v1/budget/spend/general", `{"amount_cents":900}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("general spend status = %d", rec.Code)
	}
	tx = decode[TransactionResponse](t, rec)
	if tx.Category != ledger.GeneralCategory {
		t.Fatalf("category = %q, want %q", tx.Category, ledger.GeneralCategory)
	}

	// Sub-division balance exhausted.
	rec = app.do(t, http.MethodPost, "/api/v1/budget/spend/subdivision",
		`{"category":"Needs","name":"Groceries","amount_cents":1000000}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("overspend status = %d, want 422", rec.Code)
	}

	// Unknown sub-division.
	rec = app.do(t, http.MethodPost, "/api/v1/budget/spend/subdivision",
		`{"category":"Needs","name":"Nothing","amount_cents":100}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown sub-division status = %d, want 404", rec.Code)
	}
}

func TestDailyLimitOverHTTP(t *testing.T) {
	app := newTestApp(t)

	// Income 3000 cents, daily limit 100.
	if rec := app.do(t, http.MethodPost, "/api/v1/budget", `{"income_cents":3000}`); rec.Code != http.StatusCreated {
		t.Fatalf("init status = %d", rec.Code)
	}

	rec := app.do(t, http.MethodPost, "/api/v1/budget/spend/category",
		`{"category":"Needs","amount_cents":60}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first spend status = %d", rec.Code)
	}

	rec = app.do(t, http.MethodPost, "/api/v1/budget/spend/category",
		`{"category":"Needs","amount_cents":60}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("second spend status = %d, want 422", rec.Code)
	}

	// Disable strict mode; the same spend passes.
	rec = app.do(t, http.MethodPut, "/api/v1/budget/strict-mode", `{"enabled":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("strict-mode status = %d", rec.Code)
	}

	rec = app.do(t, http.MethodPost, "/api/v1/budget/spend/category",
		`{"category":"Needs","amount_cents":60}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("unstrict spend status = %d", rec.Code)
	}
}

func TestStrictModeValidation(t *testing.T) {
	app := newTestApp(t)

	if rec := app.do(t, http.MethodPost, "/api/v1/budget", `{"income_cents":1000}`); rec.Code != http.StatusCreated {
		t.Fatalf("init status = %d", rec.Code)
	}

	rec := app.do(t, http.MethodPut, "/api/v1/budget/strict-mode", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
