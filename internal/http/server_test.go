package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bookkeeper/internal/auth"
	"bookkeeper/internal/services"
	"bookkeeper/internal/storage"
)

var testNow = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

type testServer struct {
	t   *testing.T
	srv *Server
}

func newTestServer(t *testing.T, authn *auth.Authenticator, rateLimit int) *testServer {
	t.Helper()
	svc := services.NewLedgerService(storage.NewMemoryStore(), nil, nil, services.Options{
		Location: time.UTC,
		Now:      func() time.Time { return testNow },
	})
	srv := NewServer(":0", svc, authn, Options{RateLimitPerMinute: rateLimit})
	t.Cleanup(func() { srv.limiter.Stop() })
	return &testServer{t: t, srv: srv}
}

func (ts *testServer) do(method, path, body, token string) *httptest.ResponseRecorder {
	ts.t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rec, r)
	return rec
}

func (ts *testServer) mustCreate(path, body string) int64 {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, path, body, "")
	if rec.Code != http.StatusCreated {
		ts.t.Fatalf("POST %s = %d: %s", path, rec.Code, rec.Body.String())
	}
	var out struct {
		ID int64 `json:"id"`
	}
	decode(ts.t, rec, &out)
	return out.ID
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

// seedLedger creates one location, one account and two transactions today.
func (ts *testServer) seedLedger() (locationID, accountID int64) {
	locationID = ts.mustCreate("/locations", `{"name":"Main Office","address":"123 Business St"}`)
	accountID = ts.mustCreate("/accounts", `{"name":"Acme","phoneNumber":"+1-555-0101"}`)
	for i, tx := range []struct{ amount, typ string }{{"120.50", "CREDIT"}, {"20.25", "DEBIT"}} {
		ts.mustCreate("/transactions", fmt.Sprintf(
			`{"transactionNo":"TX-%d","date":"2024-03-15","amount":%s,"type":%q,"description":"Invoice, March","accountId":%d,"locationId":%d}`,
			i, tx.amount, tx.typ, accountID, locationID))
	}
	return locationID, accountID
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t, nil, 60)

	rec := ts.do(http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("trace middleware should set a request id")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}

	rec = ts.do(http.MethodGet, "/readyz", "", "")
	var ready struct {
		Status string `json:"status"`
	}
	decode(t, rec, &ready)
	if rec.Code != http.StatusOK || ready.Status != "ready" {
		t.Fatalf("readyz = %d %s", rec.Code, rec.Body.String())
	}
}

func TestAccountLifecycle(t *testing.T) {
	ts := newTestServer(t, nil, 1000)
	locationID, accountID := ts.seedLedger()

	rec := ts.do(http.MethodGet, "/accounts", "", "")
	var list []struct {
		Name             string `json:"name"`
		TransactionCount int64  `json:"transactionCount"`
	}
	decode(t, rec, &list)
	if len(list) != 1 || list[0].TransactionCount != 2 {
		t.Fatalf("unexpected list %s", rec.Body.String())
	}

	rec = ts.do(http.MethodGet, fmt.Sprintf("/accounts/%d", accountID), "", "")
	var detail struct {
		Name         string `json:"name"`
		Transactions []struct {
			Location *struct {
				Name string `json:"name"`
			} `json:"location"`
		} `json:"transactions"`
		Totals struct {
			Net string `json:"net"`
		} `json:"totals"`
	}
	decode(t, rec, &detail)
	if detail.Name != "Acme" || len(detail.Transactions) != 2 || detail.Totals.Net != "100.25" {
		t.Fatalf("unexpected detail %s", rec.Body.String())
	}
	if detail.Transactions[0].Location == nil || detail.Transactions[0].Location.Name != "Main Office" {
		t.Error("transactions should include their location")
	}

	rec = ts.do(http.MethodDelete, fmt.Sprintf("/accounts/%d", accountID), "", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("deleting a referenced account = %d, want 409", rec.Code)
	}
	rec = ts.do(http.MethodDelete, fmt.Sprintf("/locations/%d", locationID), "", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("deleting a referenced location = %d, want 409", rec.Code)
	}

	rec = ts.do(http.MethodPut, fmt.Sprintf("/accounts/%d", accountID), `{"name":"Acme Corp","phoneNumber":"+1-555-0199"}`, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Acme Corp") {
		t.Fatalf("update = %d %s", rec.Code, rec.Body.String())
	}

	if rec := ts.do(http.MethodGet, "/accounts/999", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing account = %d, want 404", rec.Code)
	}
	if rec := ts.do(http.MethodGet, "/accounts/abc", "", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed id = %d, want 400", rec.Code)
	}
}

func TestValidationErrors(t *testing.T) {
	ts := newTestServer(t, nil, 1000)

	rec := ts.do(http.MethodPost, "/transactions", `{"transactionNo":"","amount":-5,"type":"REFUND"}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var body errorResponse
	decode(t, rec, &body)
	if body.Error == "" || len(body.Details) < 4 {
		t.Fatalf("expected every violated field, got %s", rec.Body.String())
	}

	rec = ts.do(http.MethodPost, "/locations", `not json`, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body = %d, want 400", rec.Code)
	}
}

func TestTransactionsListAndDelete(t *testing.T) {
	ts := newTestServer(t, nil, 1000)
	locationID, _ := ts.seedLedger()

	rec := ts.do(http.MethodGet, fmt.Sprintf("/transactions?locationId=%d&limit=1&page=2", locationID), "", "")
	var page struct {
		Transactions []struct {
			ID            int64  `json:"id"`
			TransactionNo string `json:"transactionNo"`
		} `json:"transactions"`
		Pagination struct {
			Page  int   `json:"page"`
			Limit int   `json:"limit"`
			Total int64 `json:"total"`
			Pages int64 `json:"pages"`
		} `json:"pagination"`
	}
	decode(t, rec, &page)
	if len(page.Transactions) != 1 || page.Pagination.Total != 2 || page.Pagination.Pages != 2 || page.Pagination.Page != 2 {
		t.Fatalf("unexpected page %s", rec.Body.String())
	}

	if rec := ts.do(http.MethodGet, "/transactions?minAmount=abc", "", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed minAmount = %d, want 400", rec.Code)
	}
	if rec := ts.do(http.MethodGet, "/transactions?page=9223372036854775807&limit=100", "", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("out of range page = %d, want 400", rec.Code)
	}

	rec = ts.do(http.MethodGet, "/transactions?search=tx-", "", "")
	decode(t, rec, &page)
	if page.Pagination.Total != 2 {
		t.Errorf("search should match transaction numbers, got %d", page.Pagination.Total)
	}

	id := page.Transactions[0].ID
	rec = ts.do(http.MethodDelete, fmt.Sprintf("/transactions/%d", id), "", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"success":true}` {
		t.Fatalf("delete = %d %s", rec.Code, rec.Body.String())
	}
	if rec := ts.do(http.MethodGet, fmt.Sprintf("/transactions/%d", id), "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("deleted transaction = %d, want 404", rec.Code)
	}
}

func TestDashboardEndpoint(t *testing.T) {
	ts := newTestServer(t, nil, 1000)
	locationID, _ := ts.seedLedger()

	for _, q := range []string{"", "?locationId=all", fmt.Sprintf("?locationId=%d", locationID)} {
		rec := ts.do(http.MethodGet, "/dashboard"+q, "", "")
		var d struct {
			Metrics struct {
				TotalCredits     string `json:"totalCredits"`
				TotalDebits      string `json:"totalDebits"`
				NetBalance       string `json:"netBalance"`
				TransactionCount int64  `json:"transactionCount"`
			} `json:"metrics"`
			ChartData   []json.RawMessage `json:"chartData"`
			AccountData []json.RawMessage `json:"accountData"`
		}
		decode(t, rec, &d)
		m := d.Metrics
		if m.TotalCredits != "120.50" || m.TotalDebits != "20.25" || m.NetBalance != "100.25" || m.TransactionCount != 2 {
			t.Errorf("%q: unexpected metrics %+v", q, m)
		}
		if len(d.ChartData) != 1 || len(d.AccountData) != 1 {
			t.Errorf("%q: unexpected breakdown %s", q, rec.Body.String())
		}
	}

	if rec := ts.do(http.MethodGet, "/dashboard?locationId=main", "", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed locationId = %d, want 400", rec.Code)
	}
}

func TestReportsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil, 1000)
	ts.seedLedger()

	rec := ts.do(http.MethodGet, "/reports?startDate=2024-03-01&endDate=2024-03-31", "", "")
	var report struct {
		Transactions   []json.RawMessage `json:"transactions"`
		DailySummary   []json.RawMessage `json:"dailySummary"`
		AccountSummary []json.RawMessage `json:"accountSummary"`
		Totals         struct {
			Count int64 `json:"count"`
		} `json:"totals"`
	}
	decode(t, rec, &report)
	if len(report.Transactions) != 2 || len(report.DailySummary) != 1 || len(report.AccountSummary) != 1 || report.Totals.Count != 2 {
		t.Fatalf("unexpected report %s", rec.Body.String())
	}

	rec = ts.do(http.MethodGet, "/reports?startDate=2024-03-31&endDate=2024-03-01", "", "")
	decode(t, rec, &report)
	if rec.Code != http.StatusOK || len(report.Transactions) != 0 {
		t.Errorf("inverted range should be empty, got %s", rec.Body.String())
	}

	rec = ts.do(http.MethodGet, "/reports?format=csv", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("csv = %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="transactions-report.csv"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 3 || lines[0] != "Date,Transaction No,Type,Amount,Account,Location,Description" {
		t.Fatalf("unexpected csv:\n%s", rec.Body.String())
	}
	if !strings.HasSuffix(lines[1], `"Invoice, March"`) {
		t.Errorf("description should be quoted: %s", lines[1])
	}

	if rec := ts.do(http.MethodGet, "/reports?format=xml", "", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown format = %d, want 400", rec.Code)
	}
}

func TestLocationSummaryEndpoint(t *testing.T) {
	ts := newTestServer(t, nil, 1000)
	locationID, _ := ts.seedLedger()

	rec := ts.do(http.MethodGet, fmt.Sprintf("/locations/%d/summary?startDate=2024-03-15", locationID), "", "")
	var sum struct {
		Totals struct {
			Credits string `json:"credits"`
			Count   int64  `json:"count"`
		} `json:"totals"`
		Daily    []json.RawMessage `json:"daily"`
		Accounts []json.RawMessage `json:"accounts"`
	}
	decode(t, rec, &sum)
	if sum.Totals.Credits != "120.50" || sum.Totals.Count != 2 || len(sum.Daily) != 1 || len(sum.Accounts) != 1 {
		t.Fatalf("unexpected summary %s", rec.Body.String())
	}
}

func TestRateLimitOnWrites(t *testing.T) {
	ts := newTestServer(t, nil, 1)

	ts.mustCreate("/locations", `{"name":"Main Office"}`)
	rec := ts.do(http.MethodPost, "/locations", `{"name":"Branch"}`, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second write = %d, want 429", rec.Code)
	}
	var body errorResponse
	decode(t, rec, &body)
	if body.Error == "" {
		t.Error("429 should carry a JSON error")
	}
	if rec := ts.do(http.MethodGet, "/locations", "", ""); rec.Code != http.StatusOK {
		t.Errorf("reads are not limited, got %d", rec.Code)
	}
}

func TestAuthentication(t *testing.T) {
	hash, err := auth.HashPassword("s3cret-pass")
	if err != nil {
		t.Fatal(err)
	}
	authn := auth.New(auth.Config{
		Username:     "admin",
		PasswordHash: hash,
		Secret:       strings.Repeat("k", 32),
		TokenTTL:     time.Hour,
	})
	ts := newTestServer(t, authn, 1000)

	if rec := ts.do(http.MethodGet, "/transactions", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token = %d, want 401", rec.Code)
	}
	if rec := ts.do(http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("health must stay public, got %d", rec.Code)
	}
	if rec := ts.do(http.MethodPost, "/auth/login", `{"username":"admin","password":"wrong"}`, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password = %d, want 401", rec.Code)
	}

	rec := ts.do(http.MethodPost, "/auth/login", `{"username":"admin","password":"s3cret-pass"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d %s", rec.Code, rec.Body.String())
	}
	var token auth.Token
	decode(t, rec, &token)

	if rec := ts.do(http.MethodGet, "/transactions", "", token.AccessToken); rec.Code != http.StatusOK {
		t.Fatalf("authorized request = %d %s", rec.Code, rec.Body.String())
	}
	if rec := ts.do(http.MethodGet, "/transactions", "", token.AccessToken+"x"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("tampered token = %d, want 401", rec.Code)
	}
}

func TestLoginWithoutAuth(t *testing.T) {
	ts := newTestServer(t, nil, 1000)
	if rec := ts.do(http.MethodPost, "/auth/login", `{"username":"a","password":"b"}`, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("login with auth disabled = %d, want 404", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil, 1000)
	ts.seedLedger()
	ts.do(http.MethodGet, "/reports?format=csv", "", "")

	rec := ts.do(http.MethodGet, "/metrics", "", "")
	body := rec.Body.String()
	for _, want := range []string{"transactions_created_total 2", "report_csv_exports_total 1", `http_responses_total{code="201"} 4`} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q:\n%s", want, body)
		}
	}
}
