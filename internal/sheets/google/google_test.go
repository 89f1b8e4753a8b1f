package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	ports "bookkeeper/internal/sheets"
)

// fakeSheets is a tiny stand-in for the Sheets REST API holding one grid.
type fakeSheets struct {
	mu   sync.Mutex
	grid [][]any
}

var rowSpan = regexp.MustCompile(`!A(\d+):I\d+$`)

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case strings.HasSuffix(path, ":batchUpdate"):
		var req gsheet.BatchUpdateSpreadsheetRequest
		json.NewDecoder(r.Body).Decode(&req)
		for _, q := range req.Requests {
			if d := q.DeleteDimension; d != nil {
				f.grid = append(f.grid[:d.Range.StartIndex], f.grid[d.Range.EndIndex:]...)
			}
		}
		json.NewEncoder(w).Encode(map[string]any{})
	case strings.HasSuffix(path, ":append"):
		var vr gsheet.ValueRange
		json.NewDecoder(r.Body).Decode(&vr)
		f.grid = append(f.grid, vr.Values...)
		json.NewEncoder(w).Encode(map[string]any{})
	case strings.HasSuffix(path, ":clear"):
		f.grid = nil
		json.NewEncoder(w).Encode(map[string]any{})
	case strings.Contains(path, "/values/") && r.Method == http.MethodPut:
		var vr gsheet.ValueRange
		json.NewDecoder(r.Body).Decode(&vr)
		m := rowSpan.FindStringSubmatch(path)
		start, _ := strconv.Atoi(m[1])
		for i, row := range vr.Values {
			idx := start - 1 + i
			for len(f.grid) <= idx {
				f.grid = append(f.grid, []any{})
			}
			f.grid[idx] = row
		}
		json.NewEncoder(w).Encode(map[string]any{})
	case strings.Contains(path, "/values/"):
		values := make([][]any, 0, len(f.grid))
		if m := rowSpan.FindStringSubmatch(path); m != nil {
			n, _ := strconv.Atoi(m[1])
			if n <= len(f.grid) {
				values = append(values, f.grid[n-1])
			}
		} else {
			for _, row := range f.grid {
				if len(row) == 0 {
					values = append(values, []any{})
					continue
				}
				values = append(values, row[:1])
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"values": values})
	default:
		json.NewEncoder(w).Encode(map[string]any{
			"sheets": []any{map[string]any{"properties": map[string]any{"sheetId": 7, "title": "Ledger"}}},
		})
	}
}

func (f *fakeSheets) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.grid))
	for _, row := range f.grid {
		if len(row) > 0 {
			out = append(out, row[0].(string))
		}
	}
	return out
}

func newTestClient(t *testing.T) (*Client, *fakeSheets) {
	t.Helper()
	fake := &fakeSheets{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return NewWithService(svc, "sheet-id", "Ledger", nil), fake
}

func row(id int64, amount string) ports.Row {
	return ports.Row{TransactionID: id, Date: "2024-03-01", TransactionNo: "TXN-" + strconv.FormatInt(id, 10), Type: "CREDIT", Amount: amount}
}

func TestClientUpsertAppendsThenUpdates(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		if err := c.Upsert(ctx, row(id, "10.00")); err != nil {
			t.Fatalf("Upsert(%d): %v", id, err)
		}
	}
	if err := c.Upsert(ctx, row(2, "99.00")); err != nil {
		t.Fatalf("Upsert update: %v", err)
	}

	if got := strings.Join(fake.ids(), ","); got != "ID,1,2,3" {
		t.Fatalf("ids = %s", got)
	}
	if amount := fake.grid[2][4]; amount != "99.00" {
		t.Fatalf("row 2 amount = %v, want 99.00", amount)
	}
}

func TestClientDelete(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		if err := c.Upsert(ctx, row(id, "1.00")); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	if err := c.Delete(ctx, 2); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := c.Delete(ctx, 42); err != nil {
		t.Fatalf("deleting a missing row should be a no-op: %v", err)
	}
	if got := strings.Join(fake.ids(), ","); got != "ID,1,3" {
		t.Fatalf("ids = %s", got)
	}
}

func TestClientReplaceAll(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	if err := c.Upsert(ctx, row(9, "1.00")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := c.ReplaceAll(ctx, []ports.Row{row(4, "1.00"), row(5, "2.00")}); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}
	if got := strings.Join(fake.ids(), ","); got != "ID,4,5" {
		t.Fatalf("ids = %s", got)
	}
}

func TestClientWithoutService(t *testing.T) {
	c := &Client{spreadsheetID: "x", sheetName: "Ledger"}
	if err := c.Upsert(context.Background(), row(1, "1.00")); err == nil {
		t.Fatal("expected error without a service")
	}
	if _, err := New(context.Background(), Options{}, nil); err == nil {
		t.Fatal("expected error without a spreadsheet id")
	}
}
