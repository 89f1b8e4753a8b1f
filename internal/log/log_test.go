package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Component: ComponentStorage, Format: FormatJSON, Output: &buf})
	l.Debug("migrated", "version", 2)

	out := buf.String()
	if !strings.HasPrefix(out, "{") || !strings.Contains(out, `"component":"storage"`) || !strings.Contains(out, `"version":2`) {
		t.Fatalf("unexpected json output: %s", out)
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if l := FromContext(context.Background()); l == nil || l.Component() != "unknown" {
		t.Fatalf("expected fallback logger, got %+v", l)
	}
}

func TestTaggedRetagsRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Component: ComponentHTTP, Handler: slog.NewTextHandler(&buf, nil)}).With(FieldRequestID, "req_1")

	h := Tagged(ComponentDashboard, func(w http.ResponseWriter, r *http.Request) {
		l := FromContext(r.Context())
		if l.Component() != ComponentDashboard {
			t.Errorf("component = %q", l.Component())
		}
		l.Info("hello")
	})

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	h.ServeHTTP(httptest.NewRecorder(), req.WithContext(NewContext(req.Context(), base)))
	out := buf.String()
	if !strings.Contains(out, "request_id=req_1") || !strings.Contains(out, "component=dashboard") {
		t.Fatalf("expected request id and component in output:\n%s", out)
	}
}

func TestStructuredLoggerTransactionAndError(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Component: ComponentLedger, Handler: slog.NewTextHandler(&buf, nil)}))

	sl.LogTransactionChange(context.Background(), OpCreate, 7, "TXN-0007", "CREDIT", "12.50", 2, 3)
	sl.LogError(context.Background(), "store failed", errors.New("disk full"), ComponentStorage, OpCreate, nil)

	out := buf.String()
	for _, want := range []string{"Transaction created", "transaction_no=TXN-0007", "amount=12.50", "error=\"disk full\"", "operation=create"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in output:\n%s", want, out)
		}
	}
}
