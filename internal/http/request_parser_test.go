package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"budgetwise/internal/allocation"
)

type sampleRequest struct {
	UserID string   `json:"userId" validate:"required"`
	Month  int      `json:"month" validate:"required,gte=1,lte=12"`
	Amount *Amount  `json:"amount" validate:"required"`
	Pct    *Percent `json:"pct"`
}

func decodeSample(t *testing.T, body string) (sampleRequest, error) {
	t.Helper()
	var dst sampleRequest
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	err := NewRequestParser().DecodeJSON(httptest.NewRecorder(), req, &dst)
	return dst, err
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"valid", `{"userId":"u1","month":3,"amount":12.5,"pct":70}`, ""},
		{"amount as string with comma", `{"userId":"u1","month":3,"amount":"12,345"}`, ""},
		{"empty body", ``, "request body is empty"},
		{"malformed", `{"userId":`, "invalid request body"},
		{"unknown field", `{"userId":"u1","month":3,"amount":1,"extra":true}`, "unknown field"},
		{"trailing data", `{"userId":"u1","month":3,"amount":1}{}`, "single JSON object"},
		{"missing user", `{"month":3,"amount":1}`, "userId is required"},
		{"month out of range", `{"userId":"u1","month":13,"amount":1}`, "month must be at most 12"},
		{"missing amount", `{"userId":"u1","month":3}`, "amount is required"},
		{"negative amount", `{"userId":"u1","month":3,"amount":-5}`, "invalid amount"},
		{"non numeric percent", `{"userId":"u1","month":3,"amount":1,"pct":"abc"}`, "percentage"},
		{"percent above 100", `{"userId":"u1","month":3,"amount":1,"pct":150}`, "percentage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeSample(t, tt.body)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if allocation.KindOf(err) != allocation.InvalidArgument {
				t.Errorf("kind = %q, want InvalidArgument", allocation.KindOf(err))
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDecodeJSON_Values(t *testing.T) {
	got, err := decodeSample(t, `{"userId":"u1","month":3,"amount":"12,345","pct":"33.5"}`)
	if err != nil {
		t.Fatal(err)
	}
	if got.Amount.Decimal().String() != "12.35" {
		t.Errorf("amount = %s, want 12.35", got.Amount.Decimal())
	}
	if p := got.Pct.Ptr(); p == nil || p.String() != "33.5" {
		t.Errorf("pct = %v", p)
	}

	var nilPct *Percent
	if nilPct.Ptr() != nil {
		t.Error("nil percent should give nil pointer")
	}
}

func TestParseMonthParams(t *testing.T) {
	tests := []struct {
		query   string
		want    MonthParams
		wantErr bool
	}{
		{"year=2024&month=6", MonthParams{Year: 2024, Month: 6}, false},
		{"month=6", MonthParams{}, true},
		{"year=2024&month=abc", MonthParams{}, true},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
		got, err := ParseMonthParams(req)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tt.query, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: got %+v, want %+v", tt.query, got, tt.want)
		}
	}
}

func TestParseDateRange(t *testing.T) {
	day := func(y, m, d int) time.Time { return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		name     string
		query    string
		wantFrom time.Time
		wantTo   time.Time
		wantZero bool
		wantErr  bool
	}{
		{name: "no filters", query: "", wantZero: true},
		{name: "both", query: "start=2025-03-01&end=2025-03-31", wantFrom: day(2025, 3, 1), wantTo: day(2025, 3, 31)},
		{name: "start only", query: "start=2025-03-01", wantFrom: day(2025, 3, 1), wantTo: farFuture},
		{name: "end only", query: "end=2025-03-31", wantFrom: farPast, wantTo: day(2025, 3, 31)},
		{name: "rfc3339", query: "start=2025-03-01T23:00:00Z", wantFrom: day(2025, 3, 1), wantTo: farFuture},
		{name: "bad start", query: "start=yesterday", wantErr: true},
		{name: "bad end", query: "end=31/03/2025", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			got, err := ParseDateRange(req)
			if tt.wantErr {
				if allocation.KindOf(err) != allocation.InvalidArgument {
					t.Fatalf("expected InvalidArgument, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if tt.wantZero {
				if !got.IsZero() {
					t.Errorf("expected zero range, got %+v", got)
				}
				return
			}
			if !got.From.Equal(tt.wantFrom) || !got.To.Equal(tt.wantTo) {
				t.Errorf("range = %v..%v, want %v..%v", got.From, got.To, tt.wantFrom, tt.wantTo)
			}
		})
	}
}

func TestQueryLimit(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{"", 20, false},
		{"limit=5", 5, false},
		{"limit=500", 100, false},
		{"limit=0", 0, true},
		{"limit=x", 0, true},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
		got, err := QueryLimit(req, 20, 100)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("%q: got (%d, %v), want %d wantErr=%v", tt.query, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  Salary  ", "Salary"},
		{"rent\x00\x07", "rent"},
		{"line\nbreak", "line\nbreak"},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.input); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
