package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"budgetwise/internal/core"
	"budgetwise/internal/log"

	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base string
		year int
		want string
	}{
		{"Allocations", 2025, "2025 Allocations"},
		{"  Allocations  ", 2024, "2024 Allocations"},
		{"2023 Allocations", 2025, "2023 Allocations"},
		{"1800 Allocations", 2025, "2025 1800 Allocations"},
		{"", 2025, ""},
	}
	for _, tt := range tests {
		if got := yearPrefixedName(tt.base, tt.year); got != tt.want {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.want)
		}
	}
}

func TestNew_CredentialErrors(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr string
	}{
		{
			name:    "missing spreadsheet id",
			opts:    Options{},
			wantErr: "missing spreadsheet id",
		},
		{
			name:    "no credentials",
			opts:    Options{SpreadsheetID: "sheet"},
			wantErr: "missing credentials",
		},
		{
			name:    "invalid service account",
			opts:    Options{SpreadsheetID: "sheet", ServiceAccountJSON: "not-json"},
			wantErr: "service account config",
		},
		{
			name:    "missing service account file",
			opts:    Options{SpreadsheetID: "sheet", ServiceAccountFile: filepath.Join(t.TempDir(), "missing.json")},
			wantErr: "read service account",
		},
		{
			name:    "invalid oauth client",
			opts:    Options{SpreadsheetID: "sheet", OAuthClientJSON: "invalid-json", OAuthTokenJSON: `{"access_token":"test"}`},
			wantErr: "oauth config",
		},
		{
			name:    "missing oauth token",
			opts:    Options{SpreadsheetID: "sheet", OAuthClientJSON: oauthClientJSON},
			wantErr: "missing oauth token",
		},
		{
			name:    "invalid oauth token",
			opts:    Options{SpreadsheetID: "sheet", OAuthClientJSON: oauthClientJSON, OAuthTokenJSON: "{"},
			wantErr: "parse oauth token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), tt.opts, log.Discard())
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestNew_OAuthCredentials(t *testing.T) {
	opts := Options{
		SpreadsheetID:   "sheet",
		OAuthClientJSON: oauthClientJSON,
		OAuthTokenJSON:  `{"access_token":"test","token_type":"Bearer"}`,
	}
	e, err := New(context.Background(), opts, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.sheetBase != "Allocations" {
		t.Errorf("default sheet base = %q", e.sheetBase)
	}
}

const oauthClientJSON = `{"installed":{"client_id":"id.apps.googleusercontent.com","client_secret":"secret","auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token","redirect_uris":["http://localhost"]}}`

func TestExportRun_AppendsRows(t *testing.T) {
	var gotPath string
	var gotBody gsheet.ValueRange
	var gotInput string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotInput = r.URL.Query().Get("valueInputOption")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"spreadsheetId":"sheet-1","updates":{"updatedRange":"'2025 Allocations'!A2:K4","updatedRows":3}}`))
	}))
	defer srv.Close()

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	e := newExporter(svc, Options{SpreadsheetID: "sheet-1", SheetName: "Allocations"}, log.Discard())

	d := decimal.RequireFromString
	run := core.AllocationRun{
		ID:     "run-1",
		UserID: "u1",
		Window: core.MonthWindow{Year: 2025, Month: 6},
		Status: core.RunApplied,
		Result: core.AllocationResult{
			SavingsFund: d("120"),
			UpdatedGoals: []core.SavingsGoal{
				{ID: "g1", Name: "House", Category: core.LongTerm, TargetAmount: d("300"), AllocatedAmount: d("84")},
				{ID: "g2", Name: "Trip", Category: core.ShortTerm, TargetAmount: d("100"), AllocatedAmount: d("36")},
			},
		},
	}

	ref, err := e.ExportRun(context.Background(), run)
	if err != nil {
		t.Fatalf("ExportRun: %v", err)
	}
	if ref != "'2025 Allocations'!A2:K4" {
		t.Errorf("ref = %q", ref)
	}
	if !strings.Contains(gotPath, "/spreadsheets/sheet-1/values/") || !strings.HasSuffix(gotPath, ":append") {
		t.Errorf("unexpected path %q", gotPath)
	}
	if !strings.Contains(gotPath, "2025 Allocations") {
		t.Errorf("sheet name not year prefixed in %q", gotPath)
	}
	if gotInput != "USER_ENTERED" {
		t.Errorf("valueInputOption = %q", gotInput)
	}
	if len(gotBody.Values) != 3 {
		t.Fatalf("appended %d rows, want 3", len(gotBody.Values))
	}
	if gotBody.Values[0][3] != "summary" || gotBody.Values[1][4] != "House" {
		t.Errorf("unexpected rows %v", gotBody.Values)
	}
}

func TestExportRun_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"forbidden"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	e := newExporter(svc, Options{SpreadsheetID: "sheet-1"}, log.Discard())

	_, err = e.ExportRun(context.Background(), core.AllocationRun{ID: "run-1", Window: core.MonthWindow{Year: 2025, Month: 1}})
	if err == nil || !strings.Contains(err.Error(), "append run run-1") {
		t.Fatalf("expected wrapped append error, got %v", err)
	}
}

func TestExportRun_NoService(t *testing.T) {
	e := &Exporter{}
	if _, err := e.ExportRun(context.Background(), core.AllocationRun{}); err == nil {
		t.Fatal("expected error without service")
	}
}
