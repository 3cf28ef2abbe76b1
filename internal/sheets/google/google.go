// Package google exports allocation runs to a Google Sheets spreadsheet.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"budgetwise/internal/core"
	"budgetwise/internal/log"
	"budgetwise/internal/sheets"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Options configure the exporter. Service account credentials take
// precedence over an OAuth client and token. Each credential may be
// given inline or as a file path.
type Options struct {
	SpreadsheetID string
	// SheetName is the base name; the run's year is prefixed ("2025 Allocations").
	SheetName string

	ServiceAccountJSON string
	ServiceAccountFile string

	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenJSON  string
	OAuthTokenFile  string
}

type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	logger        *log.Logger
}

var _ sheets.RunExporter = (*Exporter)(nil)

// New authenticates and returns an exporter for the configured spreadsheet.
func New(ctx context.Context, opts Options, logger *log.Logger) (*Exporter, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSheets)

	client, err := newHTTPClient(ctx, opts, logger)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx, goption.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return newExporter(svc, opts, logger), nil
}

func newExporter(svc *gsheet.Service, opts Options, logger *log.Logger) *Exporter {
	base := strings.TrimSpace(opts.SheetName)
	if base == "" {
		base = "Allocations"
	}
	return &Exporter{
		svc:           svc,
		spreadsheetID: opts.SpreadsheetID,
		sheetBase:     base,
		logger:        logger,
	}
}

// newHTTPClient builds an authenticated client on top of a pooled transport.
func newHTTPClient(ctx context.Context, opts Options, logger *log.Logger) (*http.Client, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())

	saJSON, err := inlineOrFile(opts.ServiceAccountJSON, opts.ServiceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("read service account: %w", err)
	}
	if len(saJSON) > 0 {
		logger.InfoContext(ctx, "Using service account credentials", "credentials_size", len(saJSON))
		cfg, err := goauth.JWTConfigFromJSON(saJSON, gsheet.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("service account config: %w", err)
		}
		return oauth2.NewClient(ctx, cfg.TokenSource(ctx)), nil
	}

	ts, err := oauthTokenSource(ctx, opts)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Using OAuth client credentials")
	return oauth2.NewClient(ctx, ts), nil
}

func oauthTokenSource(ctx context.Context, opts Options) (oauth2.TokenSource, error) {
	clientJSON, err := inlineOrFile(opts.OAuthClientJSON, opts.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	if len(clientJSON) == 0 {
		return nil, errors.New("missing credentials (set a service account or an OAuth client and token)")
	}
	cfg, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}

	tokenJSON, err := inlineOrFile(opts.OAuthTokenJSON, opts.OAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	if len(tokenJSON) == 0 {
		return nil, errors.New("missing oauth token (run oauth-init first)")
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}
	return cfg.TokenSource(ctx, &tok), nil
}

func inlineOrFile(inline, path string) ([]byte, error) {
	if s := strings.TrimSpace(inline); s != "" {
		return []byte(s), nil
	}
	if path = strings.TrimSpace(path); path != "" {
		return os.ReadFile(path)
	}
	return nil, nil
}

// newHTTPClientWithPooling creates an HTTP client for the Sheets API with
// connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// ExportRun appends the run's summary and goal rows to the sheet of the
// run's year and returns the updated range.
func (e *Exporter) ExportRun(ctx context.Context, run core.AllocationRun) (string, error) {
	if e.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	sheet := yearPrefixedName(e.sheetBase, run.Window.Year)
	rng := fmt.Sprintf("%s!A:K", sheet)

	rows := sheets.RunRows(run)
	values := make([][]any, len(rows))
	for i, row := range rows {
		cells := make([]any, len(row))
		for j, c := range row {
			cells[j] = c
		}
		values[i] = cells
	}

	resp, err := e.svc.Spreadsheets.Values.Append(e.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append run %s to sheet %s: %w", run.ID, sheet, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	e.logger.DebugContext(ctx, "Appended allocation rows",
		log.FieldRunID, run.ID, log.FieldSheetsRef, ref, "rows", len(values))
	return ref, nil
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
