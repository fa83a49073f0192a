package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

var (
	// ErrInvalidSheetURL means no spreadsheet id could be found in the URL.
	ErrInvalidSheetURL = errors.New("invalid Google Sheet URL")
	// ErrSheetTabNotFound means the tab does not exist or is not public.
	ErrSheetTabNotFound = errors.New("sheet tab not found or not public")
	// ErrSheetUnavailable covers any other failed export request.
	ErrSheetUnavailable = errors.New("google sheet unavailable")
)

// DefaultSheetsBase is the origin of the CSV export endpoint.
const DefaultSheetsBase = "https://docs.google.com"

// Sheet tabs used by the single-variation preview flow.
const (
	TabParent       = "parent"
	TabCreativeData = "creative_data"
	TabOMS          = "OMS"
)

var sheetID = regexp.MustCompile(`/d/([a-zA-Z0-9_-]+)`)

// maxErrorBody bounds how much of a failed response is inspected.
const maxErrorBody = 64 << 10

// SheetCSVURL returns the CSV export URL of tab in the spreadsheet at
// sheetURL. The sheet must be shared publicly.
func SheetCSVURL(sheetURL, tab string) (string, error) {
	return sheetCSVURL(DefaultSheetsBase, sheetURL, tab)
}

func sheetCSVURL(base, sheetURL, tab string) (string, error) {
	m := sheetID.FindStringSubmatch(sheetURL)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidSheetURL, sheetURL)
	}
	sheet := strings.ReplaceAll(url.QueryEscape(tab), "+", "%20")
	return fmt.Sprintf("%s/spreadsheets/d/%s/gviz/tq?tqx=out:csv&sheet=%s", strings.TrimSuffix(base, "/"), m[1], sheet), nil
}

// SheetFetcher downloads Google Sheet tabs as CSV.
type SheetFetcher struct {
	Client *http.Client
	// BaseURL overrides DefaultSheetsBase.
	BaseURL string
}

// NewSheetFetcher returns a fetcher with a bounded request timeout.
func NewSheetFetcher() *SheetFetcher {
	return &SheetFetcher{Client: &http.Client{Timeout: 30 * time.Second}}
}

// FetchCSV returns the raw CSV export of tab.
func (f *SheetFetcher) FetchCSV(ctx context.Context, sheetURL, tab string) ([]byte, error) {
	base := f.BaseURL
	if base == "" {
		base = DefaultSheetsBase
	}
	u, err := sheetCSVURL(base, sheetURL, tab)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build sheet request: %w", err)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSheetUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		// Google answers a missing tab with an HTML error page that
		// references the tab's gid or an oversized request URI.
		if bytes.Contains(body, []byte("gid=")) || bytes.Contains(body, []byte("Request-URI Too Large")) {
			return nil, fmt.Errorf("%w: %q", ErrSheetTabNotFound, tab)
		}
		return nil, fmt.Errorf("%w: status %d", ErrSheetUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", tab, err)
	}
	return data, nil
}

// Fetch downloads tab and parses it as a table.
func (f *SheetFetcher) Fetch(ctx context.Context, sheetURL, tab string) (*Table, error) {
	data, err := f.FetchCSV(ctx, sheetURL, tab)
	if err != nil {
		return nil, err
	}
	t, err := ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse sheet %q: %w", tab, err)
	}
	return t, nil
}
