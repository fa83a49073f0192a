package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/rafaguilar/DynBanner-RenderGrid/api"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/bundle"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/ingest"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/mapping"
)

// loadRows reads a data file, choosing the reader by extension. A path that
// looks like a Google Sheet URL is fetched; sheet then names the tab.
func loadRows(ctx context.Context, path, selector, sheet string) (*ingest.Table, error) {
	if strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		if sheet == "" {
			sheet = ingest.TabParent
		}
		return ingest.NewSheetFetcher().Fetch(ctx, path, sheet)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return ingest.ReadJSON(data, selector)
	case ".db", ".sqlite", ".sqlite3":
		return ingest.LoadSQLite(path)
	case ".xlsx":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ingest.ReadXLSX(f, sheet)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return ingest.ReadCSV(bytes.NewReader(data))
	}
}

// loadMapping accepts a JSON object inline or the path of a file holding
// one.
func loadMapping(arg string) (api.ColumnMapping, error) {
	data := []byte(arg)
	if !strings.HasPrefix(strings.TrimSpace(arg), "{") {
		var err error
		if data, err = os.ReadFile(arg); err != nil {
			return nil, err
		}
	}
	var m api.ColumnMapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse mapping: %w", err)
	}
	return m, nil
}

// readSource returns the Dynamic.js text of a .js file, a template zip or a
// template directory.
func readSource(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".js" || ext == ".mjs" || ext == ".cjs" {
		data, err := os.ReadFile(path)
		return string(data), err
	}
	b, err := bundle.Open(path)
	if err != nil {
		return "", err
	}
	if !b.HasDynamicJS() {
		return "", fmt.Errorf("%s: template has no Dynamic.js", path)
	}
	return b.Source(), nil
}

func parseTier(s, src string) (api.Tier, error) {
	if s != "" {
		return api.ParseTier(s)
	}
	return bundle.DetectTier(src), nil
}

// newSuggester returns the Gemini suggester backed by the heuristic one when
// an API key is configured, else the heuristic alone.
func newSuggester(ctx context.Context, useGemini bool) mapping.Suggester {
	if !useGemini {
		return mapping.Heuristic{}
	}
	model, err := mapping.NewGenAIModel(ctx, cfg.APIKey(), cfg.Gemini.Model)
	if err != nil {
		logger.Warn("gemini unavailable, using heuristic mapping", zap.Error(err))
		return mapping.Heuristic{}
	}
	return mapping.Fallback{
		Primary:   mapping.Gemini{Model: model, Logger: logger},
		Secondary: mapping.Heuristic{},
		OnFallback: func(err error) {
			logger.Warn("gemini mapping failed, using heuristic", zap.Error(err))
		},
	}
}

func writeJSONTo(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
