// Package jobfile reads HCL descriptions of generation batches.
package jobfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/rafaguilar/DynBanner-RenderGrid/api"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/bundle"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/generate"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/ingest"
)

var (
	// ErrNoData means the data block names no source.
	ErrNoData = errors.New("data block names no source")
	// ErrAmbiguousData means the data block names more than one source.
	ErrAmbiguousData = errors.New("data block names more than one source")
)

// Job is one batch: a template, a row source and the column mapping.
type Job struct {
	Template      string   `hcl:"template"`
	DynamicJS     string   `hcl:"dynamic_js,optional"`
	Tier          string   `hcl:"tier,optional"`
	BaseAssetPath string   `hcl:"base_asset_path,optional"`
	Output        string   `hcl:"output,optional"`
	IDField       string   `hcl:"id_field,optional"`
	Rows          []string `hcl:"rows,optional"`
	Strict        bool     `hcl:"strict,optional"`
	NamePrefix    string   `hcl:"name_prefix,optional"`

	Data   Data    `hcl:"data,block"`
	Fields []Field `hcl:"field,block"`

	// dir is the directory relative paths resolve against.
	dir string
}

// Data names exactly one row source.
type Data struct {
	CSV      string `hcl:"csv,optional"`
	JSON     string `hcl:"json,optional"`
	Selector string `hcl:"selector,optional"`
	SQLite   string `hcl:"sqlite,optional"`
	XLSX     string `hcl:"xlsx,optional"`
	Sheet    string `hcl:"sheet,optional"`
	SheetURL string `hcl:"sheet_url,optional"`
	Tab      string `hcl:"tab,optional"`
}

// Field maps one data column onto a Dynamic.js variable.
type Field struct {
	Name string `hcl:"name,label"`
	Path string `hcl:"path"`
}

// Load reads and checks a job file. The file name must end in .hcl or .json.
func Load(path string) (*Job, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, src, filepath.Dir(abs))
}

// Parse decodes a job from src. Relative paths resolve against dir.
func Parse(filename string, src []byte, dir string) (*Job, error) {
	var j Job
	if err := hclsimple.Decode(filename, src, nil, &j); err != nil {
		return nil, err
	}
	j.dir = dir
	if err := j.check(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return &j, nil
}

func (j *Job) check() error {
	if j.Tier != "" {
		if _, err := api.ParseTier(j.Tier); err != nil {
			return err
		}
	}
	n := 0
	for _, s := range []string{j.Data.CSV, j.Data.JSON, j.Data.SQLite, j.Data.XLSX, j.Data.SheetURL} {
		if s != "" {
			n++
		}
	}
	switch {
	case n == 0:
		return ErrNoData
	case n > 1:
		return ErrAmbiguousData
	}
	var m api.ColumnMapping
	for _, f := range j.Fields {
		if prev, dup := m.Lookup(f.Name); dup {
			return fmt.Errorf("field %q declared twice (first maps to %s)", f.Name, prev)
		}
		m.Set(f.Name, f.Path)
	}
	return nil
}

// Resolve returns p relative to the job file's directory.
func (j *Job) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || j.dir == "" {
		return p
	}
	return filepath.Join(j.dir, p)
}

// OutputDir is the resolved output directory, "out" by default.
func (j *Job) OutputDir() string {
	if j.Output == "" {
		return j.Resolve("out")
	}
	return j.Resolve(j.Output)
}

// Mapping returns the field blocks in declaration order.
func (j *Job) Mapping() api.ColumnMapping {
	var m api.ColumnMapping
	for _, f := range j.Fields {
		m.Set(f.Name, f.Path)
	}
	return m
}

// LoadRows reads the data source. fetcher is used only for sheet_url.
func (j *Job) LoadRows(ctx context.Context, fetcher *ingest.SheetFetcher) (*ingest.Table, error) {
	d := j.Data
	switch {
	case d.CSV != "":
		data, err := os.ReadFile(j.Resolve(d.CSV))
		if err != nil {
			return nil, err
		}
		return ingest.ReadCSV(bytes.NewReader(data))
	case d.JSON != "":
		data, err := os.ReadFile(j.Resolve(d.JSON))
		if err != nil {
			return nil, err
		}
		return ingest.ReadJSON(data, d.Selector)
	case d.SQLite != "":
		return ingest.LoadSQLite(j.Resolve(d.SQLite))
	case d.XLSX != "":
		f, err := os.Open(j.Resolve(d.XLSX))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ingest.ReadXLSX(f, d.Sheet)
	case d.SheetURL != "":
		if fetcher == nil {
			fetcher = ingest.NewSheetFetcher()
		}
		tab := d.Tab
		if tab == "" {
			tab = ingest.TabParent
		}
		return fetcher.Fetch(ctx, d.SheetURL, tab)
	default:
		return nil, ErrNoData
	}
}

// Request loads the template and rows and builds the batch request. An
// unset tier is detected from the template's Dynamic.js.
func (j *Job) Request(ctx context.Context, fetcher *ingest.SheetFetcher) (*generate.Request, error) {
	b, err := bundle.Open(j.Resolve(j.Template))
	if err != nil {
		return nil, fmt.Errorf("open template: %w", err)
	}
	var source string
	if j.DynamicJS != "" {
		data, err := os.ReadFile(j.Resolve(j.DynamicJS))
		if err != nil {
			return nil, err
		}
		source = string(data)
	}
	rows, err := j.LoadRows(ctx, fetcher)
	if err != nil {
		return nil, fmt.Errorf("load rows: %w", err)
	}

	req := &generate.Request{
		Bundle:        b,
		Source:        source,
		Mapping:       j.Mapping(),
		BaseAssetPath: j.BaseAssetPath,
		Rows:          rows,
		IDField:       j.IDField,
		IDs:           j.Rows,
		Strict:        j.Strict,
		NamePrefix:    j.NamePrefix,
	}
	if j.Tier != "" {
		req.Tier, _ = api.ParseTier(j.Tier)
	} else if source != "" {
		req.Tier = bundle.DetectTier(source)
	} else {
		req.Tier = bundle.DetectTier(b.Source())
	}
	return req, nil
}
