package cmd

import (
	"fmt"
	"os"
	"path"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rafaguilar/DynBanner-RenderGrid/api"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/bundle"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/generate"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/jobfile"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/mapping"
)

// manifestName lists the generated variations in the output directory.
const manifestName = "variations.json"

var (
	genJob        string
	genTemplate   string
	genData       string
	genSelector   string
	genSheet      string
	genMapping    string
	genDynamicJS  string
	genTier       string
	genBase       string
	genIDs        string
	genIDField    string
	genOut        string
	genPrefix     string
	genZip        bool
	genStrict     bool
	genWorkers    int
	genGemini     bool
	genNoValidate bool
)

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&genJob, "job", "j", "", "HCL job file describing the batch")
	f.StringVarP(&genTemplate, "template", "t", "", "Template zip or directory")
	f.StringVarP(&genData, "data", "d", "", "Rows: .csv, .json, .xlsx, .db/.sqlite or a Google Sheet URL")
	f.StringVar(&genSelector, "selector", "", "JSONPath selecting rows in a JSON data file")
	f.StringVar(&genSheet, "sheet", "", "XLSX sheet or Google Sheet tab")
	f.StringVarP(&genMapping, "mapping", "m", "", "Column mapping as inline JSON or a JSON file; suggested when omitted")
	f.StringVar(&genDynamicJS, "dynamic-js", "", "Dynamic.js replacing the template's own")
	f.StringVar(&genTier, "tier", "", "T1 or T2; detected from Dynamic.js when omitted")
	f.StringVar(&genBase, "base-asset-path", "", "Prefix for relative image values")
	f.StringVar(&genIDs, "ids", "", "Comma-separated row ids to render, in order")
	f.StringVar(&genIDField, "id-field", "", "Column holding row ids (default \"id\")")
	f.StringVarP(&genOut, "out", "o", "", "Output directory (default \"out\")")
	f.StringVar(&genPrefix, "prefix", "", "Prefix for variation names")
	f.BoolVar(&genZip, "zip", false, "Write one zip per variation instead of a folder")
	f.BoolVar(&genStrict, "strict", false, "Fail the batch on the first row error")
	f.IntVarP(&genWorkers, "workers", "w", 0, "Concurrent rows (default from config)")
	f.BoolVar(&genGemini, "gemini", false, "Suggest a missing mapping with Gemini")
	f.BoolVar(&genNoValidate, "no-validate", false, "Skip parsing rewritten Dynamic.js files")
	rootCmd.AddCommand(generateCmd)
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Render one banner variation per data row",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var (
			req *generate.Request
			out = genOut
			err error
		)
		if genJob != "" {
			job, err := jobfile.Load(genJob)
			if err != nil {
				return err
			}
			if req, err = job.Request(ctx, nil); err != nil {
				return err
			}
			if out == "" {
				out = job.OutputDir()
			}
		} else {
			if req, err = flagRequest(cmd); err != nil {
				return err
			}
		}
		if out == "" {
			out = "out"
		}
		if req.BaseAssetPath == "" {
			req.BaseAssetPath = cfg.BaseAssetPath
		}

		if len(req.Mapping) == 0 {
			src := req.Source
			if src == "" {
				src = req.Bundle.Source()
			}
			vars, err := mapping.Variables([]byte(src))
			if err != nil {
				return err
			}
			req.Mapping, err = newSuggester(ctx, genGemini).Suggest(ctx, mapping.Input{
				Columns: req.Rows.Fields, Variables: vars, Tier: req.Tier,
			})
			if err != nil {
				return fmt.Errorf("suggest mapping: %w", err)
			}
			logger.Info("using suggested mapping", zap.Strings("fields", req.Mapping.Fields()), zap.Any("mapping", req.Mapping))
		}

		workers := genWorkers
		if workers == 0 {
			workers = cfg.Workers
		}
		gen := generate.New(generate.Options{Workers: workers, Validate: !genNoValidate}, logger)
		batch, err := gen.Generate(ctx, req)
		if err != nil {
			return err
		}

		if err := writeVariations(out, batch.Variations, genZip); err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, v := range batch.Variations {
			fmt.Fprintf(w, "%s\t%dx%d\t%d warnings\n", v.Name, v.Width, v.Height, len(v.Warnings))
			for _, warn := range v.Warnings {
				fmt.Fprintf(w, "  warning: %s\n", warn)
			}
		}
		for _, f := range batch.Failures {
			fmt.Fprintf(w, "failed: %v\n", f)
		}
		fmt.Fprintf(w, "%d variations written to %s\n", len(batch.Variations), out)
		return nil
	},
}

func flagRequest(cmd *cobra.Command) (*generate.Request, error) {
	if genTemplate == "" || genData == "" {
		return nil, fmt.Errorf("--template and --data are required without --job")
	}
	b, err := bundle.Open(genTemplate)
	if err != nil {
		return nil, fmt.Errorf("open template: %w", err)
	}
	req := &generate.Request{
		Bundle:        b,
		BaseAssetPath: genBase,
		IDField:       genIDField,
		IDs:           generate.ParseIDs(genIDs),
		Strict:        genStrict,
		NamePrefix:    genPrefix,
	}
	if genDynamicJS != "" {
		data, err := os.ReadFile(genDynamicJS)
		if err != nil {
			return nil, err
		}
		req.Source = string(data)
	}
	src := req.Source
	if src == "" {
		src = b.Source()
	}
	if req.Tier, err = parseTier(genTier, src); err != nil {
		return nil, err
	}
	if genMapping != "" {
		if req.Mapping, err = loadMapping(genMapping); err != nil {
			return nil, err
		}
	}
	if req.Rows, err = loadRows(cmd.Context(), genData, genSelector, genSheet); err != nil {
		return nil, fmt.Errorf("load rows: %w", err)
	}
	return req, nil
}

// writeVariations stores each variation under dir, as a folder or a zip
// named after the variation, plus a JSON manifest.
func writeVariations(dir string, vars []*api.Variation, asZip bool) error {
	fs := osfs.New(dir)
	used := make(map[string]bool, len(vars))
	for _, v := range vars {
		name := v.Name
		if name == "" || used[name] {
			name = v.BannerID
		}
		used[name] = true

		if asZip {
			f, err := fs.Create(name + ".zip")
			if err != nil {
				return err
			}
			if err := bundle.PackTo(f, v.Order, v.Files); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			continue
		}
		for _, file := range v.Order {
			if err := util.WriteFile(fs, path.Join(name, file), v.Files[file], 0o644); err != nil {
				return err
			}
		}
	}

	f, err := fs.Create(manifestName)
	if err != nil {
		return err
	}
	if err := writeJSONTo(f, vars); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
