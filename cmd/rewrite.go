package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rafaguilar/DynBanner-RenderGrid/internal/ingest"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/substitute"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/writeback"
)

var (
	rwMapping string
	rwRow     string
	rwSet     string
	rwTier    string
	rwBase    string
	rwDryRun  bool
	rwForce   bool
)

func init() {
	f := rewriteCmd.Flags()
	f.StringVarP(&rwMapping, "mapping", "m", "", "Column mapping as inline JSON or a JSON file")
	f.StringVarP(&rwRow, "row", "r", "", "Row values as inline JSON or a JSON file")
	f.StringVar(&rwSet, "set", "", "Comma-separated field=value pairs added to the row")
	f.StringVar(&rwTier, "tier", "", "T1 or T2; detected when omitted")
	f.StringVar(&rwBase, "base-asset-path", "", "Prefix for relative image values")
	f.BoolVar(&rwDryRun, "dry-run", false, "Print the result instead of writing the file")
	f.BoolVar(&rwForce, "force", false, "Write even if the result no longer parses")
	rootCmd.AddCommand(rewriteCmd)
}

var rewriteCmd = &cobra.Command{
	Use:   "rewrite [Dynamic.js]",
	Short: "Apply one data row to a Dynamic.js in place",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file := args[0]
		src, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		if rwMapping == "" {
			return fmt.Errorf("--mapping is required")
		}
		m, err := loadMapping(rwMapping)
		if err != nil {
			return err
		}
		row, err := loadRow(rwRow, rwSet)
		if err != nil {
			return err
		}
		tier, err := parseTier(rwTier, string(src))
		if err != nil {
			return err
		}
		base := rwBase
		if base == "" {
			base = cfg.BaseAssetPath
		}

		engine := &substitute.Engine{Tier: tier, BaseAssetPath: base, Logger: logger}
		res := engine.Substitute(string(src), m, row)

		w := cmd.OutOrStdout()
		if rwDryRun {
			_, err := fmt.Fprint(w, res.Text)
			return err
		}
		if err := writeback.Regressed(src, []byte(res.Text), file); err != nil && !rwForce {
			return fmt.Errorf("rewrite would break %s (use --force to write anyway): %w", file, err)
		}
		if res.Changed() {
			if err := writeback.WriteFileAtomic(file, []byte(res.Text)); err != nil {
				return err
			}
		}
		for _, c := range res.Changes {
			fmt.Fprintf(w, "line %d: %s = %s (%s)\n", c.Line+1, c.Path, c.New, c.Policy)
		}
		for _, warn := range res.Warnings {
			fmt.Fprintf(w, "warning: %s\n", warn)
		}
		return nil
	},
}

// loadRow builds a row from a JSON object (inline or file) and field=value
// pairs; pairs win.
func loadRow(arg, pairs string) (map[string]string, error) {
	row := map[string]string{}
	if arg != "" {
		data := []byte(arg)
		if !strings.HasPrefix(strings.TrimSpace(arg), "{") {
			var err error
			if data, err = os.ReadFile(arg); err != nil {
				return nil, err
			}
		}
		var obj map[string]any
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("parse row: %w", err)
		}
		row = ingest.RecordRow(obj)
	}
	if pairs != "" {
		for _, kv := range strings.Split(pairs, ",") {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || strings.TrimSpace(k) == "" {
				return nil, fmt.Errorf("invalid --set pair %q (want field=value)", kv)
			}
			row[strings.TrimSpace(k)] = v
		}
	}
	return row, nil
}
