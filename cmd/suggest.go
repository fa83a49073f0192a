package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rafaguilar/DynBanner-RenderGrid/internal/mapping"
)

var (
	sugColumns  string
	sugData     string
	sugSelector string
	sugSheet    string
	sugTier     string
	sugGemini   bool
)

func init() {
	f := suggestCmd.Flags()
	f.StringVar(&sugColumns, "columns", "", "Comma-separated data column names")
	f.StringVarP(&sugData, "data", "d", "", "Data file whose header supplies the columns")
	f.StringVar(&sugSelector, "selector", "", "JSONPath selecting rows in a JSON data file")
	f.StringVar(&sugSheet, "sheet", "", "XLSX sheet or Google Sheet tab")
	f.StringVar(&sugTier, "tier", "", "T1 or T2; detected when omitted")
	f.BoolVar(&sugGemini, "gemini", false, "Ask Gemini, falling back to name matching")
	rootCmd.AddCommand(suggestCmd)
}

var suggestCmd = &cobra.Command{
	Use:   "suggest [Dynamic.js|template]",
	Short: "Suggest a column mapping for a Dynamic.js",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := readSource(args[0])
		if err != nil {
			return err
		}
		var cols []string
		switch {
		case sugColumns != "":
			for _, c := range strings.Split(sugColumns, ",") {
				if c = strings.TrimSpace(c); c != "" {
					cols = append(cols, c)
				}
			}
		case sugData != "":
			t, err := loadRows(cmd.Context(), sugData, sugSelector, sugSheet)
			if err != nil {
				return err
			}
			cols = t.Fields
		default:
			return fmt.Errorf("--columns or --data is required")
		}

		tier, err := parseTier(sugTier, src)
		if err != nil {
			return err
		}
		vars, err := mapping.Variables([]byte(src))
		if err != nil {
			return err
		}
		m, err := newSuggester(cmd.Context(), sugGemini).Suggest(cmd.Context(), mapping.Input{Columns: cols, Variables: vars, Tier: tier})
		if err != nil {
			return err
		}
		return writeJSONTo(cmd.OutOrStdout(), m)
	},
}
