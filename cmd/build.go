package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rafaguilar/DynBanner-RenderGrid/internal/ingest"
)

var (
	buildSelector string
	buildSheet    string
	buildIDField  string
)

func init() {
	f := buildCmd.Flags()
	f.StringVar(&buildSelector, "selector", "", "JSONPath selecting rows in a JSON data file")
	f.StringVar(&buildSheet, "sheet", "", "XLSX sheet or Google Sheet tab")
	f.StringVar(&buildIDField, "id-field", ingest.IDField, "Column stored as the row id")
	rootCmd.AddCommand(buildCmd)
}

var buildCmd = &cobra.Command{
	Use:   "build [data] [output.db]",
	Short: "Build a SQLite row database from CSV, JSON, XLSX or a Google Sheet",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		t, err := loadRows(cmd.Context(), args[0], buildSelector, buildSheet)
		if err != nil {
			return err
		}
		if err := ingest.WriteSQLite(args[1], t, buildIDField); err != nil {
			return fmt.Errorf("write %s: %w", args[1], err)
		}
		logger.Info("row database built",
			zap.String("source", args[0]),
			zap.String("output", args[1]),
			zap.Int("rows", t.Len()),
			zap.Duration("elapsed", time.Since(start)))
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d rows written to %s\n", t.Len(), args[1])
		return err
	},
}
