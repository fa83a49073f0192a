package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rafaguilar/DynBanner-RenderGrid/internal/linter"
)

// errLintFailed is returned when any file has diagnostics.
var errLintFailed = errors.New("lint found problems")

var lintCmd = &cobra.Command{
	Use:   "lint [Dynamic.js...]",
	Short: "Check Dynamic.js files for assignments the rewriter cannot handle",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		failed := false
		for _, file := range args {
			src, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			diags, err := linter.Lint(src)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			for _, d := range diags {
				fmt.Fprintf(w, "%s:%s [%s]\n", file, d, d.Rule)
			}
			failed = failed || len(diags) > 0
		}
		if failed {
			return errLintFailed
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lintCmd)
}
