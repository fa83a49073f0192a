package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rafaguilar/DynBanner-RenderGrid/internal/bundle"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/mapping"
)

var varsJSON bool

func init() {
	varsCmd.Flags().BoolVar(&varsJSON, "json", false, "Print assignments as JSON")
	rootCmd.AddCommand(varsCmd)
}

var varsCmd = &cobra.Command{
	Use:   "vars [Dynamic.js|template]",
	Short: "List the devDynamicContent variables of a Dynamic.js or template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := readSource(args[0])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if varsJSON {
			assigns, err := mapping.Assignments([]byte(src))
			if err != nil {
				return err
			}
			return writeJSONTo(w, map[string]any{
				"tier":        bundle.DetectTier(src),
				"assignments": assigns,
			})
		}
		vars, err := mapping.Variables([]byte(src))
		if err != nil {
			return err
		}
		if t := bundle.DetectTier(src); t != "" {
			fmt.Fprintf(w, "# tier %s\n", t)
		}
		for _, v := range vars {
			fmt.Fprintln(w, v)
		}
		return nil
	},
}
