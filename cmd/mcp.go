package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rafaguilar/DynBanner-RenderGrid/internal/mcpserver"
)

var mcpGemini bool

func init() {
	mcpCmd.Flags().BoolVar(&mcpGemini, "gemini", false, "Suggest mappings with Gemini when an API key is set")
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		h := &mcpserver.Handler{
			Suggester:     newSuggester(cmd.Context(), mcpGemini),
			BaseAssetPath: cfg.BaseAssetPath,
			Logger:        logger,
		}
		return mcpserver.ServeStdio(mcpserver.New(h, Version))
	},
}
