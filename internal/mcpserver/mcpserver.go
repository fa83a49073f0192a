// Package mcpserver exposes Dynamic.js inspection and substitution as MCP
// tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/rafaguilar/DynBanner-RenderGrid/api"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/bundle"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/ingest"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/linter"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/logging"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/mapping"
	"github.com/rafaguilar/DynBanner-RenderGrid/internal/substitute"
)

// Handler implements the tools.
type Handler struct {
	Suggester mapping.Suggester
	// BaseAssetPath is used when a substitute call names none.
	BaseAssetPath string
	Logger        *zap.Logger
}

// New builds an MCP server with every tool registered.
func New(h *Handler, version string) *server.MCPServer {
	s := server.NewMCPServer("rendergrid", version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("list_variables",
		mcp.WithDescription("List the devDynamicContent variables assigned in a Dynamic.js and the tier it was written for."),
		mcp.WithString("dynamic_js", mcp.Required(), mcp.Description("Dynamic.js source")),
	), h.listVariables)

	s.AddTool(mcp.NewTool("suggest_mapping",
		mcp.WithDescription("Suggest which data column feeds each Dynamic.js variable."),
		mcp.WithString("dynamic_js", mcp.Required(), mcp.Description("Dynamic.js source")),
		mcp.WithArray("columns", mcp.Required(), mcp.Description("Data column names"), mcp.WithStringItems()),
		mcp.WithString("tier", mcp.Description("T1 or T2; detected when omitted")),
	), h.suggestMapping)

	s.AddTool(mcp.NewTool("substitute",
		mcp.WithDescription("Rewrite a Dynamic.js with the values of one data row. Returns the new text, the changes made and any warnings."),
		mcp.WithString("dynamic_js", mcp.Required(), mcp.Description("Dynamic.js source")),
		mcp.WithObject("mapping", mcp.Required(), mcp.Description("Column name to variable path")),
		mcp.WithObject("row", mcp.Required(), mcp.Description("Column name to value")),
		mcp.WithString("tier", mcp.Description("T1 or T2; detected when omitted")),
		mcp.WithString("base_asset_path", mcp.Description("Prefix for relative image values")),
	), h.substitute)

	s.AddTool(mcp.NewTool("lint_dynamic_js",
		mcp.WithDescription("Report syntax errors, multi-line assignments and duplicate targets in a Dynamic.js."),
		mcp.WithString("dynamic_js", mcp.Required(), mcp.Description("Dynamic.js source")),
	), h.lint)

	return s
}

// ServeStdio runs the server on stdin/stdout until the input closes.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func (h *Handler) log() *zap.Logger { return logging.OrNop(h.Logger) }

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

func tier(req mcp.CallToolRequest, src string) (api.Tier, error) {
	if s := req.GetString("tier", ""); s != "" {
		return api.ParseTier(s)
	}
	return bundle.DetectTier(src), nil
}

// object returns the named argument as a string map. Non-string values are
// stringified the same way JSON data rows are.
func object(req mcp.CallToolRequest, name string) (map[string]string, error) {
	raw, ok := req.GetArguments()[name]
	if !ok {
		return nil, fmt.Errorf("required argument %q not found", name)
	}
	switch v := raw.(type) {
	case map[string]any:
		return ingest.RecordRow(v), nil
	case string:
		var obj map[string]any
		if err := json.Unmarshal([]byte(v), &obj); err != nil {
			return nil, fmt.Errorf("argument %q: %w", name, err)
		}
		return ingest.RecordRow(obj), nil
	default:
		return nil, fmt.Errorf("argument %q must be an object", name)
	}
}

func (h *Handler) listVariables(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := req.RequireString("dynamic_js")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	vars, err := mapping.Variables([]byte(src))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if vars == nil {
		vars = []string{}
	}
	return jsonResult(map[string]any{
		"variables": vars,
		"tier":      bundle.DetectTier(src),
	})
}

func (h *Handler) suggestMapping(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := req.RequireString("dynamic_js")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cols, err := req.RequireStringSlice("columns")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t, err := tier(req, src)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	vars, err := mapping.Variables([]byte(src))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sg := h.Suggester
	if sg == nil {
		sg = mapping.Heuristic{}
	}
	m, err := sg.Suggest(ctx, mapping.Input{Columns: cols, Variables: vars, Tier: t})
	if err != nil {
		h.log().Warn("mapping suggestion failed", zap.Error(err))
		return mcp.NewToolResultError(err.Error()), nil
	}
	if m == nil {
		m = api.ColumnMapping{}
	}
	return jsonResult(m)
}

func (h *Handler) substitute(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := req.RequireString("dynamic_js")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m, err := object(req, "mapping")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	row, err := object(req, "row")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t, err := tier(req, src)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	engine := &substitute.Engine{
		Tier:          t,
		BaseAssetPath: req.GetString("base_asset_path", h.BaseAssetPath),
		Logger:        h.Logger,
	}
	return jsonResult(engine.Substitute(src, api.MappingFromMap(m), row))
}

func (h *Handler) lint(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := req.RequireString("dynamic_js")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	diags, err := linter.Lint([]byte(src))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if diags == nil {
		diags = []linter.Diagnostic{}
	}
	return jsonResult(map[string]any{"diagnostics": diags})
}
