// Package mcp provides the Model Context Protocol (MCP) server implementation.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/surveykit/raking/internal/contract"
)

// NewMCPServer initializes and configures the raking MCP server without starting it.
// This is exposed for unit testing.
func NewMCPServer(baseCfg *contract.Config, mgr contract.CacheManager) *server.MCPServer {
	s := server.NewMCPServer(
		"Raking Survey Weights Server",
		"1.0.0",
		server.WithLogging(),
	)

	h := &toolHandler{
		baseCfg: baseCfg,
		mgr:     mgr,
	}

	// --- 1. Tool: rake_weights ---
	s.AddTool(mcp.NewTool("rake_weights",
		mcp.WithDescription("Compute survey weights by raking (iterative proportional fitting) a respondent table to population targets."),
		mcp.WithString("input", mcp.Description("Path to the respondent CSV or XLSX file."), mcp.Required()),
		mcp.WithString("targets", mcp.Description("Path to a YAML or JSON target file.")),
		mcp.WithArray("target", mcp.Description("Inline targets such as 'gender=M:0.49,F:0.51'. Replace same-named variables from the file."), mcp.WithStringItems()),
		mcp.WithString("sheet", mcp.Description("Sheet name for XLSX input (defaults to the first sheet).")),
		mcp.WithNumber("max_iter", mcp.Description("Maximum raking iterations. Defaults to 100.")),
		mcp.WithNumber("tolerance", mcp.Description("Convergence threshold on total weight change. Defaults to 0.001.")),
		mcp.WithString("missing_policy", mcp.Description("What to do with target categories absent from the sample."), mcp.Enum("redistribute", "keep")),
		mcp.WithBoolean("normalize_labels", mcp.Description("Match category labels case-insensitively after Unicode normalization.")),
		mcp.WithBoolean("include_weights", mcp.Description("Include the per-respondent weight vector in the response.")),
	), h.handleRakeWeights)

	// --- 2. Tool: weighted_crosstab ---
	s.AddTool(mcp.NewTool("weighted_crosstab",
		mcp.WithDescription("Cross-tabulate two columns using a weight column, or weights raked on the fly from targets."),
		mcp.WithString("input", mcp.Description("Path to the respondent CSV or XLSX file."), mcp.Required()),
		mcp.WithString("rows", mcp.Description("Column shown as table rows (the question)."), mcp.Required()),
		mcp.WithString("columns", mcp.Description("Column shown as table columns (the banner)."), mcp.Required()),
		mcp.WithString("weight_column", mcp.Description("Weight column name. Defaults to 'weight'.")),
		mcp.WithString("normalize", mcp.Description("How cells are expressed. Defaults to 'all'."), mcp.Enum("none", "index", "columns", "all")),
		mcp.WithString("targets", mcp.Description("Target file used to rake when the weight column is absent.")),
		mcp.WithArray("target", mcp.Description("Inline targets used to rake when the weight column is absent."), mcp.WithStringItems()),
		mcp.WithString("sheet", mcp.Description("Sheet name for XLSX input.")),
	), h.handleWeightedCrosstab)

	// --- 3. Tool: validate_targets ---
	s.AddTool(mcp.NewTool("validate_targets",
		mcp.WithDescription("Check targets against a respondent table without raking: reports effective targets, sample shares and warnings."),
		mcp.WithString("input", mcp.Description("Path to the respondent CSV or XLSX file."), mcp.Required()),
		mcp.WithString("targets", mcp.Description("Path to a YAML or JSON target file.")),
		mcp.WithArray("target", mcp.Description("Inline targets such as 'region=North:0.3,South:0.7'."), mcp.WithStringItems()),
		mcp.WithString("sheet", mcp.Description("Sheet name for XLSX input.")),
		mcp.WithString("missing_policy", mcp.Description("What to do with target categories absent from the sample."), mcp.Enum("redistribute", "keep")),
		mcp.WithBoolean("normalize_labels", mcp.Description("Match category labels case-insensitively after Unicode normalization.")),
	), h.handleValidateTargets)

	return s
}

// StartMCPServer starts the raking MCP server on stdio.
func StartMCPServer(_ context.Context, baseCfg *contract.Config, mgr contract.CacheManager) error {
	s := NewMCPServer(baseCfg, mgr)
	return server.ServeStdio(s)
}
