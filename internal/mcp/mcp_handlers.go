package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/surveykit/raking/core"
	"github.com/surveykit/raking/core/crosstab"
	"github.com/surveykit/raking/core/rake"
	"github.com/surveykit/raking/internal/contract"
	"github.com/surveykit/raking/schema"
)

// toolHandler holds common dependencies for MCP tool handlers.
type toolHandler struct {
	baseCfg *contract.Config
	mgr     contract.CacheManager
}

// configFor clones the base config and applies the arguments shared by all tools.
func (h *toolHandler) configFor(request mcp.CallToolRequest) *contract.Config {
	cfg := h.baseCfg.Clone()
	cfg.InputPath = request.GetString("input", "")
	cfg.Sheet = request.GetString("sheet", cfg.Sheet)
	cfg.TargetsPath = request.GetString("targets", cfg.TargetsPath)
	if inline := request.GetStringSlice("target", nil); len(inline) > 0 {
		cfg.InlineTargets = inline
	}
	if p := request.GetString("missing_policy", ""); p != "" {
		cfg.Solver.MissingPolicy = rake.MissingPolicy(p)
	} else if cfg.Solver.MissingPolicy == "" {
		cfg.Solver.MissingPolicy = rake.RedistributeMissing
	}
	cfg.Solver.NormalizeLabels = request.GetBool("normalize_labels", cfg.Solver.NormalizeLabels)
	if cfg.Normalize == "" {
		cfg.Normalize = crosstab.AllNormalize
	}
	if cfg.WeightColumn == "" {
		cfg.WeightColumn = schema.DefaultWeightColumn
	}
	return cfg
}

type rakeResponse struct {
	RunID      string             `json:"run_id,omitempty"`
	Cached     bool               `json:"cached"`
	Status     string             `json:"status"`
	Converged  bool               `json:"converged"`
	Iterations int                `json:"iterations"`
	Summary    rake.WeightSummary `json:"summary"`
	Marginals  []rake.Marginal    `json:"marginals"`
	Warnings   []rake.Warning     `json:"warnings"`
	Weights    []float64          `json:"weights,omitempty"`
}

func (h *toolHandler) handleRakeWeights(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg := h.configFor(request)
	cfg.Solver.MaxIter = request.GetInt("max_iter", cfg.Solver.MaxIter)
	cfg.Solver.Tolerance = request.GetFloat("tolerance", cfg.Solver.Tolerance)

	if err := contract.Revalidate(cfg); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid raking parameters: %v", err)), nil
	}

	out, err := core.RunRake(core.WithSuppressHeader(ctx), cfg, h.mgr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("raking failed: %v", err)), nil
	}

	res := out.Result
	resp := rakeResponse{
		RunID:      out.RunID,
		Cached:     out.Cached,
		Status:     contract.GetStatusLabel(res.Converged),
		Converged:  res.Converged,
		Iterations: res.Iterations,
		Summary:    res.Summary,
		Marginals:  res.Marginals,
		Warnings:   res.Warnings,
	}
	if resp.Warnings == nil {
		resp.Warnings = []rake.Warning{}
	}
	if request.GetBool("include_weights", false) {
		resp.Weights = res.Weights
	}

	return jsonResult(resp), nil
}

func (h *toolHandler) handleWeightedCrosstab(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg := h.configFor(request)
	cfg.RowVariable = request.GetString("rows", "")
	cfg.ColumnVariable = request.GetString("columns", "")
	cfg.WeightColumn = request.GetString("weight_column", cfg.WeightColumn)
	if n := request.GetString("normalize", ""); n != "" {
		cfg.Normalize = crosstab.Normalize(n)
	}

	if err := contract.Revalidate(cfg); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid crosstab parameters: %v", err)), nil
	}

	tab, err := core.BuildCrosstab(core.WithSuppressHeader(ctx), cfg, h.mgr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("crosstab failed: %v", err)), nil
	}

	return jsonResult(tab), nil
}

func (h *toolHandler) handleValidateTargets(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg := h.configFor(request)

	if err := contract.Revalidate(cfg); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid target parameters: %v", err)), nil
	}

	check, err := core.CheckTargets(cfg)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("target validation failed: %v", err)), nil
	}
	if check.Warnings == nil {
		check.Warnings = []rake.Warning{}
	}

	return jsonResult(check), nil
}

// jsonResult renders v as indented JSON, or a tool error when v holds
// values JSON cannot carry, such as an infinite weight.
func jsonResult(v any) *mcp.CallToolResult {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("could not encode result: %v", err))
	}
	return mcp.NewToolResultText(string(jsonData))
}
