package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("refresh_and_report",
		mcp.WithPromptDescription("Refresh the table and summarize the largest entities in one currency"),
		mcp.WithArgument("currency",
			mcp.ArgumentDescription("Currency code to report in, e.g. EUR"),
			mcp.RequiredArgument(),
		),
	), s.handleRefreshPrompt)
}

func (s *Server) handleRefreshPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	currency := req.Params.Arguments["currency"]
	job := s.pipeline.Job()
	column, ok := job.Schema.CurrencyColumn(currency)
	if !ok {
		return nil, fmt.Errorf("currency %q is not loaded; available: %v", currency, job.Schema.Currencies)
	}
	code := strings.ToUpper(strings.TrimSpace(currency))

	// Only the configured mean currency has a stored mean query.
	mean := fmt.Sprintf("the mean of %s over all rows", column)
	if code == strings.ToUpper(job.MeanCurrency) {
		mean = fmt.Sprintf("the mean from run_query %q", "mean_"+strings.ToLower(code))
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Refresh %s and report in %s", job.Table, code),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Refresh the %s table and report on it. Follow these steps:

1. Call run_pipeline. If it fails, report the failed stage and error kind and stop.
2. Call run_query with name "all_rows" and read the %s column.
3. Summarize the five largest entries in %s, in table order, and compare them with %s.

Keep figures to two decimals as stored.`, job.Table, column, code, mean),
				},
			},
		},
	}, nil
}
