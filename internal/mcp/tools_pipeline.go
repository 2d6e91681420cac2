package mcpserver

import (
	"context"
	"errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"bankcap/internal/etl"
	"bankcap/internal/service"
	"bankcap/internal/storage"
)

func (s *Server) registerPipelineTools() {
	s.mcp.AddTool(mcp.NewTool("run_pipeline",
		mcp.WithDescription("DESTRUCTIVE: run the ETL pipeline once. Replaces the CSV file and the database table with freshly extracted data, then returns the run result with the verification query output."),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRunPipeline)

	s.mcp.AddTool(mcp.NewTool("run_query",
		mcp.WithDescription("Run the fixed verification queries against the loaded table. Pass a query name to run only that one (see list_queries)."),
		mcp.WithString("name", mcp.Description("Query name, e.g. all_rows, mean_gbp, top_names (optional)")),
		mcp.WithString("format", mcp.Description("json (default) or table")),
	), s.handleRunQuery)

	s.mcp.AddTool(mcp.NewTool("list_queries",
		mcp.WithDescription("List the fixed verification queries with their SQL statements"),
	), s.handleListQueries)

	s.mcp.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List recent pipeline runs, newest first"),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 10)")),
	), s.handleListRuns)
}

func (s *Server) handleRunPipeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.pipeline.Run(ctx, storage.TriggerMCP)
	if errors.Is(err, service.ErrAlreadyRunning) {
		return errorResult(err), nil
	}
	if result == nil {
		return errorResult(err), nil
	}
	res, jerr := jsonResult(result)
	if jerr != nil {
		return nil, jerr
	}
	res.IsError = err != nil
	return res, nil
}

func (s *Server) handleRunQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := strings.ToLower(strings.TrimSpace(req.GetString("name", "")))
	format := req.GetString("format", "json")

	results, err := s.pipeline.Query(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	if name != "" {
		var picked []*etl.QueryResult
		for _, r := range results {
			if r.Name == name {
				picked = append(picked, r)
			}
		}
		if len(picked) == 0 {
			return errorResult(errors.New("unknown query: " + name)), nil
		}
		results = picked
	}

	if format == "table" {
		var b strings.Builder
		for _, r := range results {
			if err := r.Render(&b); err != nil {
				return nil, err
			}
		}
		return textResult(b.String()), nil
	}
	return jsonResult(results)
}

type queryInfo struct {
	Name      string `json:"name"`
	Statement string `json:"statement"`
}

func (s *Server) handleListQueries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	job := s.pipeline.Job()
	queries, err := etl.FixedQueries(etl.ANSIQuoter{}, job.Table, job.Schema, job.MeanCurrency)
	if err != nil {
		return errorResult(err), nil
	}
	out := make([]queryInfo, len(queries))
	for i, q := range queries {
		out[i] = queryInfo{Name: q.Name, Statement: q.Statement}
	}
	return jsonResult(out)
}

func (s *Server) handleListRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := int(req.GetFloat("limit", 10))
	runs, err := s.pipeline.ListRunLogs(limit)
	if err != nil {
		return errorResult(err), nil
	}
	// Query output is large and reachable through run_query.
	for i := range runs {
		runs[i].Queries = nil
	}
	return jsonResult(runs)
}
