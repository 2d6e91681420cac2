package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	schemaURI    = "bankcap://schema"
	lastRunURI   = "bankcap://runs/latest"
	jsonMIMEType = "application/json"
)

func (s *Server) registerResources() {
	s.mcp.AddResource(mcp.NewResource(
		schemaURI,
		"Output schema",
		mcp.WithResourceDescription("Columns and target currencies of the loaded table"),
		mcp.WithMIMEType(jsonMIMEType),
	), s.handleSchemaResource)

	s.mcp.AddResource(mcp.NewResource(
		lastRunURI,
		"Latest run",
		mcp.WithResourceDescription("The most recent pipeline run with its query output"),
		mcp.WithMIMEType(jsonMIMEType),
	), s.handleLatestRunResource)
}

func (s *Server) handleSchemaResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	job := s.pipeline.Job()
	return jsonResource(schemaURI, map[string]any{
		"table":        job.Table,
		"columns":      job.Schema.Columns,
		"currencies":   job.Schema.Currencies,
		"meanCurrency": job.MeanCurrency,
	})
}

func (s *Server) handleLatestRunResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	runs, err := s.pipeline.ListRunLogs(1)
	if err != nil {
		return nil, err
	}
	var latest any
	if len(runs) > 0 {
		latest = runs[0]
	}
	return jsonResource(lastRunURI, latest)
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: jsonMIMEType,
			Text:     string(data),
		},
	}, nil
}
