package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/vellum/internal/core/domain"
)

// uriScheme is the custom URI scheme for Vellum resources.
const uriScheme = "vellum://"

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	if s.ports.Ingestion == nil {
		return
	}

	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "units",
		Name:        "units",
		Description: "Every ingested document and email with its category and status",
		MIMEType:    "application/json",
	}, s.handleUnitsResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "units/{sourceId}",
		Name:        "unit",
		Description: "Ingestion record of one document or email",
		MIMEType:    "application/json",
	}, s.handleUnitResource)
}

func (s *Server) handleUnitsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	records, err := s.ports.Ingestion.List(ctx, s.ports.OwnerID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("listing units: %w", err)
	}

	units := make([]UnitOutput, len(records))
	for i := range records {
		units[i] = unitOutput(&records[i])
	}
	return jsonResource(req.Params.URI, units)
}

func (s *Server) handleUnitResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	sourceID := extractSourceID(req.Params.URI)
	if sourceID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	rec, err := s.ports.Ingestion.Status(ctx, sourceID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && rec.OwnerID != s.ports.OwnerID) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("getting unit: %w", err)
	}
	return jsonResource(req.Params.URI, unitOutput(rec))
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling resource: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractSourceID extracts the unit ID from a URI like vellum://units/{sourceId}.
func extractSourceID(uri string) string {
	const prefix = uriScheme + "units/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}
	id := strings.TrimPrefix(uri, prefix)
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
