package mcp

import (
	"github.com/custodia-labs/vellum/internal/core/ports/driving"
)

// Ports aggregates the driving ports the MCP server uses.
type Ports struct {
	// Query answers questions.
	Query driving.QueryService

	// Ingestion reports unit status. Optional.
	Ingestion driving.IngestionService

	// OwnerID is the owner every request runs as. The server is local and
	// single-user, so the owner is fixed at startup.
	OwnerID string
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Query == nil {
		return ErrMissingQueryService
	}
	if p.OwnerID == "" {
		return ErrMissingOwner
	}
	return nil
}
