// Package tui provides an interactive chat over the indexed PDFs and emails.
// It implements a driving adapter following hexagonal architecture principles.
package tui

import (
	"github.com/custodia-labs/vellum/internal/core/ports/driving"
)

// Ports aggregates the driving ports the TUI uses.
type Ports struct {
	// Query answers questions.
	Query driving.QueryService

	// OwnerID is the owner the conversation runs as.
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
