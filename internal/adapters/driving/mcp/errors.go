// Package mcp exposes question answering and ingestion status to AI
// assistants over the Model Context Protocol.
package mcp

import "errors"

// ErrMissingQueryService is returned when the query service is not provided.
var ErrMissingQueryService = errors.New("mcp: query service is required")

// ErrMissingOwner is returned when no owner is configured.
var ErrMissingOwner = errors.New("mcp: owner id is required")
