package tui

import "errors"

// ErrMissingQueryService is returned when the query service is not provided.
var ErrMissingQueryService = errors.New("tui: query service is required")

// ErrMissingOwner is returned when no owner is configured.
var ErrMissingOwner = errors.New("tui: owner id is required")
