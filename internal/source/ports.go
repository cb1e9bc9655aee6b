package source

import (
	"context"

	"hdbdash/internal/core"
)

// Ports for outbound adapters.
type (
	// Fetcher retrieves resale records matching a filter. An empty dataset
	// is a valid result.
	Fetcher interface {
		Fetch(ctx context.Context, filter core.Filter, limit int) (core.Dataset, error)
	}
)
