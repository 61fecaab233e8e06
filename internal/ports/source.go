package ports

import (
	"context"
	"time"

	"stockSync/internal/domain"
)

// HistorySource fetches daily records from a remote provider.
type HistorySource[R domain.Record] interface {
	// Fetch returns the records dated within [start, end] (both inclusive calendar days),
	// ordered by date. An empty result means the provider has nothing for the range.
	// Unknown keys are reported as ErrNotFound, other failures wrap ErrSourceUnavailable.
	Fetch(ctx context.Context, key string, start, end time.Time) ([]R, error)

	// Name identifies the provider in logs and metrics.
	Name() string
}
