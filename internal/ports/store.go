package ports

import (
	"context"

	"stockSync/internal/domain"
)

// SeriesStore persists one historical record per key (ticker symbol or feed name).
type SeriesStore[R domain.Record] interface {
	// Exists reports whether a local record exists for key.
	Exists(ctx context.Context, key string) (bool, error)
	// Load reads the whole record. Returns ErrNotFound if it does not exist.
	Load(ctx context.Context, key string) (*domain.Series[R], error)
	// Save replaces the whole record. Implementations never leave a partially written record.
	Save(ctx context.Context, key string, series *domain.Series[R]) error
}

// RunRecorder keeps an audit trail of synchronization attempts.
type RunRecorder interface {
	RecordRun(ctx context.Context, run SyncRun) error
}

// RunHistory reads the audit trail back, newest first.
type RunHistory interface {
	RecentRuns(ctx context.Context, key string, limit int) ([]SyncRun, error)
}
