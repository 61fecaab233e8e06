package ports

import (
	"context"
	"time"

	"stockSync/internal/domain"
)

// Synchronizer brings a local record up to date with its remote source.
type Synchronizer[R domain.Record] interface {
	// EnsureFresh extends an existing local record with the missing tail, if warranted.
	EnsureFresh(ctx context.Context, key string) (domain.Result[R], error)
	// ForceFetch backfills the full history and stores it as a new local record.
	ForceFetch(ctx context.Context, key string) (domain.Result[R], error)
	// Source names the remote source behind the synchronizer.
	Source() string
}

// SyncRun is one audited synchronization attempt.
type SyncRun struct {
	RunID      string
	Key        string
	Source     string
	Outcome    domain.SyncOutcome
	Added      int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}
