package port

import (
	"context"

	"github.com/google/uuid"

	"github.com/estroop3-gif/second-watch-network-sub004/internal/domain"
)

// JobStore is the durable queue. Claims are atomic: when several workers
// race, exactly one gets any given job.
type JobStore interface {
	Enqueue(ctx context.Context, job *domain.Job) error

	// ClaimNext moves the oldest pending job to processing and returns it.
	// An empty queue returns (nil, nil), not an error.
	ClaimNext(ctx context.Context) (*domain.Job, error)

	// Claim moves one specific pending job to processing. Returns
	// domain.ErrJobNotFound when the row is missing or already claimed.
	Claim(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	Get(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// UpdateProgress is advisory and monotonic: a stale smaller value never
	// overwrites a larger one, and failures should not abort the caller.
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error

	// Complete and Fail only act on a job still in processing; repeated or
	// late calls are no-ops, so a crashed-and-retried finisher is safe.
	Complete(ctx context.Context, id uuid.UUID, renditions map[string]string) error
	Fail(ctx context.Context, id uuid.UUID, errMsg string) error

	// Requeue puts a terminal or stuck job back to pending. Operator use
	// only; workers never call it.
	Requeue(ctx context.Context, id uuid.UUID) error

	// Counts reports how many jobs sit in each status.
	Counts(ctx context.Context) (map[domain.JobStatus]int, error)
}
