package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/estroop3-gif/second-watch-network-sub004/internal/domain"
	"github.com/estroop3-gif/second-watch-network-sub004/internal/port"
)

// Processor is the slice of TranscodeWorker the runner needs.
type Processor interface {
	Process(ctx context.Context, job *domain.Job) error
}

// Outcomes of a single-shot run.
const (
	OutcomeNoPendingJobs = "no_pending_jobs"
	OutcomeCompleted     = "completed"
	OutcomeFailed        = "failed"
)

// Result reports what one claim-and-process cycle did.
type Result struct {
	Outcome string `json:"outcome"`
	JobID   string `json:"job_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

const claimErrorBackoff = 2 * time.Second

// Runner drives a TranscodeWorker from the queue. Run polls until its
// context ends, RunOnce does a single cycle, and a Notifier lets an API
// surface cut the poll wait short.
type Runner struct {
	jobs      port.JobStore
	processor Processor
	interval  time.Duration
	notifier  *Notifier
	log       *logrus.Logger

	// SingleRun makes Run return once the queue is empty instead of
	// sleeping, which is what batch and drain invocations want.
	SingleRun bool
}

func NewRunner(jobs port.JobStore, processor Processor, interval time.Duration, log *logrus.Logger) *Runner {
	return &Runner{
		jobs:      jobs,
		processor: processor,
		interval:  interval,
		log:       log,
	}
}

// WithNotifier wires a wake signal into the poll loop.
func (r *Runner) WithNotifier(n *Notifier) *Runner {
	r.notifier = n
	return r
}

// Run claims and processes jobs until the context ends. Claim errors back
// off briefly; an empty queue waits out the poll interval or a notify.
func (r *Runner) Run(ctx context.Context) error {
	r.log.WithField("interval", r.interval).Info("worker loop started")

	for {
		select {
		case <-ctx.Done():
			r.log.Info("worker loop stopped")
			return ctx.Err()
		default:
		}

		job, err := r.jobs.ClaimNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.log.WithError(err).Error("claim failed")
			r.wait(ctx, claimErrorBackoff)
			continue
		}

		if job == nil {
			if r.SingleRun {
				r.log.Info("queue drained")
				return nil
			}
			r.wait(ctx, r.interval)
			continue
		}

		r.log.WithField("job_id", job.ID).Info("job claimed")
		if err := r.processor.Process(ctx, job); err != nil {
			r.log.WithField("job_id", job.ID).WithError(err).Error("job processing failed")
		}
	}
}

// RunOnce claims at most one job and processes it to a terminal state.
func (r *Runner) RunOnce(ctx context.Context) (*Result, error) {
	job, err := r.jobs.ClaimNext(ctx)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return &Result{Outcome: OutcomeNoPendingJobs}, nil
	}
	return r.ProcessJob(ctx, job)
}

// ProcessJob runs one already-claimed job and reports its outcome. The
// outcome mirrors the job row, not just the returned error, so a completed
// job with a failed downstream merge still reads as completed.
func (r *Runner) ProcessJob(ctx context.Context, job *domain.Job) (*Result, error) {
	processErr := r.processor.Process(ctx, job)

	current, err := r.jobs.Get(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	result := &Result{JobID: job.ID.String()}
	switch current.Status {
	case domain.JobStatusCompleted:
		result.Outcome = OutcomeCompleted
		if processErr != nil {
			result.Error = processErr.Error()
		}
	case domain.JobStatusFailed:
		result.Outcome = OutcomeFailed
		result.Error = current.ErrorMessage
	default:
		result.Outcome = OutcomeFailed
		if processErr != nil {
			result.Error = processErr.Error()
		}
	}
	return result, nil
}

func (r *Runner) wait(ctx context.Context, d time.Duration) {
	var wake <-chan struct{}
	if r.notifier != nil {
		wake = r.notifier.Wake()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-wake:
	}
}
