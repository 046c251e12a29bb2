package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/estroop3-gif/second-watch-network-sub004/internal/domain"
	"github.com/estroop3-gif/second-watch-network-sub004/internal/port"
)

const jobColumns = `id, asset_id, source_key, qualities, status, progress, error_message, renditions, created_at, started_at, completed_at`

type JobStore struct {
	pool *pgxpool.Pool
}

func NewJobStore(store *Store) *JobStore {
	return &JobStore{pool: store.pool}
}

func (s *JobStore) Enqueue(ctx context.Context, job *domain.Job) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO transcode_jobs (id, asset_id, source_key, qualities, status, progress, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.AssetID, job.SourceKey, job.Qualities, string(job.Status), job.Progress, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// ClaimNext takes the oldest pending row. SKIP LOCKED keeps racing workers
// from queueing behind each other's claim; each sees the next unlocked row.
func (s *JobStore) ClaimNext(ctx context.Context) (*domain.Job, error) {
	row := s.pool.QueryRow(ctx, `
WITH next_job AS (
	SELECT id
	FROM transcode_jobs
	WHERE status = 'pending'
	ORDER BY created_at ASC
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
UPDATE transcode_jobs
SET status = 'processing', started_at = now()
FROM next_job
WHERE transcode_jobs.id = next_job.id
RETURNING `+jobColumns)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return job, nil
}

func (s *JobStore) Claim(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	row := s.pool.QueryRow(ctx, `
UPDATE transcode_jobs
SET status = 'processing', started_at = now()
WHERE id = $1 AND status = 'pending'
RETURNING `+jobColumns, id)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("claim job %s: %w", id, err)
	}
	return job, nil
}

func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM transcode_jobs WHERE id = $1`, id)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

func (s *JobStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	_, err := s.pool.Exec(ctx, `
UPDATE transcode_jobs
SET progress = GREATEST(progress, $2)
WHERE id = $1 AND status = 'processing'`, id, progress)
	if err != nil {
		return fmt.Errorf("update progress for %s: %w", id, err)
	}
	return nil
}

func (s *JobStore) Complete(ctx context.Context, id uuid.UUID, renditions map[string]string) error {
	payload, err := json.Marshal(renditions)
	if err != nil {
		return fmt.Errorf("encode renditions: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
UPDATE transcode_jobs
SET status = 'completed', renditions = $2, progress = 100, completed_at = now()
WHERE id = $1 AND status = 'processing'`, id, payload)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	return nil
}

func (s *JobStore) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
UPDATE transcode_jobs
SET status = 'failed', error_message = $2, completed_at = now()
WHERE id = $1 AND status = 'processing'`, id, domain.TruncateError(errMsg))
	if err != nil {
		return fmt.Errorf("fail job %s: %w", id, err)
	}
	return nil
}

func (s *JobStore) Requeue(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE transcode_jobs
SET status = 'pending', progress = 0, error_message = '', renditions = NULL,
	started_at = NULL, completed_at = NULL
WHERE id = $1 AND status <> 'pending'`, id)
	if err != nil {
		return fmt.Errorf("requeue job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (s *JobStore) Counts(ctx context.Context) (map[domain.JobStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, count(*) FROM transcode_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.JobStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.JobStatus(status)] = n
	}
	return counts, rows.Err()
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var renditions []byte

	err := row.Scan(
		&job.ID, &job.AssetID, &job.SourceKey, &job.Qualities, &job.Status,
		&job.Progress, &job.ErrorMessage, &renditions, &job.CreatedAt,
		&job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(renditions) > 0 {
		if err := json.Unmarshal(renditions, &job.Renditions); err != nil {
			return nil, fmt.Errorf("decode renditions: %w", err)
		}
	}
	return &job, nil
}

var _ port.JobStore = (*JobStore)(nil)
