package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/estroop3-gif/second-watch-network-sub004/internal/domain"
	"github.com/estroop3-gif/second-watch-network-sub004/internal/port"
)

const jobColumns = `id, asset_id, source_key, qualities, status, progress, error_message, renditions, created_at, started_at, completed_at`

type JobStore struct {
	db *sql.DB
}

func NewJobStore(store *Store) *JobStore {
	return &JobStore{db: store.db}
}

func (s *JobStore) Enqueue(ctx context.Context, job *domain.Job) error {
	qualities, err := json.Marshal(job.Qualities)
	if err != nil {
		return fmt.Errorf("encode qualities: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO transcode_jobs (id, asset_id, source_key, qualities, status, progress, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID.String(), job.AssetID.String(), job.SourceKey, string(qualities),
		string(job.Status), job.Progress, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// ClaimNext selects the oldest pending row and flips it to processing
// inside one transaction. The rows-affected check catches a row another
// claimer took between the select and the update.
func (s *JobStore) ClaimNext(ctx context.Context) (*domain.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
SELECT `+jobColumns+`
FROM transcode_jobs
WHERE status = 'pending'
ORDER BY created_at ASC
LIMIT 1`)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select next job: %w", err)
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
UPDATE transcode_jobs
SET status = 'processing', started_at = ?
WHERE id = ? AND status = 'pending'`, now, job.ID.String())
	if err != nil {
		return nil, fmt.Errorf("claim job %s: %w", job.ID, err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	job.Status = domain.JobStatusProcessing
	job.StartedAt = sql.NullTime{Time: now, Valid: true}
	return job, nil
}

func (s *JobStore) Claim(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
SELECT `+jobColumns+` FROM transcode_jobs WHERE id = ? AND status = 'pending'`, id.String())

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("select job %s: %w", id, err)
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
UPDATE transcode_jobs
SET status = 'processing', started_at = ?
WHERE id = ? AND status = 'pending'`, now, id.String())
	if err != nil {
		return nil, fmt.Errorf("claim job %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return nil, domain.ErrJobNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	job.Status = domain.JobStatusProcessing
	job.StartedAt = sql.NullTime{Time: now, Valid: true}
	return job, nil
}

func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+jobColumns+` FROM transcode_jobs WHERE id = ?`, id.String())

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

func (s *JobStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE transcode_jobs
SET progress = MAX(progress, ?)
WHERE id = ? AND status = 'processing'`, progress, id.String())
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

	_, err = s.db.ExecContext(ctx, `
UPDATE transcode_jobs
SET status = 'completed', renditions = ?, progress = 100, completed_at = ?
WHERE id = ? AND status = 'processing'`, string(payload), time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	return nil
}

func (s *JobStore) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE transcode_jobs
SET status = 'failed', error_message = ?, completed_at = ?
WHERE id = ? AND status = 'processing'`, domain.TruncateError(errMsg), time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("fail job %s: %w", id, err)
	}
	return nil
}

func (s *JobStore) Requeue(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE transcode_jobs
SET status = 'pending', progress = 0, error_message = '', renditions = NULL,
	started_at = NULL, completed_at = NULL
WHERE id = ? AND status <> 'pending'`, id.String())
	if err != nil {
		return fmt.Errorf("requeue job %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (s *JobStore) Counts(ctx context.Context) (map[domain.JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM transcode_jobs GROUP BY status`)
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

func scanJob(row *sql.Row) (*domain.Job, error) {
	var (
		job        domain.Job
		id         string
		assetID    string
		qualities  string
		status     string
		renditions sql.NullString
	)

	err := row.Scan(
		&id, &assetID, &job.SourceKey, &qualities, &status,
		&job.Progress, &job.ErrorMessage, &renditions, &job.CreatedAt,
		&job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if job.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse job id: %w", err)
	}
	if job.AssetID, err = uuid.Parse(assetID); err != nil {
		return nil, fmt.Errorf("parse asset id: %w", err)
	}
	if err := json.Unmarshal([]byte(qualities), &job.Qualities); err != nil {
		return nil, fmt.Errorf("decode qualities: %w", err)
	}
	if renditions.Valid && renditions.String != "" {
		if err := json.Unmarshal([]byte(renditions.String), &job.Renditions); err != nil {
			return nil, fmt.Errorf("decode renditions: %w", err)
		}
	}
	job.Status = domain.JobStatus(status)
	return &job, nil
}

var _ port.JobStore = (*JobStore)(nil)
