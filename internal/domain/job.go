package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// QualityAuto in a job's quality list selects the source-capped ladder
// instead of a fixed set of labels.
const QualityAuto = "auto"

// Job is one transcode request: a source object in the blob store and the
// rendition labels to produce from it. Rows only move forward through
// pending -> processing -> completed|failed; putting a row back to pending
// is a deliberate operator action, never something a worker does on its own.
type Job struct {
	ID           uuid.UUID
	AssetID      uuid.UUID
	SourceKey    string
	Qualities    []string
	Status       JobStatus
	Progress     int
	ErrorMessage string
	Renditions   map[string]string
	CreatedAt    time.Time
	StartedAt    sql.NullTime
	CompletedAt  sql.NullTime
}

func NewJob(assetID uuid.UUID, sourceKey string, qualities []string) *Job {
	if len(qualities) == 0 {
		qualities = []string{QualityAuto}
	}
	return &Job{
		ID:        uuid.New(),
		AssetID:   assetID,
		SourceKey: sourceKey,
		Qualities: qualities,
		Status:    JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// Terminal reports whether the job has reached a state no worker will move
// it out of.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// WantsAutoLadder reports whether the job asks for the source-capped ladder
// rather than naming explicit qualities.
func (j *Job) WantsAutoLadder() bool {
	for _, q := range j.Qualities {
		if q == QualityAuto {
			return true
		}
	}
	return false
}
