package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/estroop3-gif/second-watch-network-sub004/internal/domain"
	"github.com/estroop3-gif/second-watch-network-sub004/internal/infrastructure/logger"
	"github.com/estroop3-gif/second-watch-network-sub004/internal/port"
	"github.com/estroop3-gif/second-watch-network-sub004/internal/service"
)

const (
	maxRequestBody = 1 << 20
	presignTTL     = time.Hour
)

type Handlers struct {
	jobs     port.JobStore
	blobs    port.BlobStore
	runner   *service.Runner
	notifier *service.Notifier
	log      *logrus.Logger
}

func NewHandlers(jobs port.JobStore, blobs port.BlobStore, runner *service.Runner, notifier *service.Notifier, log *logrus.Logger) *Handlers {
	return &Handlers{
		jobs:     jobs,
		blobs:    blobs,
		runner:   runner,
		notifier: notifier,
		log:      log,
	}
}

// transcodeRequest covers all three push shapes: empty (claim whatever is
// oldest), job_id only (claim that row), or a fully-specified job (recorded
// and claimed on receipt).
type transcodeRequest struct {
	JobID     string   `json:"job_id,omitempty"`
	AssetID   string   `json:"asset_id,omitempty"`
	SourceKey string   `json:"source_key,omitempty"`
	Qualities []string `json:"qualities,omitempty"`
}

type transcodeResponse struct {
	Outcome    string            `json:"outcome"`
	JobID      string            `json:"job_id,omitempty"`
	Error      string            `json:"error,omitempty"`
	Renditions map[string]string `json:"renditions,omitempty"`
	URLs       map[string]string `json:"urls,omitempty"`
}

type enqueueRequest struct {
	AssetID   string   `json:"asset_id"`
	SourceKey string   `json:"source_key"`
	Qualities []string `json:"qualities,omitempty"`
}

// jobView is the wire shape of a job row.
type jobView struct {
	ID           string            `json:"id"`
	AssetID      string            `json:"asset_id"`
	SourceKey    string            `json:"source_key"`
	Qualities    []string          `json:"qualities"`
	Status       string            `json:"status"`
	Progress     int               `json:"progress"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Renditions   map[string]string `json:"renditions,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

func newJobView(job *domain.Job) jobView {
	v := jobView{
		ID:           job.ID.String(),
		AssetID:      job.AssetID.String(),
		SourceKey:    job.SourceKey,
		Qualities:    job.Qualities,
		Status:       string(job.Status),
		Progress:     job.Progress,
		ErrorMessage: job.ErrorMessage,
		Renditions:   job.Renditions,
		CreatedAt:    job.CreatedAt,
	}
	if job.StartedAt.Valid {
		t := job.StartedAt.Time
		v.StartedAt = &t
	}
	if job.CompletedAt.Valid {
		t := job.CompletedAt.Time
		v.CompletedAt = &t
	}
	return v
}

// Transcode processes one job synchronously and reports the structured
// outcome, so a push invoker (function trigger, cron hook) gets its result
// in the response body instead of polling.
func (h *Handlers) Transcode() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req transcodeRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		job, status, err := h.resolveJob(r, &req)
		if err != nil {
			writeError(w, status, err.Error())
			return
		}

		// Empty payload: one claim-attempt-and-process cycle.
		if job == nil {
			result, err := h.runner.RunOnce(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			h.writeResult(w, r, result)
			return
		}

		result, err := h.runner.ProcessJob(r.Context(), job)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		h.writeResult(w, r, result)
	}
}

// resolveJob turns the request into a claimed job, or nil for the empty
// payload. A fully-specified job is recorded first so its row exists for
// progress and terminal writes, then claimed like any other.
func (h *Handlers) resolveJob(r *http.Request, req *transcodeRequest) (*domain.Job, int, error) {
	ctx := r.Context()

	if req.SourceKey != "" {
		assetID, err := uuid.Parse(req.AssetID)
		if err != nil {
			return nil, http.StatusBadRequest, errors.New("invalid asset_id")
		}
		job := domain.NewJob(assetID, req.SourceKey, req.Qualities)
		if req.JobID != "" {
			id, err := uuid.Parse(req.JobID)
			if err != nil {
				return nil, http.StatusBadRequest, errors.New("invalid job_id")
			}
			job.ID = id
		}
		if err := h.jobs.Enqueue(ctx, job); err != nil {
			return nil, http.StatusInternalServerError, err
		}
		claimed, err := h.jobs.Claim(ctx, job.ID)
		if err != nil {
			return nil, http.StatusConflict, err
		}
		return claimed, 0, nil
	}

	if req.JobID != "" {
		id, err := uuid.Parse(req.JobID)
		if err != nil {
			return nil, http.StatusBadRequest, errors.New("invalid job_id")
		}
		claimed, err := h.jobs.Claim(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrJobNotFound) {
				return nil, http.StatusConflict, errors.New("job is not pending")
			}
			return nil, http.StatusInternalServerError, err
		}
		return claimed, 0, nil
	}

	return nil, 0, nil
}

func (h *Handlers) writeResult(w http.ResponseWriter, r *http.Request, result *service.Result) {
	resp := transcodeResponse{
		Outcome: result.Outcome,
		JobID:   result.JobID,
		Error:   result.Error,
	}

	if result.Outcome == service.OutcomeCompleted {
		if id, err := uuid.Parse(result.JobID); err == nil {
			if job, err := h.jobs.Get(r.Context(), id); err == nil {
				resp.Renditions = job.Renditions
				resp.URLs = h.presignAll(r, job.Renditions)
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) presignAll(r *http.Request, renditions map[string]string) map[string]string {
	if len(renditions) == 0 {
		return nil
	}
	urls := make(map[string]string, len(renditions))
	for quality, key := range renditions {
		url, err := h.blobs.PresignedURL(r.Context(), key, presignTTL)
		if err != nil {
			h.log.WithField("key", logger.Sanitize(key)).WithError(err).Warn("presign failed")
			continue
		}
		urls[quality] = url
	}
	return urls
}

// EnqueueJob inserts a pending row and wakes the in-process worker. The
// response is the accepted row; callers poll GET /v1/jobs/{id} for the
// outcome.
func (h *Handlers) EnqueueJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req enqueueRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		assetID, err := uuid.Parse(req.AssetID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid asset_id")
			return
		}
		if req.SourceKey == "" {
			writeError(w, http.StatusBadRequest, "source_key is required")
			return
		}

		job := domain.NewJob(assetID, req.SourceKey, req.Qualities)
		if err := h.jobs.Enqueue(r.Context(), job); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		if h.notifier != nil {
			h.notifier.Notify()
		}

		h.log.WithFields(logrus.Fields{
			"job_id":     job.ID,
			"source_key": logger.Sanitize(job.SourceKey),
		}).Info("job enqueued")
		writeJSON(w, http.StatusAccepted, newJobView(job))
	}
}

func (h *Handlers) GetJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid job id")
			return
		}

		job, err := h.jobs.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, domain.ErrJobNotFound) {
				writeError(w, http.StatusNotFound, "job not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, newJobView(job))
	}
}

// Health reports queue depth per status; the query doubles as a database
// liveness check.
func (h *Handlers) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := h.jobs.Counts(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}

		jobs := make(map[string]int, len(counts))
		for status, n := range counts {
			jobs[string(status)] = n
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "jobs": jobs})
	}
}

// decodeBody parses the JSON request body. An empty body decodes to the
// zero value, which the transcode surface treats as "claim anything".
func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return errors.New("read request body")
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
