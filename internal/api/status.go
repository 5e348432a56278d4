package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/toolscheap/toolscheap/internal/apperror"
	"github.com/toolscheap/toolscheap/internal/job"
)

type JobStatusResponse struct {
	JobID         string     `json:"jobId"`
	Tool          string     `json:"tool"`
	Status        int        `json:"status"`
	StatusName    string     `json:"statusName"`
	Progress      int        `json:"progress"`
	OutputFileKey string     `json:"outputFileKey,omitempty"`
	DownloadURL   string     `json:"downloadUrl,omitempty"`
	URLExpiresAt  *time.Time `json:"signedUrlExpiresAt,omitempty"`
	ErrorMessage  string     `json:"errorMessage,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// handleJobStatus is the polling endpoint. Missing jobs and foreign jobs
// map to the response-only not-found/unauthorized statuses; neither is ever
// stored on a job row.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		apperror.WriteJSON(w, r, apperror.WithMessage(apperror.ErrBadRequest, "invalid job id"))
		return
	}

	j, err := s.Jobs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			apperror.WriteJSON(w, r, apperror.ErrJobNotFound)
			return
		}
		apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrInternal))
		return
	}

	if !j.OwnedBy(userIDPtr(r.Context())) {
		apperror.WriteJSON(w, r, apperror.ErrUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse(j))
}

// statusResponse translates a job row into the polling shape. The cached
// signed URL is returned as-is while it is still valid rather than
// re-signed on every poll.
func statusResponse(j *job.Job) JobStatusResponse {
	resp := JobStatusResponse{
		JobID:       j.ID.String(),
		Tool:        string(j.ToolType),
		Status:      int(j.Status),
		StatusName:  j.Status.String(),
		Progress:    j.Progress,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}

	switch j.Status {
	case job.StatusCompleted:
		resp.OutputFileKey = j.OutputFileKey
		if j.URLExpiresAt != nil && j.URLExpiresAt.After(time.Now()) {
			resp.DownloadURL = j.DownloadURL
			resp.URLExpiresAt = j.URLExpiresAt
		}
	case job.StatusFailed:
		resp.ErrorMessage = j.ErrorMessage
	}
	return resp
}
