package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/toolscheap/toolscheap/internal/apperror"
	"github.com/toolscheap/toolscheap/internal/job"
	"github.com/toolscheap/toolscheap/internal/logger"
)

type JobListResponse struct {
	Jobs    []JobStatusResponse `json:"jobs"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
	HasMore bool                `json:"has_more"`
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		apperror.WriteJSON(w, r, apperror.ErrUnauthorized)
		return
	}

	limit := formInt(r, "limit")
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := formInt(r, "offset")
	if offset < 0 {
		offset = 0
	}

	jobs, err := s.Jobs.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrInternal))
		return
	}

	resp := JobListResponse{
		Jobs:    make([]JobStatusResponse, len(jobs)),
		Limit:   limit,
		Offset:  offset,
		HasMore: len(jobs) == limit,
	}
	for i, j := range jobs {
		resp.Jobs[i] = statusResponse(j)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCancelJob withdraws a pending job. Jobs a worker already claimed
// cannot be cancelled through the API; the caller sees not-found.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
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

	if err := s.Jobs.Cancel(r.Context(), id); err != nil {
		if errors.Is(err, job.ErrNotFound) {
			apperror.WriteJSON(w, r, apperror.WithMessage(apperror.ErrBadRequest, "job can no longer be cancelled"))
			return
		}
		apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrInternal))
		return
	}

	logger.FromContext(r.Context()).Info("job cancelled", "job_id", id)

	cancelled, err := s.Jobs.Get(r.Context(), id)
	if err != nil {
		apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrInternal))
		return
	}
	writeJSON(w, http.StatusOK, statusResponse(cancelled))
}
