package client

import (
	"encoding/json"
	"time"
)

// SubmitResult covers both answers the submit endpoint can give: an async
// acceptance carries JobID and Status, a synchronous run carries the result
// fields directly.
type SubmitResult struct {
	JobID  string `json:"jobId,omitempty"`
	Status string `json:"status,omitempty"`

	Tool        string          `json:"tool,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
	DownloadURL string          `json:"downloadUrl,omitempty"`
	ExpiresAt   *time.Time      `json:"expiresAt,omitempty"`
}

// Async reports whether the server queued a job instead of answering inline.
func (r *SubmitResult) Async() bool {
	return r.JobID != ""
}

type JobStatus struct {
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

// Finished reports whether the job reached a terminal state.
func (s *JobStatus) Finished() bool {
	switch s.StatusName {
	case "completed", "failed", "cancelled":
		return true
	}
	return false
}

type JobList struct {
	Jobs    []*JobStatus `json:"jobs"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
	HasMore bool         `json:"has_more"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
