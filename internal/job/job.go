package job

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ToolType identifies which processing tool a job runs.
type ToolType string

const (
	ToolPdfMerge              ToolType = "pdf_merge"
	ToolPdfSplit              ToolType = "pdf_split"
	ToolImageCompress         ToolType = "image_compress"
	ToolImageRemoveBackground ToolType = "image_remove_background"
	ToolDocToPdf              ToolType = "doc_to_pdf"
	ToolExcelClean            ToolType = "excel_clean"
	ToolAiSummarize           ToolType = "ai_summarize"
	ToolJsonFormat            ToolType = "json_format"
	ToolRegexGenerate         ToolType = "regex_generate"
	ToolVideoCompress         ToolType = "video_compress"
)

// AllTools lists every tool the platform knows about.
var AllTools = []ToolType{
	ToolPdfMerge,
	ToolPdfSplit,
	ToolImageCompress,
	ToolImageRemoveBackground,
	ToolDocToPdf,
	ToolExcelClean,
	ToolAiSummarize,
	ToolJsonFormat,
	ToolRegexGenerate,
	ToolVideoCompress,
}

// ValidTool reports whether t names a known tool.
func ValidTool(t ToolType) bool {
	for _, known := range AllTools {
		if t == known {
			return true
		}
	}
	return false
}

// AlwaysSync reports whether t runs inline on the request path and never
// produces a persisted job. PdfMerge is sync below the size threshold only,
// so it is not listed here.
func AlwaysSync(t ToolType) bool {
	return t == ToolJsonFormat || t == ToolRegexGenerate
}

// Status is the lifecycle state of a job.
type Status int

const (
	StatusPending    Status = 0
	StatusProcessing Status = 1
	StatusCompleted  Status = 2
	StatusFailed     Status = 3
	StatusCancelled  Status = 4
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProcessing:
		return "processing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

var (
	ErrInvalidTransition = errors.New("job: invalid status transition")
	ErrInvalidTool       = errors.New("job: unknown tool type")
)

// Job is one unit of asynchronous work: a file (or set of files) to run
// through a tool, its lifecycle state, and the pointers to its input and
// output in storage.
type Job struct {
	ID            uuid.UUID
	UserID        *uuid.UUID
	ToolType      ToolType
	Status        Status
	Progress      int
	InputFileKey  string
	OutputFileKey string
	DownloadURL   string
	URLExpiresAt  *time.Time
	Params        []byte
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// New returns a pending job. userID may be nil for anonymous submissions.
func New(userID *uuid.UUID, tool ToolType, inputKey string, params []byte) (*Job, error) {
	if !ValidTool(tool) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTool, tool)
	}
	now := time.Now().UTC()
	return &Job{
		ID:           uuid.New(),
		UserID:       userID,
		ToolType:     tool,
		Status:       StatusPending,
		Progress:     0,
		InputFileKey: inputKey,
		Params:       params,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Start moves the job from pending to processing.
func (j *Job) Start() error {
	if j.Status != StatusPending {
		return fmt.Errorf("%w: %s -> processing", ErrInvalidTransition, j.Status)
	}
	now := time.Now().UTC()
	j.Status = StatusProcessing
	j.StartedAt = &now
	j.UpdatedAt = now
	return nil
}

// SetProgress records progress in percent. Values are clamped to [0, 100]
// and progress never moves backwards.
func (j *Job) SetProgress(pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if pct > j.Progress {
		j.Progress = pct
		j.UpdatedAt = time.Now().UTC()
	}
}

// Complete finishes the job with its output location and download link.
// The link and its expiry are cached on the row so status polls can return
// them without re-signing.
func (j *Job) Complete(outputKey, downloadURL string, urlExpiresAt time.Time) error {
	if j.Status != StatusProcessing {
		return fmt.Errorf("%w: %s -> completed", ErrInvalidTransition, j.Status)
	}
	now := time.Now().UTC()
	j.Status = StatusCompleted
	j.Progress = 100
	j.OutputFileKey = outputKey
	j.DownloadURL = downloadURL
	j.URLExpiresAt = &urlExpiresAt
	j.ErrorMessage = ""
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// Fail marks the job failed with a user-visible message. A job may fail
// straight from pending: entitlement denials are recorded this way so the
// refusal leaves an audit trail without ever being queued.
func (j *Job) Fail(message string) error {
	if j.Status.Terminal() {
		return fmt.Errorf("%w: %s -> failed", ErrInvalidTransition, j.Status)
	}
	now := time.Now().UTC()
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.OutputFileKey = ""
	j.DownloadURL = ""
	j.URLExpiresAt = nil
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// Cancel withdraws a job that has not finished. A cancelled processing job
// does not interrupt a worker mid-run; the attempt's result is discarded.
func (j *Job) Cancel() error {
	if j.Status != StatusPending && j.Status != StatusProcessing {
		return fmt.Errorf("%w: %s -> cancelled", ErrInvalidTransition, j.Status)
	}
	now := time.Now().UTC()
	j.Status = StatusCancelled
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// OwnedBy reports whether the job belongs to userID. Anonymous jobs have no
// owner and are visible to whoever holds the job ID.
func (j *Job) OwnedBy(userID *uuid.UUID) bool {
	if j.UserID == nil {
		return true
	}
	return userID != nil && *userID == *j.UserID
}
