package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/toolscheap/toolscheap/internal/apperror"
	"github.com/toolscheap/toolscheap/internal/job"
	"github.com/toolscheap/toolscheap/internal/logger"
	"github.com/toolscheap/toolscheap/internal/metrics"
	"github.com/toolscheap/toolscheap/internal/storage"
	"github.com/toolscheap/toolscheap/internal/tools"
)

const multipartMemory = 32 << 20

type SubmitResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

type SyncResponse struct {
	Tool        string          `json:"tool"`
	Output      json.RawMessage `json:"output,omitempty"`
	DownloadURL string          `json:"downloadUrl,omitempty"`
	ExpiresAt   *time.Time      `json:"expiresAt,omitempty"`
}

// handleSubmit is the single tool entry point. Always-sync tools run inline;
// everything else uploads the input and enqueues a job. PDF merge picks a
// side based on total upload size.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	tool := job.ToolType(r.PathValue("tool"))
	if !job.ValidTool(tool) {
		apperror.WriteJSON(w, r, apperror.WithMessage(apperror.ErrBadRequest, "unknown tool: "+string(tool)))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadSize)

	if tool == job.ToolRegexGenerate {
		s.runRegexGenerate(w, r)
		return
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		apperror.WriteJSON(w, r, apperror.WrapWithMessage(err, "invalid_multipart", "could not parse multipart form", http.StatusBadRequest))
		return
	}

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		apperror.WriteJSON(w, r, apperror.WithMessage(apperror.ErrBadRequest, "a file upload is required"))
		return
	}
	var totalSize int64
	for _, fh := range files {
		if err := ValidateUpload(tool, fh.Filename); err != nil {
			apperror.WriteJSON(w, r, err)
			return
		}
		totalSize += fh.Size
	}

	userID := userIDPtr(r.Context())

	if err := s.Entitlements.Check(r.Context(), userID, tool, totalSize); err != nil {
		if apperror.Is(err, apperror.ErrUpgradeRequired) && !job.AlwaysSync(tool) {
			s.recordDeniedJob(r, userID, tool, err)
		}
		apperror.WriteJSON(w, r, err)
		return
	}

	switch {
	case tool == job.ToolJsonFormat:
		s.runJSONFormat(w, r, files[0])
		return
	case tool == job.ToolPdfMerge && totalSize < s.SyncThreshold:
		s.runSyncPdfMerge(w, r, files)
		return
	}

	s.enqueueJob(w, r, tool, userID, files)
}

// recordDeniedJob persists a failed job so the refusal shows up in the
// user's history, without uploading anything or touching the queue.
func (s *Server) recordDeniedJob(r *http.Request, userID *uuid.UUID, tool job.ToolType, cause error) {
	j, err := job.New(userID, tool, "", nil)
	if err != nil {
		return
	}
	_ = j.Fail(apperror.SafeMessage(cause))
	if err := s.Jobs.Create(r.Context(), j); err != nil {
		logger.FromContext(r.Context()).Warn("could not record denied job", "error", err)
	}
}

func (s *Server) enqueueJob(w http.ResponseWriter, r *http.Request, tool job.ToolType, userID *uuid.UUID, files []*multipart.FileHeader) {
	ctx := r.Context()

	params, err := paramsFromForm(tool, r)
	if err != nil {
		apperror.WriteJSON(w, r, err)
		return
	}

	inputKey, err := s.uploadTemp(r, tool, userID, files[0])
	if err != nil {
		apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrInternal))
		return
	}

	// Additional merge inputs ride along in the params envelope.
	if tool == job.ToolPdfMerge && len(files) > 1 {
		extra := make([]string, 0, len(files)-1)
		for _, fh := range files[1:] {
			key, err := s.uploadTemp(r, tool, userID, fh)
			if err != nil {
				apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrInternal))
				return
			}
			extra = append(extra, key)
		}
		params, err = job.EncodeParams(tool, job.PdfMergeParams{ExtraFileKeys: extra})
		if err != nil {
			apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrInternal))
			return
		}
	}

	j, err := job.New(userID, tool, inputKey, params)
	if err != nil {
		apperror.WriteJSON(w, r, apperror.WithMessage(apperror.ErrBadRequest, err.Error()))
		return
	}

	if err := s.Enqueuer.Enqueue(ctx, j); err != nil {
		// The job row never made it in, so the temp blob is an orphan.
		if delErr := s.Storage.Delete(ctx, inputKey); delErr != nil {
			logger.FromContext(ctx).Warn("orphaned temp input", "key", inputKey, "error", delErr)
		}
		apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrInternal))
		return
	}

	metrics.JobsEnqueuedTotal.WithLabelValues(string(tool)).Inc()

	writeJSON(w, http.StatusOK, SubmitResponse{JobID: j.ID.String(), Status: j.Status.String()})
}

func (s *Server) uploadTemp(r *http.Request, tool job.ToolType, userID *uuid.UUID, fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	key := s.tempKey(tool, userID, fh.Filename)
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(fh.Filename))
	}
	if err := s.Storage.Upload(r.Context(), key, f, contentType, fh.Size); err != nil {
		return "", err
	}
	return key, nil
}

func (s *Server) tempKey(tool job.ToolType, userID *uuid.UUID, filename string) string {
	owner := "anonymous"
	if userID != nil {
		owner = userID.String()
	}
	return storage.BuildKey(string(tool)+"/temp/"+owner, filename)
}

// paramsFromForm maps multipart form fields onto the tool's typed options.
// Missing fields fall back to the option defaults.
func paramsFromForm(tool job.ToolType, r *http.Request) ([]byte, error) {
	var (
		params []byte
		err    error
	)
	switch tool {
	case job.ToolVideoCompress:
		params, err = job.EncodeParams(tool, job.VideoCompressParams{
			CRF:     formInt(r, "crf"),
			Bitrate: r.FormValue("bitrate"),
			Width:   formInt(r, "width"),
			Height:  formInt(r, "height"),
			Preset:  r.FormValue("preset"),
		})
	case job.ToolImageCompress:
		params, err = job.EncodeParams(tool, job.ImageCompressParams{
			Quality:  formInt(r, "quality"),
			MaxWidth: formInt(r, "max_width"),
		})
	case job.ToolPdfSplit:
		params, err = job.EncodeParams(tool, job.PdfSplitParams{
			Pages: r.FormValue("pages"),
		})
	case job.ToolExcelClean:
		params, err = job.EncodeParams(tool, job.ExcelCleanParams{
			DropEmptyRows:    formBool(r, "drop_empty_rows"),
			TrimWhitespace:   formBool(r, "trim_whitespace"),
			RemoveDuplicates: formBool(r, "remove_duplicates"),
		})
	case job.ToolAiSummarize:
		params, err = job.EncodeParams(tool, job.AiSummarizeParams{
			MaxWords: formInt(r, "max_words"),
			Language: r.FormValue("language"),
		})
	default:
		return nil, nil
	}
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrInternal)
	}
	return params, nil
}

func (s *Server) runJSONFormat(w http.ResponseWriter, r *http.Request, fh *multipart.FileHeader) {
	data, err := readUpload(fh)
	if err != nil {
		apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrInternal))
		return
	}

	formatted, err := tools.FormatJSON(data, tools.JSONFormatOptions{
		Minify:   formBool(r, "minify"),
		Indent:   formInt(r, "indent"),
		SortKeys: formBool(r, "sort_keys"),
	})
	if err != nil {
		metrics.SyncToolsTotal.WithLabelValues(string(job.ToolJsonFormat), "error").Inc()
		apperror.WriteJSON(w, r, err)
		return
	}

	url, expiresAt, err := s.storeSyncResult(r, job.ToolJsonFormat, "formatted.json", "application/json", formatted)
	if err != nil {
		apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrInternal))
		return
	}

	s.recordSyncUsage(r, job.ToolJsonFormat, int64(len(data)))
	metrics.SyncToolsTotal.WithLabelValues(string(job.ToolJsonFormat), "success").Inc()

	writeJSON(w, http.StatusOK, SyncResponse{
		Tool:        string(job.ToolJsonFormat),
		Output:      json.RawMessage(formatted),
		DownloadURL: url,
		ExpiresAt:   &expiresAt,
	})
}

func (s *Server) runRegexGenerate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		apperror.WriteJSON(w, r, apperror.WithMessage(apperror.ErrBadRequest, "could not parse form"))
		return
	}

	result, err := tools.GenerateRegex(tools.RegexRequest{
		Description: r.FormValue("description"),
		TestStrings: r.Form["test"],
	})
	if err != nil {
		metrics.SyncToolsTotal.WithLabelValues(string(job.ToolRegexGenerate), "error").Inc()
		apperror.WriteJSON(w, r, err)
		return
	}

	s.recordSyncUsage(r, job.ToolRegexGenerate, 0)
	metrics.SyncToolsTotal.WithLabelValues(string(job.ToolRegexGenerate), "success").Inc()

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) runSyncPdfMerge(w http.ResponseWriter, r *http.Request, files []*multipart.FileHeader) {
	inputs := make([][]byte, 0, len(files))
	var totalSize int64
	for _, fh := range files {
		data, err := readUpload(fh)
		if err != nil {
			apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrInternal))
			return
		}
		inputs = append(inputs, data)
		totalSize += int64(len(data))
	}

	merged, err := tools.MergePDFs(inputs)
	if err != nil {
		metrics.SyncToolsTotal.WithLabelValues(string(job.ToolPdfMerge), "error").Inc()
		apperror.WriteJSON(w, r, err)
		return
	}

	url, expiresAt, err := s.storeSyncResult(r, job.ToolPdfMerge, "merged.pdf", "application/pdf", merged)
	if err != nil {
		apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrInternal))
		return
	}

	s.recordSyncUsage(r, job.ToolPdfMerge, totalSize)
	metrics.SyncToolsTotal.WithLabelValues(string(job.ToolPdfMerge), "success").Inc()

	writeJSON(w, http.StatusOK, SyncResponse{
		Tool:        string(job.ToolPdfMerge),
		DownloadURL: url,
		ExpiresAt:   &expiresAt,
	})
}

// storeSyncResult uploads an inline tool result and signs a download URL.
func (s *Server) storeSyncResult(r *http.Request, tool job.ToolType, filename, contentType string, data []byte) (string, time.Time, error) {
	owner := "anonymous"
	if id, ok := GetUserID(r.Context()); ok {
		owner = id.String()
	}
	key := storage.BuildKey(string(tool)+"/"+owner, filename)
	if err := s.Storage.Upload(r.Context(), key, bytes.NewReader(data), contentType, int64(len(data))); err != nil {
		return "", time.Time{}, err
	}
	expiresAt := time.Now().UTC().Add(s.signedURLTTL())
	return s.Signer.Sign(key, expiresAt), expiresAt, nil
}

func (s *Server) recordSyncUsage(r *http.Request, tool job.ToolType, size int64) {
	rec := job.NewUsageRecord(userIDPtr(r.Context()), nil, tool, size)
	if err := s.Usage.Record(r.Context(), rec); err != nil {
		logger.FromContext(r.Context()).Warn("could not record usage", "tool", tool, "error", err)
	}
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func formInt(r *http.Request, key string) int {
	v := r.FormValue(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func formBool(r *http.Request, key string) bool {
	v, err := strconv.ParseBool(r.FormValue(key))
	return err == nil && v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
