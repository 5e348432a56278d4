package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolscheap/toolscheap/internal/auth"
	"github.com/toolscheap/toolscheap/internal/billing"
	"github.com/toolscheap/toolscheap/internal/job"
	"github.com/toolscheap/toolscheap/internal/queue"
	"github.com/toolscheap/toolscheap/internal/storage"
)

const testSecret = "test-jwt-secret"

type fixture struct {
	server  *Server
	handler http.Handler
	jobs    *job.MemoryStore
	entries *queue.MemoryStore
	store   *storage.MemoryStorage
	usage   *job.MemoryUsageRecorder
	subs    *billing.MemorySubscriptions
	signer  *storage.URLSigner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	jobs := job.NewMemoryStore()
	entries := queue.NewMemoryStore()
	store := storage.NewMemoryStorage()
	usage := job.NewMemoryUsageRecorder()
	subs := billing.NewMemorySubscriptions()
	signer := storage.NewURLSigner("sign-secret", "https://files.example.com")

	srv := &Server{
		Jobs:          jobs,
		Enqueuer:      queue.NewMemoryEnqueuer(jobs, entries, 3),
		Storage:       store,
		Signer:        signer,
		Entitlements:  billing.NewEntitlements(subs, usage),
		Usage:         usage,
		JWTSecret:     testSecret,
		MaxUploadSize: 50 * 1024 * 1024,
		SyncThreshold: 20 * 1024 * 1024,
		SignedURLTTL:  24 * time.Hour,
		DevMode:       true,
	}
	return &fixture{
		server:  srv,
		handler: srv.Routes(),
		jobs:    jobs,
		entries: entries,
		store:   store,
		usage:   usage,
		subs:    subs,
		signer:  signer,
	}
}

func (f *fixture) proUser(t *testing.T) (uuid.UUID, string) {
	t.Helper()
	userID := uuid.New()
	f.subs.Set(userID, &billing.Subscription{Tier: billing.TierPro, Status: billing.StatusActive})
	token, err := auth.IssueToken(testSecret, userID, time.Hour)
	require.NoError(t, err)
	return userID, token
}

func (f *fixture) freeUser(t *testing.T) (uuid.UUID, string) {
	t.Helper()
	userID := uuid.New()
	f.subs.Set(userID, &billing.Subscription{Tier: billing.TierFree, Status: billing.StatusActive})
	token, err := auth.IssueToken(testSecret, userID, time.Hour)
	require.NoError(t, err)
	return userID, token
}

type uploadFile struct {
	name    string
	content []byte
}

func uploadRequest(t *testing.T, path, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	return multiUploadRequest(t, path, []uploadFile{{filename, content}}, fields)
}

func multiUploadRequest(t *testing.T, path string, files []uploadFile, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		fw, err := w.CreateFormFile("file", f.name)
		require.NoError(t, err)
		_, err = fw.Write(f.content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), "body: %s", rec.Body.String())
	return v
}

func TestSubmitAsyncJob(t *testing.T) {
	f := newFixture(t)
	_, token := f.freeUser(t)

	req := uploadRequest(t, "/api/v1/tools/image_compress", "photo.jpg", []byte("jpeg bytes"), map[string]string{
		"quality": "70",
	})
	req.Header.Set("Authorization", "Bearer "+token)

	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[SubmitResponse](t, rec)
	assert.Equal(t, "pending", resp.Status)

	jobID, err := uuid.Parse(resp.JobID)
	require.NoError(t, err)

	j, err := f.jobs.Get(req.Context(), jobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, j.Status)
	assert.True(t, strings.HasPrefix(j.InputFileKey, "image_compress/temp/"), j.InputFileKey)

	// Input blob is durable and a queue entry exists.
	exists, err := f.store.Exists(req.Context(), j.InputFileKey)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, 1, f.entries.Len())

	var params job.ImageCompressParams
	require.NoError(t, job.DecodeParams(j.Params, job.ToolImageCompress, &params))
	assert.Equal(t, 70, params.Quality)
}

func TestSubmitUnknownTool(t *testing.T) {
	f := newFixture(t)
	req := uploadRequest(t, "/api/v1/tools/mp3_convert", "x.mp3", []byte("x"), nil)
	rec := f.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitRejectsWrongFileType(t *testing.T) {
	f := newFixture(t)
	req := uploadRequest(t, "/api/v1/tools/pdf_merge", "evil.exe", []byte("mz"), nil)
	rec := f.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, f.jobs.Count())
}

func TestSubmitEntitlementDenialCreatesFailedJob(t *testing.T) {
	f := newFixture(t)
	userID, token := f.freeUser(t)

	req := uploadRequest(t, "/api/v1/tools/video_compress", "clip.mp4", []byte("video"), nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := f.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	// The refusal is recorded as an already-failed job, never queued.
	listed, err := f.jobs.ListByUser(req.Context(), userID, 10, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, job.StatusFailed, listed[0].Status)
	assert.Contains(t, listed[0].ErrorMessage, "pro subscription")
	assert.Empty(t, listed[0].InputFileKey)
	assert.Equal(t, 0, f.entries.Len())
}

func TestSubmitAnonymousFileTooLarge(t *testing.T) {
	f := newFixture(t)
	big := bytes.Repeat([]byte("a"), int(billing.AnonymousMaxFileSize)+1)
	req := uploadRequest(t, "/api/v1/tools/image_compress", "big.png", big, nil)
	rec := f.do(req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
	assert.Equal(t, 0, f.jobs.Count())
}

func TestJSONFormatRunsInline(t *testing.T) {
	f := newFixture(t)
	req := uploadRequest(t, "/api/v1/tools/json_format", "data.json", []byte(`{"b":1,"a":2}`), map[string]string{
		"sort_keys": "true",
	})
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[SyncResponse](t, rec)
	assert.Equal(t, "json_format", resp.Tool)
	assert.JSONEq(t, `{"a":2,"b":1}`, string(resp.Output))
	assert.NotEmpty(t, resp.DownloadURL)

	// No job row for sync work, but usage is recorded.
	assert.Equal(t, 0, f.jobs.Count())
	require.Len(t, f.usage.Records(), 1)
	assert.Nil(t, f.usage.Records()[0].JobID)
}

func TestRegexGenerateRunsInline(t *testing.T) {
	f := newFixture(t)
	form := "description=match+an+email+address&test=bob%40example.com&test=nope"
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/regex_generate", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result struct {
		Pattern string          `json:"pattern"`
		Matches map[string]bool `json:"matches"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.NotEmpty(t, result.Pattern)
	assert.True(t, result.Matches["bob@example.com"])
	assert.False(t, result.Matches["nope"])
	assert.Equal(t, 0, f.jobs.Count())
}

func TestPdfMergeSyncPathRejectsGarbageWithoutJob(t *testing.T) {
	// Below the threshold the merge runs inline, so a broken PDF is an
	// immediate 400 and never creates a job.
	f := newFixture(t)
	req := multiUploadRequest(t, "/api/v1/tools/pdf_merge", []uploadFile{
		{"a.pdf", []byte("not a pdf")},
		{"b.pdf", []byte("also not a pdf")},
	}, nil)
	rec := f.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, f.jobs.Count())
	assert.Equal(t, 0, f.entries.Len())
}

func TestPdfMergeAboveThresholdGoesAsync(t *testing.T) {
	f := newFixture(t)
	f.server.SyncThreshold = 4 // force the async path

	req := multiUploadRequest(t, "/api/v1/tools/pdf_merge", []uploadFile{
		{"a.pdf", []byte("first pdf bytes")},
		{"b.pdf", []byte("second pdf bytes")},
	}, nil)
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[SubmitResponse](t, rec)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, 1, f.entries.Len())

	jobID, err := uuid.Parse(resp.JobID)
	require.NoError(t, err)
	j, err := f.jobs.Get(req.Context(), jobID)
	require.NoError(t, err)

	var params job.PdfMergeParams
	require.NoError(t, job.DecodeParams(j.Params, job.ToolPdfMerge, &params))
	require.Len(t, params.ExtraFileKeys, 1)
	assert.True(t, strings.HasPrefix(params.ExtraFileKeys[0], "pdf_merge/temp/"))
}

func TestJobStatusNotFound(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+uuid.NewString()+"/status", nil)
	rec := f.do(req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobStatusWrongOwner(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	j, err := job.New(&owner, job.ToolPdfSplit, "pdf_split/temp/x/in.pdf", nil)
	require.NoError(t, err)
	require.NoError(t, f.jobs.Create(t.Context(), j))

	_, token := f.freeUser(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+j.ID.String()+"/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := f.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJobStatusReturnsCachedURL(t *testing.T) {
	f := newFixture(t)
	userID, token := f.proUser(t)

	j, err := job.New(&userID, job.ToolVideoCompress, "video_compress/temp/in.mp4", nil)
	require.NoError(t, err)
	require.NoError(t, j.Start())
	expiresAt := time.Now().Add(12 * time.Hour)
	require.NoError(t, j.Complete("video_compress/out.mp4", "https://files.example.com/signed", expiresAt))
	require.NoError(t, f.jobs.Create(t.Context(), j))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+j.ID.String()+"/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[JobStatusResponse](t, rec)
	assert.Equal(t, int(job.StatusCompleted), resp.Status)
	assert.Equal(t, "completed", resp.StatusName)
	assert.Equal(t, 100, resp.Progress)
	assert.Equal(t, "https://files.example.com/signed", resp.DownloadURL)
	require.NotNil(t, resp.URLExpiresAt)
}

func TestJobStatusExpiredURLIsOmitted(t *testing.T) {
	f := newFixture(t)
	userID, token := f.proUser(t)

	j, err := job.New(&userID, job.ToolDocToPdf, "doc_to_pdf/temp/in.docx", nil)
	require.NoError(t, err)
	require.NoError(t, j.Start())
	require.NoError(t, j.Complete("doc_to_pdf/out.pdf", "https://stale", time.Now().Add(-time.Minute)))
	require.NoError(t, f.jobs.Create(t.Context(), j))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+j.ID.String()+"/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[JobStatusResponse](t, rec)
	assert.Equal(t, "completed", resp.StatusName)
	assert.Empty(t, resp.DownloadURL)
	assert.Equal(t, "doc_to_pdf/out.pdf", resp.OutputFileKey)
}

func TestCancelPendingJob(t *testing.T) {
	f := newFixture(t)
	userID, token := f.freeUser(t)

	j, err := job.New(&userID, job.ToolExcelClean, "excel_clean/temp/in.xlsx", nil)
	require.NoError(t, err)
	require.NoError(t, f.jobs.Create(t.Context(), j))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/"+j.ID.String()+"/cancel", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[JobStatusResponse](t, rec)
	assert.Equal(t, "cancelled", resp.StatusName)
}

func TestCancelProcessingJobFails(t *testing.T) {
	f := newFixture(t)
	userID, token := f.freeUser(t)

	j, err := job.New(&userID, job.ToolExcelClean, "excel_clean/temp/in.xlsx", nil)
	require.NoError(t, err)
	require.NoError(t, j.Start())
	require.NoError(t, f.jobs.Create(t.Context(), j))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/"+j.ID.String()+"/cancel", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := f.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListJobsRequiresAuth(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	rec := f.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListJobs(t *testing.T) {
	f := newFixture(t)
	userID, token := f.freeUser(t)

	for i := 0; i < 3; i++ {
		j, err := job.New(&userID, job.ToolPdfSplit, "pdf_split/temp/in.pdf", nil)
		require.NoError(t, err)
		require.NoError(t, f.jobs.Create(t.Context(), j))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs?limit=2", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[JobListResponse](t, rec)
	assert.Len(t, resp.Jobs, 2)
	assert.True(t, resp.HasMore)
}

func TestDownloadSignedURL(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	key := "pdf_merge/user/merged.pdf"
	require.NoError(t, f.store.Upload(ctx, key, bytes.NewReader([]byte("pdf result")), "application/pdf", 10))

	url := f.signer.Sign(key, time.Now().Add(time.Hour))
	path := strings.TrimPrefix(url, "https://files.example.com")

	rec := f.do(httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf result"), body)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "merged.pdf")
}

func TestDownloadRejectsTamperedToken(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	key := "pdf_merge/user/merged.pdf"
	require.NoError(t, f.store.Upload(ctx, key, bytes.NewReader([]byte("x")), "application/pdf", 1))

	url := f.signer.Sign(key, time.Now().Add(time.Hour))
	path := strings.TrimPrefix(url, "https://files.example.com")
	path = strings.Replace(path, "token=", "token=ff", 1)

	rec := f.do(httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDownloadExpiredLink(t *testing.T) {
	f := newFixture(t)
	key := "pdf_merge/user/merged.pdf"
	url := f.signer.Sign(key, time.Now().Add(-time.Hour))
	path := strings.TrimPrefix(url, "https://files.example.com")

	rec := f.do(httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInvalidBearerTokenRejected(t *testing.T) {
	f := newFixture(t)
	req := uploadRequest(t, "/api/v1/tools/image_compress", "p.jpg", []byte("x"), nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := f.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateUpload(t *testing.T) {
	tests := []struct {
		tool     job.ToolType
		filename string
		ok       bool
	}{
		{job.ToolPdfMerge, "doc.pdf", true},
		{job.ToolPdfMerge, "doc.docx", false},
		{job.ToolVideoCompress, "clip.mkv", true},
		{job.ToolVideoCompress, "clip.exe", false},
		{job.ToolImageCompress, "photo.JPG", true},
		{job.ToolDocToPdf, "report.docx", true},
		{job.ToolDocToPdf, "noextension", false},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			err := ValidateUpload(tt.tool, tt.filename)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
