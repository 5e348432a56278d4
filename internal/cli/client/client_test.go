package client

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSubmitAsync(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/tools/image_compress" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("auth header = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("quality"); got != "70" {
			t.Errorf("quality = %q", got)
		}
		files := r.MultipartForm.File["file"]
		if len(files) != 1 || files[0].Filename != "photo.jpg" {
			t.Errorf("files = %+v", files)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jobId":"abc-123","status":"pending"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	file := writeTempFile(t, "photo.jpg", "jpeg bytes")

	result, err := c.Submit(t.Context(), "image_compress", []string{file}, map[string]string{"quality": "70"}, nil)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !result.Async() {
		t.Fatal("expected an async result")
	}
	if result.JobID != "abc-123" || result.Status != "pending" {
		t.Errorf("result = %+v", result)
	}
}

func TestSubmitSyncResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tool":"json_format","output":{"a":1},"downloadUrl":"https://x/files/download/k?expires=1&token=t"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	file := writeTempFile(t, "data.json", `{"a":1}`)

	result, err := c.Submit(t.Context(), "json_format", []string{file}, nil, nil)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if result.Async() {
		t.Fatal("expected a sync result")
	}
	if result.Tool != "json_format" || result.DownloadURL == "" {
		t.Errorf("result = %+v", result)
	}
}

func TestSubmitServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"upgrade_required","code":"upgrade_required","message":"the video_compress tool requires a pro subscription"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	file := writeTempFile(t, "clip.mp4", "video")

	_, err := c.Submit(t.Context(), "video_compress", []string{file}, nil, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	want := "upgrade_required: the video_compress tool requires a pro subscription"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestWaitForJob(t *testing.T) {
	var polls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls++
		w.Header().Set("Content-Type", "application/json")
		if polls < 3 {
			_, _ = w.Write([]byte(`{"jobId":"j1","statusName":"processing","progress":40,"createdAt":"2026-08-01T00:00:00Z"}`))
			return
		}
		_, _ = w.Write([]byte(`{"jobId":"j1","statusName":"completed","progress":100,"downloadUrl":"https://x/d","createdAt":"2026-08-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	status, err := c.WaitForJob(t.Context(), "j1", 10*time.Millisecond, time.Second, nil)
	if err != nil {
		t.Fatalf("WaitForJob() error = %v", err)
	}
	if status.StatusName != "completed" || status.DownloadURL == "" {
		t.Errorf("status = %+v", status)
	}
	if polls < 3 {
		t.Errorf("polls = %d, want at least 3", polls)
	}
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("result bytes"))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	dest := filepath.Join(t.TempDir(), "out.pdf")

	n, err := c.Download(t.Context(), "/files/download/k?expires=1&token=t", dest, nil)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if n != int64(len("result bytes")) {
		t.Errorf("n = %d", n)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "result bytes" {
		t.Errorf("file content = %q", data)
	}
}

func TestJobStatusFinished(t *testing.T) {
	tests := []struct {
		name     string
		finished bool
	}{
		{"pending", false},
		{"processing", false},
		{"completed", true},
		{"failed", true},
		{"cancelled", true},
	}
	for _, tt := range tests {
		s := &JobStatus{StatusName: tt.name}
		if s.Finished() != tt.finished {
			t.Errorf("Finished(%q) = %v, want %v", tt.name, s.Finished(), tt.finished)
		}
	}
}
