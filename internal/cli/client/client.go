package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Client talks to the tools.cheap HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("User-Agent", "toolctl")

	return c.httpClient.Do(req)
}

func (c *Client) doJSON(ctx context.Context, method, path string, respBody interface{}) error {
	resp, err := c.doRequest(ctx, method, path, nil, "")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}
	if respBody != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(respBody)
	}
	return nil
}

func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		return fmt.Errorf("%s: %s", errResp.Code, errResp.Message)
	}
	return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
}

// Submit uploads the given files to a tool endpoint. Params become form
// fields; progress, when non-nil, observes the bytes of the request body as
// they go out.
func (c *Client) Submit(ctx context.Context, tool string, files []string, params map[string]string, progress io.Writer) (*SubmitResult, error) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	errCh := make(chan error, 1)

	go func() {
		defer func() { _ = pw.Close() }()

		for _, path := range files {
			if err := writeFilePart(writer, path); err != nil {
				errCh <- err
				return
			}
		}

		// Deterministic field order keeps request bodies reproducible.
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := writer.WriteField(k, params[k]); err != nil {
				errCh <- err
				return
			}
		}

		errCh <- writer.Close()
	}()

	var body io.Reader = pr
	if progress != nil {
		body = io.TeeReader(pr, progress)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/api/v1/tools/"+url.PathEscape(tool), body, writer.FormDataContentType())
	if err != nil {
		return nil, fmt.Errorf("submit failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if writeErr := <-errCh; writeErr != nil {
		return nil, fmt.Errorf("failed to write multipart form: %w", writeErr)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result SubmitResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result, nil
}

// SubmitForm posts plain form fields without a file, for tools that take no
// upload.
func (c *Client) SubmitForm(ctx context.Context, tool string, params map[string]string, extra url.Values) (json.RawMessage, error) {
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	for k, vs := range extra {
		for _, v := range vs {
			form.Add(k, v)
		}
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/api/v1/tools/"+url.PathEscape(tool),
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return nil, fmt.Errorf("submit failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) JobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	var status JobStatus
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(jobID)+"/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) ListJobs(ctx context.Context, limit, offset int) (*JobList, error) {
	path := "/api/v1/jobs?limit=" + strconv.Itoa(limit) + "&offset=" + strconv.Itoa(offset)
	var list JobList
	if err := c.doJSON(ctx, http.MethodGet, path, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) CancelJob(ctx context.Context, jobID string) (*JobStatus, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/v1/jobs/"+url.PathEscape(jobID)+"/cancel", nil, "")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, c.parseError(resp)
	}
	var status JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, err
	}
	return &status, nil
}

// WaitForJob polls until the job reaches a terminal state or the timeout
// elapses.
func (c *Client) WaitForJob(ctx context.Context, jobID string, interval, timeout time.Duration, onPoll func(*JobStatus)) (*JobStatus, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	deadline := time.After(timeout)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, fmt.Errorf("timed out waiting for job %s", jobID)
		case <-ticker.C:
			status, err := c.JobStatus(ctx, jobID)
			if err != nil {
				return nil, err
			}
			if onPoll != nil {
				onPoll(status)
			}
			if status.Finished() {
				return status, nil
			}
		}
	}
}

// Download streams a signed result URL to dest. The URL may be absolute (as
// returned by the API) or a path relative to the client's base URL.
func (c *Client) Download(ctx context.Context, downloadURL, dest string, progress io.Writer) (int64, error) {
	if !strings.HasPrefix(downloadURL, "http://") && !strings.HasPrefix(downloadURL, "https://") {
		downloadURL = c.baseURL + downloadURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, c.parseError(resp)
	}

	out, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer func() { _ = out.Close() }()

	var w io.Writer = out
	if progress != nil {
		w = io.MultiWriter(out, progress)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		_ = os.Remove(dest)
		return 0, fmt.Errorf("download interrupted: %w", err)
	}
	return n, nil
}

func writeFilePart(writer *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

// SizeOf sums the sizes of the given files, for progress bar totals.
func SizeOf(files []string) int64 {
	var total int64
	for _, f := range files {
		if info, err := os.Stat(f); err == nil {
			total += info.Size()
		}
	}
	return total
}
