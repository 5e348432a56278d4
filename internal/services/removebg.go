package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/toolscheap/toolscheap/internal/logger"
)

// BackgroundRemover sends an image to a segmentation service and returns the
// cutout with a transparent background.
type BackgroundRemover interface {
	RemoveBackground(ctx context.Context, image []byte, filename string) ([]byte, error)
}

// RemoveBgClient talks to a remove.bg-compatible HTTP API: multipart POST
// with the image file, API key in a header, PNG bytes back.
type RemoveBgClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ BackgroundRemover = (*RemoveBgClient)(nil)

func NewRemoveBgClient(baseURL, apiKey string) *RemoveBgClient {
	return &RemoveBgClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

func (c *RemoveBgClient) RemoveBackground(ctx context.Context, image []byte, filename string) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image_file", filename)
	if err != nil {
		return nil, fmt.Errorf("build multipart request: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("build multipart request: %w", err)
	}
	if err := mw.WriteField("format", "png"); err != nil {
		return nil, fmt.Errorf("build multipart request: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build multipart request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1.0/removebg", &body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Api-Key", c.apiKey)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call background removal service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("background removal service returned %d: %s", resp.StatusCode, detail)
	}

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read background removal response: %w", err)
	}

	logger.FromContext(ctx).Debug("background removed",
		"input_bytes", len(image), "output_bytes", len(out),
		"duration_ms", time.Since(start).Milliseconds())
	return out, nil
}
