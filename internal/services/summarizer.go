package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/toolscheap/toolscheap/internal/logger"
)

// Summarizer turns a block of extracted text into a short summary.
type Summarizer interface {
	Summarize(ctx context.Context, text string, maxWords int, language string) (string, error)
}

// ChatSummarizer calls an OpenAI-compatible chat completion endpoint.
type ChatSummarizer struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

var _ Summarizer = (*ChatSummarizer)(nil)

func NewChatSummarizer(baseURL, apiKey, model string) *ChatSummarizer {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &ChatSummarizer{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// maxInputChars bounds what we send upstream; long documents get truncated
// rather than rejected.
const maxInputChars = 48000

func (s *ChatSummarizer) Summarize(ctx context.Context, text string, maxWords int, language string) (string, error) {
	if len(text) > maxInputChars {
		text = text[:maxInputChars]
	}

	prompt := fmt.Sprintf(
		"Summarize the following document in at most %d words. Respond in language %q with only the summary.\n\n%s",
		maxWords, language, text)

	payload, err := json.Marshal(chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode summarize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call summarization service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("summarization service returned %d: %s", resp.StatusCode, detail)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode summarize response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("summarization service error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("summarization service returned no choices")
	}

	logger.FromContext(ctx).Debug("summary generated",
		"input_chars", len(text), "duration_ms", time.Since(start).Milliseconds())
	return parsed.Choices[0].Message.Content, nil
}
