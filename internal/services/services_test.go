package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoveBgClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1.0/removebg", r.URL.Path)
		assert.Equal(t, "secret-key", r.Header.Get("X-Api-Key"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("image_file")
		require.NoError(t, err)
		defer func() { _ = file.Close() }()
		assert.Equal(t, "photo.jpg", header.Filename)

		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, []byte("jpeg bytes"), data)
		assert.Equal(t, "png", r.FormValue("format"))

		_, _ = w.Write([]byte("png bytes"))
	}))
	defer srv.Close()

	client := NewRemoveBgClient(srv.URL, "secret-key")
	out, err := client.RemoveBackground(context.Background(), []byte("jpeg bytes"), "photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("png bytes"), out)
}

func TestRemoveBgClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"errors":[{"title":"insufficient credits"}]}`))
	}))
	defer srv.Close()

	client := NewRemoveBgClient(srv.URL, "secret-key")
	_, err := client.RemoveBackground(context.Background(), []byte("x"), "a.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "402")
	assert.Contains(t, err.Error(), "insufficient credits")
}

func TestChatSummarizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		assert.Contains(t, req.Messages[0].Content, "at most 100 words")
		assert.Contains(t, req.Messages[0].Content, "the document body")

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "a short summary"}},
			},
		})
	}))
	defer srv.Close()

	s := NewChatSummarizer(srv.URL, "sk-test", "")
	out, err := s.Summarize(context.Background(), "the document body", 100, "en")
	require.NoError(t, err)
	assert.Equal(t, "a short summary", out)
}

func TestChatSummarizerServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{},
			"error":   map[string]string{"message": "model overloaded"},
		})
	}))
	defer srv.Close()

	s := NewChatSummarizer(srv.URL, "sk-test", "")
	_, err := s.Summarize(context.Background(), "text", 50, "en")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestExtractPDFTextRejectsGarbage(t *testing.T) {
	_, err := ExtractPDFText([]byte("not a pdf at all"))
	assert.Error(t, err)
}
