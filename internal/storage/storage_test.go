package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple name", "report.pdf", "report.pdf"},
		{"spaces replaced", "my video file.mp4", "my_video_file.mp4"},
		{"path stripped", "../../etc/passwd", "passwd"},
		{"windows path stripped", `C:\Users\me\doc.docx`, "doc.docx"},
		{"control characters", "a\x00b\x1f.txt", "a_b_.txt"},
		{"unicode replaced", "résumé.pdf", "r_sum_.pdf"},
		{"empty becomes file", "", "file"},
		{"only dots becomes file", "...", "file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeFilename(tt.input))
		})
	}
}

func TestBuildKey(t *testing.T) {
	key := BuildKey("video_compress/user-1", "clip.mp4")

	assert.True(t, strings.HasPrefix(key, "video_compress/user-1/"))
	assert.True(t, strings.HasSuffix(key, "-clip.mp4"))

	// Two keys for the same filename must not collide.
	other := BuildKey("video_compress/user-1", "clip.mp4")
	assert.NotEqual(t, key, other)
}

func TestMemoryStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()

	data := []byte("hello world")
	err := store.Upload(ctx, "docs/a.txt", bytes.NewReader(data), "text/plain", int64(len(data)))
	require.NoError(t, err)

	exists, err := store.Exists(ctx, "docs/a.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := store.Download(ctx, "docs/a.txt")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, data, got)

	ct, ok := store.GetContentType("docs/a.txt")
	assert.True(t, ok)
	assert.Equal(t, "text/plain", ct)

	err = store.Copy(ctx, "docs/a.txt", "docs/b.txt")
	require.NoError(t, err)
	copied, ok := store.GetData("docs/b.txt")
	assert.True(t, ok)
	assert.Equal(t, data, copied)

	err = store.Delete(ctx, "docs/a.txt")
	require.NoError(t, err)
	_, err = store.Download(ctx, "docs/a.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorageCopyMissing(t *testing.T) {
	store := NewMemoryStorage()
	err := store.Copy(context.Background(), "nope", "dst")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	data := []byte("local bytes")
	err = store.Upload(ctx, "out/result.pdf", bytes.NewReader(data), "application/pdf", int64(len(data)))
	require.NoError(t, err)

	exists, err := store.Exists(ctx, "out/result.pdf")
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := store.Download(ctx, "out/result.pdf")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, data, got)

	require.NoError(t, store.Copy(ctx, "out/result.pdf", "out/copy.pdf"))
	exists, err = store.Exists(ctx, "out/copy.pdf")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.Delete(ctx, "out/result.pdf"))
	_, err = store.Download(ctx, "out/result.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting twice is not an error.
	require.NoError(t, store.Delete(ctx, "out/result.pdf"))
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "../escape.txt", "a/../../escape.txt"} {
		err := store.Upload(ctx, key, strings.NewReader("x"), "text/plain", 1)
		assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
	}
}

func TestLocalStorageHealthCheck(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, store.HealthCheck(context.Background()))
}
