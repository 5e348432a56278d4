package worker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolscheap/toolscheap/internal/job"
)

func argsString(params job.VideoCompressParams) string {
	params.Normalize()
	return strings.Join(buildFFmpegArgs(params, "/tmp/in.mp4", "/tmp/out.mp4"), " ")
}

func TestBuildFFmpegArgsDefaults(t *testing.T) {
	args := argsString(job.VideoCompressParams{})

	assert.Contains(t, args, "-c:v libx264")
	assert.Contains(t, args, "-preset medium")
	assert.Contains(t, args, fmt.Sprintf("-crf %d", job.DefaultCRF))
	assert.Contains(t, args, "-c:a copy")
	assert.NotContains(t, args, "-vf", "no scale filter without dimensions")
	assert.NotContains(t, args, "-b:v")
}

func TestBuildFFmpegArgsCRFClamping(t *testing.T) {
	// A CRF below the supported range must be clamped up, never passed
	// through.
	args := argsString(job.VideoCompressParams{CRF: 15})
	assert.Contains(t, args, "-crf 18")
	assert.NotContains(t, args, "-crf 15")

	args = argsString(job.VideoCompressParams{CRF: 40})
	assert.Contains(t, args, "-crf 28")
}

func TestBuildFFmpegArgsBitratePrecedence(t *testing.T) {
	args := argsString(job.VideoCompressParams{CRF: 20, Bitrate: "2M"})

	assert.Contains(t, args, "-b:v 2M")
	assert.NotContains(t, args, "-crf", "bitrate takes precedence over CRF")
}

func TestBuildFFmpegArgsScaling(t *testing.T) {
	tests := []struct {
		name   string
		params job.VideoCompressParams
		filter string
	}{
		{"width only keeps aspect", job.VideoCompressParams{Width: 1280}, "scale=1280:-1:flags=lanczos"},
		{"height only keeps aspect", job.VideoCompressParams{Height: 720}, "scale=-1:720:flags=lanczos"},
		{"both dimensions", job.VideoCompressParams{Width: 1920, Height: 1080}, "scale=1920:1080:flags=lanczos"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, argsString(tt.params), "-vf "+tt.filter)
		})
	}
}

func TestBuildFFmpegArgsOrder(t *testing.T) {
	params := job.VideoCompressParams{}
	params.Normalize()
	args := buildFFmpegArgs(params, "/tmp/in.mp4", "/tmp/out.mp4")

	require.GreaterOrEqual(t, len(args), 4)
	assert.Equal(t, "-y", args[0])
	assert.Equal(t, "-i", args[1])
	assert.Equal(t, "/tmp/in.mp4", args[2])
	assert.Equal(t, "/tmp/out.mp4", args[len(args)-1])
}

func TestLastStderrLines(t *testing.T) {
	s := "one\ntwo\nthree\nfour\nfive\nsix\n"
	assert.Equal(t, "four | five | six", lastStderrLines(s, 3))
	assert.Equal(t, "one | two | three | four | five | six", lastStderrLines(s, 10))
}
