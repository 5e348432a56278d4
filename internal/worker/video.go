package worker

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/toolscheap/toolscheap/internal/job"
	"github.com/toolscheap/toolscheap/internal/logger"
	"github.com/toolscheap/toolscheap/internal/queue"
)

// VideoProcessor transcodes videos by shelling out to ffmpeg. The hard
// wall-clock limit comes from the per-tool timeout on the handler context;
// CommandContext kills the process when it expires.
type VideoProcessor struct {
	ffmpegPath  string
	ffprobePath string
	runner      *Runner
}

func NewVideoProcessor(ffmpegPath, ffprobePath string, runner *Runner) *VideoProcessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &VideoProcessor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		runner:      runner,
	}
}

func (p *VideoProcessor) Process(ctx context.Context, j *job.Job, inputPath, workDir string) (string, error) {
	var params job.VideoCompressParams
	if err := job.DecodeParams(j.Params, job.ToolVideoCompress, &params); err != nil {
		return "", queue.Permanent(err)
	}
	params.Normalize()

	duration, err := p.probeDuration(ctx, inputPath)
	if err != nil {
		// Progress reporting degrades gracefully without a duration.
		logger.FromContext(ctx).Warn("ffprobe duration failed", "job_id", j.ID, "error", err)
		duration = 0
	}

	outputPath := filepath.Join(workDir, "output.mp4")
	args := buildFFmpegArgs(params, inputPath, outputPath)

	if err := p.runFFmpeg(ctx, j, args, duration); err != nil {
		return "", err
	}
	return outputPath, nil
}

// buildFFmpegArgs constructs the encoder invocation. An explicit bitrate
// wins over CRF; scaling with one dimension set uses -1 for the other so
// ffmpeg preserves aspect ratio. Audio is passed through untouched.
func buildFFmpegArgs(params job.VideoCompressParams, inputPath, outputPath string) []string {
	args := []string{
		"-y",
		"-i", inputPath,
		"-c:v", "libx264",
		"-preset", params.Preset,
	}

	if params.Bitrate != "" {
		args = append(args, "-b:v", params.Bitrate)
	} else {
		args = append(args, "-crf", strconv.Itoa(params.CRF))
	}

	if params.Width > 0 || params.Height > 0 {
		w, h := params.Width, params.Height
		if w == 0 {
			w = -1
		}
		if h == 0 {
			h = -1
		}
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d:flags=lanczos", w, h))
	}

	args = append(args,
		"-c:a", "copy",
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		"-nostats",
		outputPath,
	)
	return args
}

func (p *VideoProcessor) probeDuration(ctx context.Context, inputPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inputPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	raw := strings.TrimSpace(string(out))
	if raw == "" {
		return 0, fmt.Errorf("ffprobe returned no duration")
	}
	duration, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", raw, err)
	}
	return duration, nil
}

func (p *VideoProcessor) runFFmpeg(ctx context.Context, j *job.Job, args []string, duration float64) error {
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start: %w", err)
	}

	p.consumeProgress(ctx, j, bufio.NewScanner(stdout), duration)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("ffmpeg killed after timeout: %w", ctx.Err())
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, lastStderrLines(stderr.String(), 5))
	}
	return nil
}

// consumeProgress maps ffmpeg -progress key=value output onto the job's
// progress percentage, scaled into the 10-90 band the runner reserves for
// the encode itself.
func (p *VideoProcessor) consumeProgress(ctx context.Context, j *job.Job, scanner *bufio.Scanner, duration float64) {
	last := 0
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_ms":
			if duration <= 0 {
				continue
			}
			outTimeMs, err := strconv.ParseFloat(value, 64)
			if err != nil {
				continue
			}
			encoded := math.Min(1, math.Max(0, (outTimeMs/1e6)/duration))
			pct := 10 + int(encoded*80)
			if pct > last {
				last = pct
				p.runner.progress(ctx, j, pct)
			}
		case "progress":
			if value == "end" {
				return
			}
		}
	}
}

func lastStderrLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
