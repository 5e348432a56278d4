package analytics

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolscheap/toolscheap/internal/job"
)

type fakeJobStats struct {
	byStatus map[job.Status]int
	byTool   map[job.ToolType]int
	daily    []job.DailyCount
}

func (f *fakeJobStats) CountByStatus(ctx context.Context) (map[job.Status]int, error) {
	return f.byStatus, nil
}

func (f *fakeJobStats) CountByTool(ctx context.Context, since time.Time) (map[job.ToolType]int, error) {
	return f.byTool, nil
}

func (f *fakeJobStats) DailyVolume(ctx context.Context, since time.Time) ([]job.DailyCount, error) {
	return f.daily, nil
}

type fakeUsageStats struct {
	byTool map[job.ToolType]int
}

func (f *fakeUsageStats) UsageByTool(ctx context.Context, since time.Time) (map[job.ToolType]int, error) {
	return f.byTool, nil
}

type fakeQueueDepths struct {
	depth map[string]int
}

func (f *fakeQueueDepths) Depth(ctx context.Context) (map[string]int, error) {
	return f.depth, nil
}

func testDashboard(t *testing.T) *Dashboard {
	t.Helper()
	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	svc := NewService(
		&fakeJobStats{
			byStatus: map[job.Status]int{
				job.StatusPending:    2,
				job.StatusProcessing: 1,
				job.StatusCompleted:  60,
				job.StatusFailed:     20,
				job.StatusCancelled:  3,
			},
			byTool: map[job.ToolType]int{
				job.ToolPdfMerge:      50,
				job.ToolImageCompress: 25,
				job.ToolVideoCompress: 25,
			},
			daily: []job.DailyCount{
				{Day: day, Total: 10, Completed: 8, Failed: 2},
				{Day: day.AddDate(0, 0, 1), Total: 5, Completed: 5},
			},
		},
		&fakeUsageStats{byTool: map[job.ToolType]int{job.ToolJsonFormat: 40}},
		&fakeQueueDepths{depth: map[string]int{"default": 7, "video": 2}},
	)

	dash, err := svc.Dashboard(context.Background(), 30)
	require.NoError(t, err)
	return dash
}

func TestDashboardAggregation(t *testing.T) {
	dash := testDashboard(t)

	assert.Equal(t, 86, dash.TotalJobs)
	assert.Equal(t, 60, dash.JobsByStatus["completed"])
	assert.Equal(t, 20, dash.JobsByStatus["failed"])
	assert.InDelta(t, 75.0, dash.SuccessRate, 0.001)

	require.Len(t, dash.ToolBreakdown, 3)
	assert.Equal(t, "pdf_merge", dash.ToolBreakdown[0].Tool)
	assert.InDelta(t, 50.0, dash.ToolBreakdown[0].Percentage, 0.001)
	// Ties sort by name.
	assert.Equal(t, "image_compress", dash.ToolBreakdown[1].Tool)
	assert.Equal(t, "video_compress", dash.ToolBreakdown[2].Tool)

	require.Len(t, dash.DailyVolume, 2)
	assert.Equal(t, 8, dash.DailyVolume[0].Completed)

	assert.Equal(t, 7, dash.QueueDepth["default"])
	assert.Equal(t, []ToolStat{{Tool: "json_format", Count: 40, Percentage: 100}}, dash.UsageBreakdown)
	assert.Equal(t, 30, dash.WindowDays)
}

func TestDashboardNoFinishedJobs(t *testing.T) {
	svc := NewService(&fakeJobStats{
		byStatus: map[job.Status]int{job.StatusPending: 4},
	}, nil, nil)

	dash, err := svc.Dashboard(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 4, dash.TotalJobs)
	assert.Zero(t, dash.SuccessRate)
	assert.Equal(t, 30, dash.WindowDays, "window defaults to 30 days")
	assert.Empty(t, dash.ToolBreakdown)
}

func TestExportDashboardCSV(t *testing.T) {
	dash := testDashboard(t)

	out, err := ExportDashboardCSV(dash)
	require.NoError(t, err)

	csv := string(out)
	assert.Contains(t, csv, "Total Jobs,86")
	assert.Contains(t, csv, "Success Rate,75.0%")
	assert.Contains(t, csv, "pdf_merge,50,50.0%")
	assert.Contains(t, csv, "2026-08-01,10,8,2")
	assert.Contains(t, csv, "video,2")
}

func TestExportDashboardJSON(t *testing.T) {
	dash := testDashboard(t)

	out, err := ExportDashboardJSON(dash)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"total_jobs": 86`)
	assert.Contains(t, string(out), `"success_rate": 75`)
}

func TestChartsRenderPNG(t *testing.T) {
	dash := testDashboard(t)
	svc := &Service{}
	pngMagic := []byte{0x89, 'P', 'N', 'G'}

	volume, err := svc.GenerateVolumeChart(dash.DailyVolume, 800, 400)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(volume, pngMagic))

	tools, err := svc.GenerateToolChart(dash.ToolBreakdown, 600, 400)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(tools, pngMagic))

	empty, err := svc.GenerateVolumeChart(nil, 800, 400)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(empty, pngMagic))
}
