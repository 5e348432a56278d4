package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/toolscheap/toolscheap/internal/job"
)

// JobStats is the slice of the job repository the dashboard reads.
type JobStats interface {
	CountByStatus(ctx context.Context) (map[job.Status]int, error)
	CountByTool(ctx context.Context, since time.Time) (map[job.ToolType]int, error)
	DailyVolume(ctx context.Context, since time.Time) ([]job.DailyCount, error)
}

type UsageStats interface {
	UsageByTool(ctx context.Context, since time.Time) (map[job.ToolType]int, error)
}

type QueueDepths interface {
	Depth(ctx context.Context) (map[string]int, error)
}

type Service struct {
	jobs  JobStats
	usage UsageStats
	queue QueueDepths
}

func NewService(jobs JobStats, usage UsageStats, queue QueueDepths) *Service {
	return &Service{jobs: jobs, usage: usage, queue: queue}
}

// Dashboard aggregates job, usage and queue stats over the last windowDays
// days. Status counts are global; everything else is windowed.
func (s *Service) Dashboard(ctx context.Context, windowDays int) (*Dashboard, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -windowDays)

	byStatus, err := s.jobs.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}

	byTool, err := s.jobs.CountByTool(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("count by tool: %w", err)
	}

	daily, err := s.jobs.DailyVolume(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("daily volume: %w", err)
	}

	dash := &Dashboard{
		JobsByStatus:  make(map[string]int, len(byStatus)),
		ToolBreakdown: toolStats(byTool),
		DailyVolume:   make([]DailyVolume, len(daily)),
		WindowDays:    windowDays,
		GeneratedAt:   time.Now().UTC(),
	}

	for st, n := range byStatus {
		dash.JobsByStatus[st.String()] = n
		dash.TotalJobs += n
	}

	completed := byStatus[job.StatusCompleted]
	failed := byStatus[job.StatusFailed]
	if completed+failed > 0 {
		dash.SuccessRate = float64(completed) / float64(completed+failed) * 100
	}

	for i, d := range daily {
		dash.DailyVolume[i] = DailyVolume{
			Date:      d.Day,
			Total:     d.Total,
			Completed: d.Completed,
			Failed:    d.Failed,
		}
	}

	if s.usage != nil {
		usageByTool, err := s.usage.UsageByTool(ctx, since)
		if err != nil {
			return nil, fmt.Errorf("usage by tool: %w", err)
		}
		dash.UsageBreakdown = toolStats(usageByTool)
	}

	if s.queue != nil {
		depth, err := s.queue.Depth(ctx)
		if err != nil {
			return nil, fmt.Errorf("queue depth: %w", err)
		}
		dash.QueueDepth = depth
	}

	return dash, nil
}

// toolStats converts a count map into sorted stats with percentages.
// Biggest first, ties broken by name so output is stable.
func toolStats(counts map[job.ToolType]int) []ToolStat {
	var total int
	for _, n := range counts {
		total += n
	}

	stats := make([]ToolStat, 0, len(counts))
	for tool, n := range counts {
		pct := 0.0
		if total > 0 {
			pct = float64(n) / float64(total) * 100
		}
		stats = append(stats, ToolStat{Tool: string(tool), Count: n, Percentage: pct})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Tool < stats[j].Tool
	})
	return stats
}
