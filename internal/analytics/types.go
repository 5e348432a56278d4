package analytics

import (
	"time"
)

type ToolStat struct {
	Tool       string  `json:"tool"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type DailyVolume struct {
	Date      time.Time `json:"date"`
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
}

// Dashboard is the admin stats snapshot served by the API and rendered
// by the chart endpoints.
type Dashboard struct {
	TotalJobs      int            `json:"total_jobs"`
	JobsByStatus   map[string]int `json:"jobs_by_status"`
	SuccessRate    float64        `json:"success_rate"`
	ToolBreakdown  []ToolStat     `json:"tool_breakdown"`
	UsageBreakdown []ToolStat     `json:"usage_breakdown"`
	DailyVolume    []DailyVolume  `json:"daily_volume"`
	QueueDepth     map[string]int `json:"queue_depth"`
	WindowDays     int            `json:"window_days"`
	GeneratedAt    time.Time      `json:"generated_at"`
}
