package analytics

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"
)

type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatJSON ExportFormat = "json"
)

func ExportDashboardJSON(data *Dashboard) ([]byte, error) {
	return json.MarshalIndent(data, "", "  ")
}

func ExportDashboardCSV(data *Dashboard) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	write := func(row ...string) {
		_ = w.Write(row)
	}

	write("Dashboard Export", data.GeneratedAt.Format(time.RFC3339))
	write("Window Days", fmt.Sprintf("%d", data.WindowDays))
	write("Total Jobs", fmt.Sprintf("%d", data.TotalJobs))
	write("Success Rate", fmt.Sprintf("%.1f%%", data.SuccessRate))

	write("", "")
	write("Jobs by Status", "")
	write("Status", "Count")
	for _, status := range []string{"pending", "processing", "completed", "failed", "cancelled"} {
		if n, ok := data.JobsByStatus[status]; ok {
			write(status, fmt.Sprintf("%d", n))
		}
	}

	write("", "")
	write("Tool Breakdown", "")
	write("Tool", "Count", "Percentage")
	for _, t := range data.ToolBreakdown {
		write(t.Tool, fmt.Sprintf("%d", t.Count), fmt.Sprintf("%.1f%%", t.Percentage))
	}

	write("", "")
	write("Daily Volume", "")
	write("Date", "Total", "Completed", "Failed")
	for _, d := range data.DailyVolume {
		write(
			d.Date.Format("2006-01-02"),
			fmt.Sprintf("%d", d.Total),
			fmt.Sprintf("%d", d.Completed),
			fmt.Sprintf("%d", d.Failed),
		)
	}

	if len(data.QueueDepth) > 0 {
		write("", "")
		write("Queue Depth", "")
		write("Queue", "Ready")
		for _, q := range []string{"default", "video"} {
			if n, ok := data.QueueDepth[q]; ok {
				write(q, fmt.Sprintf("%d", n))
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
