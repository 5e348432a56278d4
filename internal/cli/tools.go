package cli

import (
	"github.com/spf13/cobra"

	"github.com/toolscheap/toolscheap/internal/billing"
	"github.com/toolscheap/toolscheap/internal/cli/output"
	"github.com/toolscheap/toolscheap/internal/job"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List available tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		free := billing.GetTierLimits(billing.TierFree)

		if jsonOutput {
			type toolInfo struct {
				Name string `json:"name"`
				Mode string `json:"mode"`
				Tier string `json:"tier"`
			}
			infos := make([]toolInfo, 0, len(job.AllTools))
			for _, t := range job.AllTools {
				infos = append(infos, toolInfo{
					Name: string(t),
					Mode: toolMode(t),
					Tier: toolTier(free, t),
				})
			}
			return printer.JSON(infos)
		}

		table := output.NewTable([]string{"Tool", "Mode", "Tier"}, quietMode)
		for _, t := range job.AllTools {
			table.Append([]string{string(t), toolMode(t), toolTier(free, t)})
		}
		table.Render()
		return nil
	},
}

func toolMode(t job.ToolType) string {
	if job.AlwaysSync(t) {
		return "sync"
	}
	if t == job.ToolPdfMerge {
		return "sync/async"
	}
	return "async"
}

func toolTier(free billing.TierLimits, t job.ToolType) string {
	if free.AllowsTool(t) {
		return "free"
	}
	return "pro"
}
