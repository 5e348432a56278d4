package billing

import (
	"time"

	"github.com/toolscheap/toolscheap/internal/job"
)

type Tier string

const (
	TierAnonymous Tier = "anonymous"
	TierFree      Tier = "free"
	TierPro       Tier = "pro"
)

type SubscriptionStatus string

const (
	StatusNone     SubscriptionStatus = "none"
	StatusActive   SubscriptionStatus = "active"
	StatusTrialing SubscriptionStatus = "trialing"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusCanceled SubscriptionStatus = "canceled"
)

const (
	AnonymousMaxFileSize = 10 * 1024 * 1024  // 10 MB
	FreeMaxFileSize      = 50 * 1024 * 1024  // 50 MB
	ProMaxFileSize       = 500 * 1024 * 1024 // 500 MB

	AnonymousMonthlyOps = 10
	FreeMonthlyOps      = 100
	ProMonthlyOps       = 5000

	FreeRetentionDays = 7
	ProRetentionDays  = 30

	GracePeriod = 3 * 24 * time.Hour // for past_due
)

type TierLimits struct {
	MonthlyOps    int
	MaxFileSize   int64
	RetentionDays int
	AllowedTools  []job.ToolType
	PriorityQueue bool
}

// freeTools are available without a subscription. The heavier tools (video
// transcoding, background removal, AI summaries) are pro-only.
var freeTools = []job.ToolType{
	job.ToolJsonFormat,
	job.ToolRegexGenerate,
	job.ToolPdfMerge,
	job.ToolPdfSplit,
	job.ToolImageCompress,
	job.ToolDocToPdf,
}

func GetTierLimits(tier Tier) TierLimits {
	switch tier {
	case TierPro:
		return TierLimits{
			MonthlyOps:    ProMonthlyOps,
			MaxFileSize:   ProMaxFileSize,
			RetentionDays: ProRetentionDays,
			AllowedTools:  job.AllTools,
			PriorityQueue: true,
		}
	case TierFree:
		return TierLimits{
			MonthlyOps:    FreeMonthlyOps,
			MaxFileSize:   FreeMaxFileSize,
			RetentionDays: FreeRetentionDays,
			AllowedTools:  freeTools,
		}
	default:
		return TierLimits{
			MonthlyOps:    AnonymousMonthlyOps,
			MaxFileSize:   AnonymousMaxFileSize,
			RetentionDays: FreeRetentionDays,
			AllowedTools:  freeTools,
		}
	}
}

// AllowsTool reports whether the tier may run the tool.
func (l TierLimits) AllowsTool(tool job.ToolType) bool {
	for _, t := range l.AllowedTools {
		if t == tool {
			return true
		}
	}
	return false
}

// Subscription is a user's billing state as read from the users table.
type Subscription struct {
	Tier      Tier
	Status    SubscriptionStatus
	PeriodEnd *time.Time
}

// Active reports whether the subscription entitles the user to its tier.
// past_due keeps entitlements through a short grace period so a failed card
// charge does not instantly break running workflows.
func (s *Subscription) Active() bool {
	switch s.Status {
	case StatusActive, StatusTrialing:
		return true
	case StatusPastDue:
		if s.PeriodEnd != nil {
			return time.Since(*s.PeriodEnd) < GracePeriod
		}
		return false
	default:
		return false
	}
}

// EffectiveTier collapses an inactive pro subscription back to free.
func (s *Subscription) EffectiveTier() Tier {
	if s == nil {
		return TierAnonymous
	}
	if s.Tier == TierPro && !s.Active() {
		return TierFree
	}
	return s.Tier
}
