package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toolscheap/toolscheap/internal/apperror"
	"github.com/toolscheap/toolscheap/internal/job"
)

// SubscriptionSource looks up the billing state for a user.
type SubscriptionSource interface {
	SubscriptionFor(ctx context.Context, userID uuid.UUID) (*Subscription, error)
}

// PostgresSubscriptions reads billing state from the users table.
type PostgresSubscriptions struct {
	pool *pgxpool.Pool
}

var _ SubscriptionSource = (*PostgresSubscriptions)(nil)

func NewPostgresSubscriptions(pool *pgxpool.Pool) *PostgresSubscriptions {
	return &PostgresSubscriptions{pool: pool}
}

func (s *PostgresSubscriptions) SubscriptionFor(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	var sub Subscription
	err := s.pool.QueryRow(ctx, `
		SELECT subscription_tier, subscription_status, subscription_period_end
		FROM users WHERE id = $1`, userID,
	).Scan(&sub.Tier, &sub.Status, &sub.PeriodEnd)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.ErrNotFound
		}
		return nil, fmt.Errorf("load subscription for %s: %w", userID, err)
	}
	return &sub, nil
}

// Entitlements answers "may this user run this tool on this file right now".
type Entitlements struct {
	subs  SubscriptionSource
	usage job.UsageRecorder
}

func NewEntitlements(subs SubscriptionSource, usage job.UsageRecorder) *Entitlements {
	return &Entitlements{subs: subs, usage: usage}
}

// LimitsFor resolves the effective tier limits for a user. A nil userID is
// an anonymous request.
func (e *Entitlements) LimitsFor(ctx context.Context, userID *uuid.UUID) (TierLimits, error) {
	if userID == nil {
		return GetTierLimits(TierAnonymous), nil
	}
	sub, err := e.subs.SubscriptionFor(ctx, *userID)
	if err != nil {
		if apperror.Is(err, apperror.ErrNotFound) {
			return GetTierLimits(TierAnonymous), nil
		}
		return TierLimits{}, err
	}
	return GetTierLimits(sub.EffectiveTier()), nil
}

// Check verifies tool access, file size and the monthly operation quota.
// The returned error is user-facing.
func (e *Entitlements) Check(ctx context.Context, userID *uuid.UUID, tool job.ToolType, fileSize int64) error {
	limits, err := e.LimitsFor(ctx, userID)
	if err != nil {
		return err
	}

	if !limits.AllowsTool(tool) {
		return apperror.WithMessage(apperror.ErrUpgradeRequired,
			fmt.Sprintf("the %s tool requires a pro subscription", tool))
	}
	if fileSize > limits.MaxFileSize {
		return apperror.WithMessage(apperror.ErrFileTooLarge,
			fmt.Sprintf("file exceeds the %d MB limit for your plan", limits.MaxFileSize/(1024*1024)))
	}

	if userID != nil {
		monthStart := startOfMonth(time.Now().UTC())
		used, err := e.usage.CountSince(ctx, *userID, monthStart)
		if err != nil {
			return err
		}
		if used >= limits.MonthlyOps {
			return apperror.WithMessage(apperror.ErrUpgradeRequired,
				"monthly operation quota reached")
		}
	}
	return nil
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MemorySubscriptions is an in-memory SubscriptionSource for tests.
type MemorySubscriptions struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]*Subscription
}

var _ SubscriptionSource = (*MemorySubscriptions)(nil)

func NewMemorySubscriptions() *MemorySubscriptions {
	return &MemorySubscriptions{subs: make(map[uuid.UUID]*Subscription)}
}

func (s *MemorySubscriptions) Set(userID uuid.UUID, sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[userID] = sub
}

func (s *MemorySubscriptions) SubscriptionFor(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[userID]
	if !ok {
		return nil, apperror.ErrNotFound
	}
	cp := *sub
	return &cp, nil
}
