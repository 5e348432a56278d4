package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stripe/stripe-go/v83"

	"github.com/toolscheap/toolscheap/internal/logger"
)

// Service handles subscription lifecycle: checkout, billing portal, and the
// webhook-driven state sync from Stripe into the users table.
type Service struct {
	client  *Client
	pool    *pgxpool.Pool
	baseURL string
}

func NewService(client *Client, pool *pgxpool.Pool, baseURL string) *Service {
	return &Service{
		client:  client,
		pool:    pool,
		baseURL: baseURL,
	}
}

func (s *Service) IsConfigured() bool {
	return s.client.IsConfigured()
}

// CreateCheckoutSession starts a pro subscription checkout and returns the
// hosted page URL.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID uuid.UUID, email string) (string, error) {
	if !s.IsConfigured() {
		return "", fmt.Errorf("stripe not configured")
	}

	customerID, err := s.ensureCustomer(ctx, userID, email)
	if err != nil {
		return "", err
	}

	params := &stripe.CheckoutSessionCreateParams{
		Customer: stripe.String(customerID),
		Mode:     stripe.String("subscription"),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(s.client.PriceIDPro()),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(s.baseURL + "/billing?success=1"),
		CancelURL:  stripe.String(s.baseURL + "/billing?canceled=1"),
		SubscriptionData: &stripe.CheckoutSessionCreateSubscriptionDataParams{
			Metadata: map[string]string{
				"user_id": userID.String(),
			},
		},
	}

	session, err := s.client.StripeClient().V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return session.URL, nil
}

// CreatePortalSession returns a billing portal URL for subscription
// management.
func (s *Service) CreatePortalSession(ctx context.Context, userID uuid.UUID) (string, error) {
	if !s.IsConfigured() {
		return "", fmt.Errorf("stripe not configured")
	}

	var customerID *string
	err := s.pool.QueryRow(ctx,
		`SELECT stripe_customer_id FROM users WHERE id = $1`, userID,
	).Scan(&customerID)
	if err != nil {
		return "", fmt.Errorf("load user %s: %w", userID, err)
	}
	if customerID == nil || *customerID == "" {
		return "", fmt.Errorf("user %s has no stripe customer", userID)
	}

	params := &stripe.BillingPortalSessionCreateParams{
		Customer:  customerID,
		ReturnURL: stripe.String(s.baseURL + "/billing"),
	}
	session, err := s.client.StripeClient().V1BillingPortalSessions.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return session.URL, nil
}

func (s *Service) ensureCustomer(ctx context.Context, userID uuid.UUID, email string) (string, error) {
	var existing *string
	err := s.pool.QueryRow(ctx,
		`SELECT stripe_customer_id FROM users WHERE id = $1`, userID,
	).Scan(&existing)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("load user %s: %w", userID, err)
	}
	if existing != nil && *existing != "" {
		return *existing, nil
	}

	customer, err := s.client.StripeClient().V1Customers.Create(ctx, &stripe.CustomerCreateParams{
		Email: stripe.String(email),
		Metadata: map[string]string{
			"user_id": userID.String(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE users SET stripe_customer_id = $2 WHERE id = $1`,
		userID, customer.ID,
	)
	if err != nil {
		return "", fmt.Errorf("save stripe customer id: %w", err)
	}
	return customer.ID, nil
}

// ApplySubscription writes the subscription state carried by a webhook event
// onto the user row.
func (s *Service) ApplySubscription(ctx context.Context, sub *stripe.Subscription) error {
	userID, err := userIDFromSubscription(sub)
	if err != nil {
		return err
	}

	status := mapStripeStatus(sub.Status)
	tier := TierPro
	if status == StatusCanceled || status == StatusNone {
		tier = TierFree
	}

	var periodEnd *time.Time
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].CurrentPeriodEnd > 0 {
		t := time.Unix(sub.Items.Data[0].CurrentPeriodEnd, 0).UTC()
		periodEnd = &t
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE users SET
			stripe_subscription_id = $2,
			subscription_tier = $3,
			subscription_status = $4,
			subscription_period_end = $5
		WHERE id = $1`,
		userID, sub.ID, tier, status, periodEnd,
	)
	if err != nil {
		return fmt.Errorf("update subscription for %s: %w", userID, err)
	}

	logger.FromContext(ctx).Info("subscription updated",
		"user_id", userID, "tier", tier, "status", status)
	return nil
}

func userIDFromSubscription(sub *stripe.Subscription) (uuid.UUID, error) {
	raw, ok := sub.Metadata["user_id"]
	if !ok || raw == "" {
		return uuid.Nil, fmt.Errorf("subscription %s has no user_id metadata", sub.ID)
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("subscription %s has invalid user_id: %w", sub.ID, err)
	}
	return userID, nil
}

func mapStripeStatus(status stripe.SubscriptionStatus) SubscriptionStatus {
	switch status {
	case stripe.SubscriptionStatusActive:
		return StatusActive
	case stripe.SubscriptionStatusTrialing:
		return StatusTrialing
	case stripe.SubscriptionStatusPastDue:
		return StatusPastDue
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusUnpaid,
		stripe.SubscriptionStatusIncompleteExpired:
		return StatusCanceled
	default:
		return StatusNone
	}
}
