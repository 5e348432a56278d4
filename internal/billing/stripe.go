package billing

import (
	"github.com/stripe/stripe-go/v83"
)

// Client wraps the Stripe SDK. A nil Client means billing is not configured
// and checkout endpoints return service unavailable.
type Client struct {
	client        *stripe.Client
	webhookSecret string
	priceIDPro    string
}

func NewClient(secretKey, webhookSecret, priceIDPro string) *Client {
	if secretKey == "" {
		return nil
	}
	return &Client{
		client:        stripe.NewClient(secretKey),
		webhookSecret: webhookSecret,
		priceIDPro:    priceIDPro,
	}
}

func (c *Client) IsConfigured() bool {
	return c != nil && c.client != nil
}

func (c *Client) WebhookSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

func (c *Client) PriceIDPro() string {
	if c == nil {
		return ""
	}
	return c.priceIDPro
}

func (c *Client) StripeClient() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.client
}
