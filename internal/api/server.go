package api

import (
	"net/http"
	"time"

	"github.com/toolscheap/toolscheap/internal/analytics"
	"github.com/toolscheap/toolscheap/internal/billing"
	"github.com/toolscheap/toolscheap/internal/health"
	"github.com/toolscheap/toolscheap/internal/job"
	"github.com/toolscheap/toolscheap/internal/queue"
	"github.com/toolscheap/toolscheap/internal/storage"
)

// Server bundles the dependencies of the HTTP tier. Fields are plain so
// tests can assemble a server from in-memory fakes.
type Server struct {
	Jobs          job.Store
	Enqueuer      queue.Enqueuer
	Storage       storage.Storage
	Signer        *storage.URLSigner
	Entitlements  *billing.Entitlements
	Usage         job.UsageRecorder
	Billing       *billing.Service
	StripeWebhook *billing.WebhookHandler
	Analytics     *analytics.Service
	Health        *health.Checker
	Limiter       *RateLimiter

	JWTSecret     string
	MaxUploadSize int64
	SyncThreshold int64
	SignedURLTTL  time.Duration
	DevMode       bool
}

func (s *Server) signedURLTTL() time.Duration {
	if s.SignedURLTTL <= 0 {
		return 24 * time.Hour
	}
	return s.SignedURLTTL
}

// Routes assembles the full handler tree with the middleware stack applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	if s.Health != nil {
		mux.HandleFunc("GET /health", health.HealthHandler(s.Health))
		mux.HandleFunc("GET /health/live", health.LivenessHandler())
		mux.HandleFunc("GET /health/ready", health.ReadinessHandler(s.Health))
	}

	optional := AuthOptional(s.JWTSecret)
	required := AuthRequired(s.JWTSecret)
	limited := RateLimit(s.Limiter)

	mux.Handle("POST /api/v1/tools/{tool}", optional(limited(http.HandlerFunc(s.handleSubmit))))
	mux.Handle("GET /api/v1/jobs/{id}/status", optional(http.HandlerFunc(s.handleJobStatus)))
	mux.Handle("GET /api/v1/jobs", required(http.HandlerFunc(s.handleListJobs)))
	mux.Handle("POST /api/v1/jobs/{id}/cancel", optional(http.HandlerFunc(s.handleCancelJob)))

	mux.HandleFunc("GET /files/download/{key...}", s.handleDownload)

	if s.Billing != nil {
		mux.Handle("POST /api/v1/billing/checkout", required(http.HandlerFunc(s.handleCheckout)))
		mux.Handle("POST /api/v1/billing/portal", required(http.HandlerFunc(s.handlePortal)))
		mux.HandleFunc("POST /webhooks/stripe", s.handleStripeWebhook)
	}

	if s.Analytics != nil {
		mux.Handle("GET /api/v1/admin/stats", required(http.HandlerFunc(s.handleAdminStats)))
		mux.Handle("GET /api/v1/admin/charts/{kind}", required(http.HandlerFunc(s.handleAdminChart)))
	}

	return SecurityHeaders(HTTPMetrics(Recovery(RequestID(RequestLogger(CORSWithOrigins(s.DevMode)(mux))))))
}
