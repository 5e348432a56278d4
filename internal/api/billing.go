package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/toolscheap/toolscheap/internal/apperror"
)

type CheckoutRequest struct {
	Email string `json:"email"`
}

type SessionResponse struct {
	URL string `json:"url"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		apperror.WriteJSON(w, r, apperror.ErrUnauthorized)
		return
	}
	if !s.Billing.IsConfigured() {
		apperror.WriteJSON(w, r, apperror.WithMessage(apperror.ErrServiceUnavailable, "billing is not configured"))
		return
	}

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperror.WriteJSON(w, r, apperror.WithMessage(apperror.ErrBadRequest, "invalid request body"))
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		apperror.WriteJSON(w, r, apperror.WithMessage(apperror.ErrBadRequest, "a valid email is required"))
		return
	}

	url, err := s.Billing.CreateCheckoutSession(r.Context(), userID, req.Email)
	if err != nil {
		apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrInternal))
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{URL: url})
}

func (s *Server) handlePortal(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		apperror.WriteJSON(w, r, apperror.ErrUnauthorized)
		return
	}
	if !s.Billing.IsConfigured() {
		apperror.WriteJSON(w, r, apperror.WithMessage(apperror.ErrServiceUnavailable, "billing is not configured"))
		return
	}

	url, err := s.Billing.CreatePortalSession(r.Context(), userID)
	if err != nil {
		apperror.WriteJSON(w, r, apperror.Wrap(err, apperror.ErrInternal))
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{URL: url})
}

func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if s.StripeWebhook == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.StripeWebhook.HandleWebhook(w, r)
}
