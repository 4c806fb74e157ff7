package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"shiporch/internal/carrier"
)

const maxWebhookBody = 1 << 20

// handleWebhook verifies an HMAC-SHA256 signature over the raw body and
// hands the payload to the tracker. The secret comes from
// <SOURCE>_WEBHOOK_SECRET; sources without one are refused.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	source := carrier.NormalizeID(chi.URLParam(r, "source"))
	if source == "" {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "source required")
		return
	}
	if s.d.Registry == nil || s.d.Tracker == nil {
		unavailable(w)
		return
	}
	if _, err := s.d.Registry.Get(source); err != nil {
		writeErrorJSON(w, http.StatusNotFound, "unsupported_source", "unsupported source")
		return
	}
	secret := s.d.WebhookSecret(source)
	if strings.TrimSpace(secret) == "" {
		writeErrorJSON(w, http.StatusUnauthorized, "secret_not_configured", "webhook secret not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "read_error", "read error")
		return
	}
	sigHeader := strings.TrimSpace(r.Header.Get("X-Signature"))
	sigHeader = strings.TrimPrefix(sigHeader, "sha256=")
	if sigHeader == "" {
		writeErrorJSON(w, http.StatusUnauthorized, "missing_signature", "missing signature")
		return
	}
	provided, err := hex.DecodeString(sigHeader)
	if err != nil {
		writeErrorJSON(w, http.StatusUnauthorized, "invalid_signature_format", "invalid signature format")
		return
	}
	if !hmac.Equal(provided, sign(secret, body)) {
		writeErrorJSON(w, http.StatusUnauthorized, "signature_mismatch", "signature mismatch")
		return
	}

	out, err := s.d.Tracker.ApplyPush(r.Context(), source, body)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.d.Log.Info("tracking push applied",
		zap.String("carrier", source),
		zap.String("order_id", out.OrderID),
		zap.String("awb", out.Snapshot.AWB),
		zap.Bool("rto", out.MovedRTO))
	writeJSON(w, http.StatusOK, out)
}

func sign(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
