package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"shiporch/internal/booking"
	"shiporch/internal/carrier"
	"shiporch/internal/config"
	"shiporch/internal/estimate"
	"shiporch/internal/order"
	"shiporch/internal/settlement"
	"shiporch/internal/shipment"
	"shiporch/internal/tracking"
)

type Booker interface {
	Book(ctx context.Context, s shipment.Shipment) (booking.Result, error)
}

type Quoter interface {
	List(ctx context.Context, s shipment.Shipment) []carrier.Quote
}

type Estimator interface {
	Estimate(ctx context.Context, vendorID, origin string, pkg shipment.Package) (estimate.Result, error)
}

// EstimateClearer drops cached estimates; an empty vendorID clears all.
type EstimateClearer interface {
	Clear(ctx context.Context, vendorID string) (int64, error)
}

type Tracker interface {
	Refresh(ctx context.Context, orderID string) (tracking.Outcome, error)
	ApplyPush(ctx context.Context, carrierID string, body []byte) (tracking.Outcome, error)
}

type Settler interface {
	ProcessRTO(ctx context.Context, orderID string) (settlement.Result, error)
}

// Deps wires the handlers. Any nil collaborator makes its routes answer
// 503. WebhookSecret defaults to config.WebhookSecret.
type Deps struct {
	Registry      *carrier.Registry
	Booker        Booker
	Quoter        Quoter
	Estimator     Estimator
	Estimates     EstimateClearer
	Tracker       Tracker
	Settler       Settler
	WebhookSecret func(source string) string
	Log           *zap.Logger
}

type Server struct {
	d Deps
}

func New(d Deps) http.Handler {
	if d.WebhookSecret == nil {
		d.WebhookSecret = config.WebhookSecret
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	s := &Server{d: d}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/rates", s.handleGetRates)
	r.Get("/estimates", s.handleGetEstimate)
	r.Delete("/estimates", s.handleClearEstimates)
	r.Route("/orders/{id}", func(r chi.Router) {
		r.Post("/shipments", s.handleCreateShipment)
		r.Post("/tracking/refresh", s.handleRefreshTracking)
		r.Post("/rto", s.handleRTO)
	})
	r.Post("/webhooks/{source}", s.handleWebhook)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErrorJSON writes a standardized JSON error response:
// {"error": {"code": string, "message": string}}
func writeErrorJSON(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// writeDomainError maps engine errors onto HTTP statuses. Unknown errors
// are logged and reported without detail.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, shipment.ErrInvalid):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, order.ErrNotFound):
		status, code = http.StatusNotFound, "resource_not_found"
	case errors.Is(err, carrier.ErrUnknownCarrier), errors.Is(err, tracking.ErrPushUnsupported):
		status, code = http.StatusNotFound, "unsupported_source"
	case errors.Is(err, carrier.ErrAdapterData):
		status, code = http.StatusBadRequest, "invalid_payload"
	case errors.Is(err, booking.ErrNoViableCarrier):
		status, code = http.StatusUnprocessableEntity, "no_viable_carrier"
	case errors.Is(err, booking.ErrDuplicateBooking):
		status, code = http.StatusConflict, "already_booked"
	case errors.Is(err, booking.ErrBookingFatal):
		status, code = http.StatusBadGateway, "booking_failed"
	case errors.Is(err, estimate.ErrNoQuotes):
		status, code = http.StatusUnprocessableEntity, "no_quotes"
	case errors.Is(err, tracking.ErrThrottled):
		status, code = http.StatusTooManyRequests, "throttled"
	case errors.Is(err, tracking.ErrNotBooked):
		status, code = http.StatusConflict, "not_booked"
	case errors.Is(err, settlement.ErrAlreadyProcessed):
		status, code = http.StatusConflict, "already_processed"
	case errors.Is(err, settlement.ErrNotRTO):
		status, code = http.StatusConflict, "not_rto"
	case errors.Is(err, settlement.ErrNotBooked):
		status, code = http.StatusConflict, "not_booked"
	}
	if status == http.StatusInternalServerError {
		s.d.Log.Error("request failed",
			zap.String("request_id", w.Header().Get("X-Request-ID")),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeErrorJSON(w, status, code, "internal error")
		return
	}
	writeErrorJSON(w, status, code, err.Error())
}

func unavailable(w http.ResponseWriter) {
	writeErrorJSON(w, http.StatusServiceUnavailable, "not_configured", "feature not configured")
}

// requestIDMiddleware ensures X-Request-ID is set on the response.
// If provided in the request header, it is propagated; otherwise a UUID is generated.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if rid == "" {
			rid = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r)
	})
}
