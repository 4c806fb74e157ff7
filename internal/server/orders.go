package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"shiporch/internal/shipment"
)

func orderID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "order id required")
		return "", false
	}
	return id, true
}

// handleCreateShipment books the order. The path id wins over any order_id
// in the body. A repeat call returns the stored booking with 200.
func (s *Server) handleCreateShipment(w http.ResponseWriter, r *http.Request) {
	if s.d.Booker == nil {
		unavailable(w)
		return
	}
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var sh shipment.Shipment
	if err := json.NewDecoder(r.Body).Decode(&sh); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	sh.OrderID = id
	if sh.PaymentMode == "" {
		sh.PaymentMode = shipment.Prepaid
	}

	res, err := s.d.Booker.Book(r.Context(), sh)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (s *Server) handleRefreshTracking(w http.ResponseWriter, r *http.Request) {
	if s.d.Tracker == nil {
		unavailable(w)
		return
	}
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	out, err := s.d.Tracker.Refresh(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleRTO settles an order manually, e.g. after an RTO reported outside
// tracking. A second call answers 409.
func (s *Server) handleRTO(w http.ResponseWriter, r *http.Request) {
	if s.d.Settler == nil {
		unavailable(w)
		return
	}
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	res, err := s.d.Settler.ProcessRTO(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
