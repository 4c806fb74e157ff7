package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"shiporch/internal/carrier"
	"shiporch/internal/shipment"
	"shiporch/internal/slab"
	"shiporch/internal/zone"
)

type RateResponse struct {
	Weight slab.Result     `json:"weight"`
	Zone   zone.Zone       `json:"zone"`
	Quotes []carrier.Quote `json:"quotes"`
}

func (s *Server) handleGetRates(w http.ResponseWriter, r *http.Request) {
	if s.d.Quoter == nil {
		unavailable(w)
		return
	}
	q := r.URL.Query()
	origin, dest := strings.TrimSpace(q.Get("origin_pincode")), strings.TrimSpace(q.Get("destination_pincode"))
	if origin == "" || dest == "" {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "origin_pincode and destination_pincode required")
		return
	}
	pkg, err := parsePackage(q)
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	sh := shipment.Shipment{
		Package:     pkg,
		Origin:      shipment.Address{Pincode: origin},
		Destination: shipment.Address{Pincode: dest},
		PaymentMode: shipment.Prepaid,
	}
	if strings.EqualFold(q.Get("payment_mode"), string(shipment.COD)) {
		sh.PaymentMode = shipment.COD
	}
	quotes := s.d.Quoter.List(r.Context(), sh)
	if quotes == nil {
		quotes = []carrier.Quote{}
	}
	writeJSON(w, http.StatusOK, RateResponse{
		Weight: slab.Classify(pkg.WeightKg, pkg.LengthCm, pkg.WidthCm, pkg.HeightCm),
		Zone:   zone.Resolve(origin, dest),
		Quotes: quotes,
	})
}

func (s *Server) handleGetEstimate(w http.ResponseWriter, r *http.Request) {
	if s.d.Estimator == nil {
		unavailable(w)
		return
	}
	q := r.URL.Query()
	vendor, origin := strings.TrimSpace(q.Get("vendor_id")), strings.TrimSpace(q.Get("origin_pincode"))
	if vendor == "" || origin == "" {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "vendor_id and origin_pincode required")
		return
	}
	pkg, err := parsePackage(q)
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	res, err := s.d.Estimator.Estimate(r.Context(), vendor, origin, pkg)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleClearEstimates(w http.ResponseWriter, r *http.Request) {
	if s.d.Estimates == nil {
		unavailable(w)
		return
	}
	n, err := s.d.Estimates.Clear(r.Context(), strings.TrimSpace(r.URL.Query().Get("vendor_id")))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// parsePackage reads weight (kg) and length/width/height (cm). Weight is
// required; dimensions default to zero.
func parsePackage(q url.Values) (shipment.Package, error) {
	var pkg shipment.Package
	fields := []struct {
		name     string
		dst      *float64
		required bool
	}{
		{"weight", &pkg.WeightKg, true},
		{"length", &pkg.LengthCm, false},
		{"width", &pkg.WidthCm, false},
		{"height", &pkg.HeightCm, false},
	}
	for _, f := range fields {
		raw := strings.TrimSpace(q.Get(f.name))
		if raw == "" {
			if f.required {
				return shipment.Package{}, fmt.Errorf("%s required", f.name)
			}
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			return shipment.Package{}, fmt.Errorf("invalid %s", f.name)
		}
		*f.dst = v
	}
	if pkg.WeightKg <= 0 {
		return shipment.Package{}, errors.New("weight must be positive")
	}
	return pkg, nil
}
