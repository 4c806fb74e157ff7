package carrier

import (
	"errors"
	"fmt"
)

var (
	// ErrAdapterData marks a malformed carrier response.
	ErrAdapterData = errors.New("malformed carrier response")
	// ErrBalanceInsufficient marks a carrier wallet that cannot fund the request.
	ErrBalanceInsufficient = errors.New("carrier balance insufficient")
	// ErrTrackingParseAmbiguous marks a tracking payload whose shape was not recognised.
	ErrTrackingParseAmbiguous = errors.New("tracking payload not recognised")
	ErrUnknownCarrier         = errors.New("unknown carrier")
)

// APIError is a non-2xx or unsuccessful carrier response.
type APIError struct {
	Carrier string
	Op      string
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s: status %d: %s: %s", e.Carrier, e.Op, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Carrier, e.Op, e.Status, e.Message)
}
