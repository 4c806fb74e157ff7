package booking

import (
	"errors"
	"fmt"
)

var (
	// ErrNoViableCarrier means every carrier was excluded or none quoted.
	ErrNoViableCarrier = errors.New("no viable carrier")
	// ErrBookingFatal matches any *StepError.
	ErrBookingFatal = errors.New("booking failed")
	// ErrDuplicateBooking is benign: the order already has a booking record.
	ErrDuplicateBooking = errors.New("order already booked")
)

// StepError is a non-balance failure in one carrier booking step.
type StepError struct {
	Step    string
	Carrier string
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("booking %s via %s: %v", e.Step, e.Carrier, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func (e *StepError) Is(target error) bool { return target == ErrBookingFatal }
