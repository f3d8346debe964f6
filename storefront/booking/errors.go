package booking

import (
	"errors"
	"strings"
)

// ErrInProgress is returned when an order is placed while another one is
// still being validated or submitted.
var ErrInProgress = errors.New("a booking is already being placed")

// ValidationError lists the checkout preconditions that are not met. No
// remote call is made when it is returned.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return "cannot place booking: " + strings.Join(e.Reasons, "; ")
}

// SubmissionError means the booking resource rejected the order or could
// not be reached. The cart and selections are left as they were.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return "booking submission failed: " + e.Err.Error()
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
