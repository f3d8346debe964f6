package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidBooking = errors.New("invalid booking")
	ErrTotalsMismatch = errors.New("booking charges do not match the items")
)

// ChargesError reports which charge the submitted booking got wrong.
type ChargesError struct {
	Field    string
	Got      float64
	Expected float64
}

func (e *ChargesError) Error() string {
	return fmt.Sprintf("%s is %.2f, expected %.2f", e.Field, e.Got, e.Expected)
}

func (e *ChargesError) Unwrap() error {
	return ErrTotalsMismatch
}
