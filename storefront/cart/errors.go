package cart

import "fmt"

// PersistenceError reports a failed write of the local cart snapshot. The
// in-memory cart stays authoritative for the session when this happens.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist cart (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
