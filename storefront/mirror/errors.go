package mirror

import "fmt"

// SyncError is a failed remote mirror call. Local state is never rolled back
// because of one; the next successful push or pull converges the two.
type SyncError struct {
	Op        string
	ProductID string
	Err       error
}

func (e *SyncError) Error() string {
	if e.ProductID == "" {
		return fmt.Sprintf("cart mirror %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cart mirror %s %s: %v", e.Op, e.ProductID, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}
