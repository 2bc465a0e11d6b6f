package campaign

import (
	"errors"
	"fmt"
)

// ErrAdvanceConflict is reported by the subject store when the
// conditional advance found a different cursor than expected, meaning
// another process already advanced the subject. Not an error in the
// operational sense — the advancer treats it as already-handled.
var ErrAdvanceConflict = errors.New("subject already advanced by another process")

// DeliveryError classifies a failed send. Transient failures (provider
// 5xx, timeouts, open circuit) are retried automatically on the next
// tick. Permanent failures (missing contact address, unrenderable
// payload) will also be retried — the store state does not change — but
// are logged at error level so an operator can mark the subject skipped.
type DeliveryError struct {
	Err       error
	Permanent bool
}

func (e *DeliveryError) Error() string {
	if e.Permanent {
		return fmt.Sprintf("permanent delivery failure: %v", e.Err)
	}
	return fmt.Sprintf("transient delivery failure: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable delivery failure.
func Transient(err error) error {
	return &DeliveryError{Err: err}
}

// Permanent wraps err as a delivery failure that will not succeed
// without operator or domain intervention.
func Permanent(err error) error {
	return &DeliveryError{Err: err, Permanent: true}
}

// IsPermanent reports whether err is (or wraps) a permanent delivery
// failure. Unknown errors are treated as transient.
func IsPermanent(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Permanent
}
