package restmock

import (
	"fmt"
	"time"
)

// TimeoutError is returned by AwaitRequest when no request arrives in time.
type TimeoutError struct {
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %v waiting for an incoming request", e.Timeout)
}
