package bus

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed indicates that the subscription has been closed and every
	// buffered message has been consumed.
	ErrClosed = errors.New("bus: subscription closed")

	// ErrEmpty indicates that TryRecv found no buffered message.
	ErrEmpty = errors.New("bus: no message available")
)

// LaggedError reports that messages were dropped from a subscription because
// its owner did not keep up with the publish rate.
//
// It is returned once by Recv/TryRecv; the next call resumes with the oldest
// message still buffered.
type LaggedError struct {
	// Dropped is the number of messages dropped since the previous lag report.
	Dropped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("bus: subscriber lagged, %d message(s) dropped", e.Dropped)
}

// IsLagged reports whether err is a *LaggedError and returns the number of dropped messages.
func IsLagged(err error) (uint64, bool) {
	var lagErr *LaggedError
	if errors.As(err, &lagErr) {
		return lagErr.Dropped, true
	}

	return 0, false
}
