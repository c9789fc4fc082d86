package pod

import (
	"errors"
	"fmt"
)

var (
	// ErrCycle indicates a provider transitively watched itself.
	ErrCycle = errors.New("pod: dependency cycle")
	// ErrContainerDisposed is returned when operating on a disposed container.
	ErrContainerDisposed = errors.New("pod: container disposed")
	// ErrRefRevoked is returned when a Ref is used outside the synchronous
	// extent of the computation it was issued for.
	ErrRefRevoked = errors.New("pod: ref used after computation finished")
)

// UsageError reports a caller contract violation: watching outside a
// computation, forming a dependency cycle, overriding in a loop, or using a
// disposed container. It is never recovered or retried by the runtime.
type UsageError struct {
	Op         string
	Definition string
	Err        error
}

func (e *UsageError) Error() string {
	if e.Definition != "" {
		return fmt.Sprintf("pod: %s on %q: %v", e.Op, e.Definition, e.Err)
	}
	return fmt.Sprintf("pod: %s: %v", e.Op, e.Err)
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

func usageErr(op, definition string, err error) *UsageError {
	return &UsageError{Op: op, Definition: definition, Err: err}
}

// IsUsageError reports whether err is a caller contract violation as opposed
// to a computation error produced by a factory.
func IsUsageError(err error) bool {
	var ue *UsageError
	return errors.As(err, &ue)
}
