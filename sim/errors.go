package sim

import (
	"errors"
	"fmt"
)

// ErrInvalidDestination is returned when a requested route does not terminate at
// the requested destination. It is local to the caller; the run continues.
var ErrInvalidDestination = errors.New("route does not terminate at requested destination")

// ErrCapacityExceeded is returned by an enqueue past a queue's capacity.
// Callers are expected to check remaining capacity first and treat a full queue
// as backpressure.
var ErrCapacityExceeded = errors.New("queue capacity exceeded")

// ErrNoMessageReady is the normal outcome of polling an empty processed queue.
var ErrNoMessageReady = errors.New("no message ready")

// ConfigurationError is a fatal problem detected before a run starts,
// such as an unknown routing mode or a malformed trace path.
type ConfigurationError struct {
	Key   string
	Value string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error: %s=%q: %v", e.Key, e.Value, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// TraceReadFailure is an unrecoverable I/O error while reading a trace.
// It aborts the replication that owns the reader.
type TraceReadFailure struct {
	Path string
	Err  error
}

func (e *TraceReadFailure) Error() string {
	return fmt.Sprintf("reading trace %s: %v", e.Path, e.Err)
}

func (e *TraceReadFailure) Unwrap() error { return e.Err }

// IsFatal reports whether err must abort the simulation (configuration or trace I/O).
func IsFatal(err error) bool {
	var cfgErr *ConfigurationError
	var traceErr *TraceReadFailure
	return errors.As(err, &cfgErr) || errors.As(err, &traceErr)
}
