// Package kerrors defines the error kinds the core surfaces, per the
// spec's error-handling design. Sentinel kinds are wrapped with
// pkg/errors so callers can both errors.Is() against a stable kind
// and read a human trace of where it originated.
package kerrors

import "github.com/pkg/errors"

// Sentinel error kinds. Compare with errors.Is, not ==, since callers
// nearly always receive a wrapped value.
var (
	ErrOutOfMemory     = errors.New("out of memory")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotOwner        = errors.New("not owner")
	ErrDeadlock        = errors.New("deadlock detected")
	ErrWouldBlock      = errors.New("would block")
	ErrTimeout         = errors.New("timed out")
	ErrInterrupted     = errors.New("interrupted")
	ErrNotFound        = errors.New("not found")
	ErrBusy            = errors.New("busy")
	ErrUnsupported     = errors.New("unsupported")
)

// Wrap attaches context to a sentinel kind while preserving it for
// errors.Is/errors.Cause.
func Wrap(kind error, context string) error {
	return errors.Wrap(kind, context)
}

// Wrapf is Wrap with fmt-style formatting.
func Wrapf(kind error, format string, args ...interface{}) error {
	return errors.Wrapf(kind, format, args...)
}

// Is reports whether err's chain contains kind.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}
