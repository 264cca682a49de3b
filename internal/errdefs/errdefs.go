// Package errdefs defines the error categories shared across the runtime.
// Callers classify failures with errors.Is against these sentinels; the
// concrete message is produced with the *f helpers so the sentinel stays in
// the chain.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks caller mistakes: oversized prompts, missing
	// required observers or buffers.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInternal marks broken invariants inside the runtime.
	ErrInternal = errors.New("internal error")

	// ErrCancelled marks a user-requested abort.
	ErrCancelled = errors.New("cancelled")
)

func InvalidArgumentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func Internalf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInternal, fmt.Sprintf(format, args...))
}

func Cancelledf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCancelled, fmt.Sprintf(format, args...))
}
