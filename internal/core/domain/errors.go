package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrTransient      = errors.New("transient failure")
	ErrPermanent      = errors.New("permanent failure")
	ErrCapacity       = errors.New("capacity exceeded")
	ErrSyncInProgress = errors.New("sync already in progress")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// IsRetryable reports whether err carries a kind that a retry may fix.
func IsRetryable(err error) bool {
	return IsKind(err, ErrTransient) || IsKind(err, ErrCapacity)
}
