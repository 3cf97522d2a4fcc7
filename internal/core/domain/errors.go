package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation rejects a submission before any network call is issued.
	ErrValidation = errors.New("validation failed")
	// ErrStream marks a description response whose body could not be read.
	ErrStream = errors.New("stream unreadable")
	// ErrNetwork marks a fetch-level failure against a backend endpoint.
	ErrNetwork = errors.New("network failure")
	// ErrTriage marks a non-2xx or malformed triage response.
	ErrTriage = errors.New("triage failed")
	// ErrSuperseded resolves a submission whose results were discarded by a newer one.
	ErrSuperseded = errors.New("submission superseded")

	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrTemporary    = errors.New("temporary failure")
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
