package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrPermission          = errors.New("permission denied")
	ErrIO                  = errors.New("io error")
	ErrVerification        = errors.New("verification failed")
	ErrOperationInProgress = errors.New("operation already in progress")
	ErrConfiguration       = errors.New("configuration error")
	ErrTransient           = errors.New("transient failure")
)

// Wrap builds an error message that includes operation context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, operation, step, message string, err error) error {
	detail := buildDetail(operation, step, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsPerFile reports whether an error should be captured on the affected
// record and counted rather than aborting the enclosing run.
func IsPerFile(err error) bool {
	return errors.Is(err, ErrPermission) || errors.Is(err, ErrIO) || errors.Is(err, ErrVerification) || errors.Is(err, ErrNotFound)
}

// IsRetryable reports whether a failure may succeed on a bounded retry.
// Permission and verification failures are deterministic and never retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrIO)
}

func buildDetail(operation, step, message string) string {
	parts := make([]string, 0, 3)
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if step = strings.TrimSpace(step); step != "" {
		parts = append(parts, step)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
