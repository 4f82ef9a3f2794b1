package recon

import (
	"errors"
	"fmt"
)

// Error codes carried into run diagnostics. String codes (not sentinel
// errors) so they survive serialization into the run's diagnostic output.
const (
	// ErrCodeInvalidIdentifier marks a native identifier that cannot be
	// canonicalized. The record is skipped; the batch continues.
	ErrCodeInvalidIdentifier = "INVALID_IDENTIFIER"

	// ErrCodeDigestFailed marks a payload that could not be digested.
	ErrCodeDigestFailed = "DIGEST_FAILED"
)

// InvalidIdentifierError reports a native identifier that is empty or
// contains no alphanumeric characters.
type InvalidIdentifierError struct {
	NativeID string
	Reason   string
}

// Error implements the error interface.
func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("%s: %s (id=%q)", ErrCodeInvalidIdentifier, e.Reason, e.NativeID)
}

// IsInvalidIdentifier returns true if the error is an identifier
// canonicalization failure. Uses errors.As to handle wrapped errors.
func IsInvalidIdentifier(err error) bool {
	var ie *InvalidIdentifierError
	return errors.As(err, &ie)
}
