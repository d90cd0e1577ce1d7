// Package apperr defines the failure classes shared by every stage of the
// labeling pipeline.
//
// Errors are wrapped with fmt.Errorf("%w") so callers classify them with
// errors.Is:
//
//   - ErrConfiguration: empty reference index, malformed taxonomy, invalid
//     weights. Fatal for the run.
//   - ErrCapability: an embedding, structural match or text extraction call
//     failed for one candidate. The candidate is skipped.
//   - ErrData: an input image could not be read or decoded. The image is
//     skipped and the batch continues.
//   - ErrValidation: a degenerate or out-of-bounds box. Discarded silently.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrCapability    = errors.New("capability error")
	ErrData          = errors.New("data error")
	ErrValidation    = errors.New("validation error")
)

// Configf returns an ErrConfiguration with a formatted reason.
func Configf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Capability wraps err from the named capability call.
func Capability(name string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrCapability, name, err)
}

// Data wraps an input read/decode failure for path.
func Data(path string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrData, path, err)
}
