package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrResolutionFailed is matched by every *ResolutionError.
var ErrResolutionFailed = errors.New("resolution failed")

// ResolutionError is returned for a strict pass with error diagnostics.
// It carries every error so a build reports all problems at once.
type ResolutionError struct {
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	if len(e.Diagnostics) == 1 {
		return fmt.Sprintf("resolution failed: %s", e.Diagnostics[0])
	}
	lines := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		lines[i] = "  " + d.String()
	}
	return fmt.Sprintf("resolution failed with %d errors:\n%s", len(e.Diagnostics), strings.Join(lines, "\n"))
}

// Is lets errors.Is(err, ErrResolutionFailed) match.
func (e *ResolutionError) Is(target error) bool {
	return target == ErrResolutionFailed
}

// IsResolutionFailure reports whether err is, or wraps, a failed resolution.
func IsResolutionFailure(err error) bool {
	return errors.Is(err, ErrResolutionFailed)
}
