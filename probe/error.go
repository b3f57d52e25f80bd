package probe

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ErrorCodePathNotFound is returned when the supplied path does not exist.
	ErrorCodePathNotFound = "PATH_NOT_FOUND"
	// ErrorCodeNotADirectory is returned when the supplied path is not a directory.
	ErrorCodeNotADirectory = "NOT_A_DIRECTORY"
	// ErrorCodePermissionDenied is returned when the directory cannot be enumerated.
	ErrorCodePermissionDenied = "PERMISSION_DENIED"
	// ErrorCodeIO is returned for any other filesystem, pipe, or launch failure.
	ErrorCodeIO = "IO_ERROR"
	// ErrorCodeNoManifest is returned when no build manifest is present.
	ErrorCodeNoManifest = "NO_MANIFEST"
	// ErrorCodeTimeout is returned when the feedback process outlives its deadline.
	ErrorCodeTimeout = "TIMEOUT"
)

// ProbeError is the closed failure taxonomy shared by the locator and the
// compilation probe. Each value carries the context it needs to render
// itself: the offending path, the timeout, or the wrapped cause.
type ProbeError struct {
	Code           string `json:"code"`
	Path           string `json:"path,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	Cause          error  `json:"-"`
}

func (e *ProbeError) Error() string {
	if e == nil {
		return ""
	}
	switch e.Code {
	case ErrorCodePathNotFound:
		return "Path does not exist: " + e.Path
	case ErrorCodeNotADirectory:
		return "Path is not a directory: " + e.Path
	case ErrorCodePermissionDenied:
		return "Permission denied: " + e.Path
	case ErrorCodeNoManifest:
		return "No .cabal file found in directory: " + e.Path
	case ErrorCodeTimeout:
		return fmt.Sprintf("Compilation check timed out after %d seconds", e.TimeoutSeconds)
	case ErrorCodeIO:
		if e.Cause == nil {
			return "IO error"
		}
		return "IO error: " + e.Cause.Error()
	default:
		code := strings.TrimSpace(e.Code)
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", code, e.Cause)
		}
		return code
	}
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *ProbeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newPathNotFound(path string, cause error) *ProbeError {
	return &ProbeError{Code: ErrorCodePathNotFound, Path: path, Cause: cause}
}

func newNotADirectory(path string) *ProbeError {
	return &ProbeError{Code: ErrorCodeNotADirectory, Path: path}
}

func newPermissionDenied(path string, cause error) *ProbeError {
	return &ProbeError{Code: ErrorCodePermissionDenied, Path: path, Cause: cause}
}

func newIOError(cause error) *ProbeError {
	return &ProbeError{Code: ErrorCodeIO, Cause: cause}
}

func newNoManifest(path string) *ProbeError {
	return &ProbeError{Code: ErrorCodeNoManifest, Path: path}
}

func newTimeout(timeoutSeconds int, cause error) *ProbeError {
	return &ProbeError{Code: ErrorCodeTimeout, TimeoutSeconds: timeoutSeconds, Cause: cause}
}

// AsProbeError reports whether err (or anything it wraps) is a ProbeError.
func AsProbeError(err error) (*ProbeError, bool) {
	if err == nil {
		return nil, false
	}
	var probeErr *ProbeError
	if errors.As(err, &probeErr) {
		return probeErr, true
	}
	return nil, false
}

// ErrorCode returns the taxonomy code of err, or "" when err is not a ProbeError.
func ErrorCode(err error) string {
	if probeErr, ok := AsProbeError(err); ok && probeErr != nil {
		return probeErr.Code
	}
	return ""
}

// HasCode reports whether err carries the given taxonomy code.
func HasCode(err error, code string) bool {
	return ErrorCode(err) == code
}
