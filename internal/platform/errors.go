package platform

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable marks a capability that does not exist in the environment.
var ErrUnavailable = errors.New("capability unavailable")

// Stable error kinds written into collector *_error fields.
const (
	KindUnavailable      = "unavailable"
	KindPermissionDenied = "permission_denied"
	KindBlocked          = "blocked"
	KindTimeout          = "timeout"
	KindNotSupported     = "not_supported"
	KindUnknown          = "unknown"
	KindPanic            = "panic"
)

// DOMError is a named exception raised by a browser API.
type DOMError struct {
	Name    string
	Message string
}

func (e *DOMError) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// ErrorName returns the DOM exception name carried by err, or "".
func ErrorName(err error) string {
	var de *DOMError
	if errors.As(err, &de) {
		return de.Name
	}
	return ""
}

// IsPermissionDenied reports whether err is a NotAllowedError or
// SecurityError.
func IsPermissionDenied(err error) bool {
	switch ErrorName(err) {
	case "NotAllowedError", "SecurityError":
		return true
	}
	return false
}

// Kind maps err to a stable error kind.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case IsPermissionDenied(err):
		return KindPermissionDenied
	}
	return KindUnknown
}
