package tools

import (
	"context"
	"errors"
	"strings"
)

// IsCancellationError reports whether an error represents an aborted or
// cancelled operation. Cancellations are never retried and never trigger
// backend fallback.
func IsCancellationError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "abort") ||
		strings.Contains(msg, "cancelled") ||
		strings.Contains(msg, "canceled")
}
