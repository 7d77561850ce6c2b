package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	dserrors "github.com/systmms/credcache/internal/errors"
)

// withFetchTimeout creates a context with timeout for a single field fetch
func withFetchTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}

// timeoutError replaces err with a user-facing explanation when ctx expired.
func timeoutError(ctx context.Context, err error, sourceName string, timeout time.Duration) error {
	if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return err
	}
	return dserrors.UserError{
		Message:    "Credential fetch timed out",
		Details:    fmt.Sprintf("Operation exceeded %dms timeout", timeout.Milliseconds()),
		Suggestion: timeoutSuggestion(sourceName, timeout),
		Err:        err,
	}
}

func timeoutSuggestion(sourceName string, timeout time.Duration) string {
	switch sourceName {
	case "1password", "onepassword":
		if timeout < 10*time.Second {
			return "1Password CLI can be slow. Try increasing fetch_timeout_ms to 15000 or check 'op signin'"
		}
		return "Check 1Password connectivity. Use 'op signin' if session expired"
	}

	if timeout < 10*time.Second {
		return "Try increasing fetch_timeout_ms in your configuration"
	}
	return "Check network connectivity and source authentication"
}
