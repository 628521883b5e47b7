package gmail

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"google.golang.org/api/googleapi"

	"github.com/custodia-labs/vellum/internal/core/domain"
)

// mapError converts a Gmail API error into a domain error. Rate limit
// responses also arm the limiter's backoff window.
func mapError(err error, limiter *RateLimiter, op string) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fmt.Errorf("%s: %w", op, err)
	}

	switch {
	case gerr.Code == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s: %v", domain.ErrAuthRequired, op, err)
	case gerr.Code == http.StatusTooManyRequests || isQuotaError(gerr):
		retry, _ := strconv.Atoi(gerr.Header.Get("Retry-After"))
		limiter.RecordRateLimitError(retry)
		return fmt.Errorf("%w: %s: %v", domain.ErrRateLimited, op, err)
	case gerr.Code == http.StatusForbidden:
		return fmt.Errorf("%w: %s: insufficient permissions: %v", domain.ErrAuthRequired, op, err)
	case gerr.Code == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, op)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// isQuotaError reports a 403 carrying a rate limit reason.
func isQuotaError(gerr *googleapi.Error) bool {
	if gerr.Code != http.StatusForbidden {
		return false
	}
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded":
			return true
		}
	}
	return false
}
