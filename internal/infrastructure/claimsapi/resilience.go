package claimsapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"

	"github.com/kirillkom/claim-intake/internal/core/domain"
	"github.com/kirillkom/claim-intake/internal/infrastructure/resilience"
)

func classifyCallError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if isRetryableHTTPStatus(statusErr.StatusCode) {
			return resilience.ErrorClassification{
				Retryable:     true,
				RecordFailure: true,
			}
		}
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}

	if isTransportFailure(err) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}

func isTransportFailure(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}

// wrapCallError tags err with the given kinds plus ErrNetwork for transport
// failures and ErrTemporary for failures worth a manual retry.
func wrapCallError(operation string, err error, kinds ...error) error {
	if err == nil {
		return nil
	}
	if isTransportFailure(err) && !slices.Contains(kinds, domain.ErrNetwork) {
		kinds = append(kinds, domain.ErrNetwork)
	}
	if class := classifyCallError(err); class.Retryable && !domain.IsKind(err, domain.ErrTemporary) {
		kinds = append(kinds, domain.ErrTemporary)
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound && !slices.Contains(kinds, domain.ErrTriage) {
		kinds = append(kinds, domain.ErrNotFound)
	}

	wrapped := err
	for i := len(kinds) - 1; i >= 0; i-- {
		wrapped = fmt.Errorf("%w: %w", kinds[i], wrapped)
	}
	return fmt.Errorf("%s: %w", operation, wrapped)
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
