package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirillkom/claim-intake/internal/core/domain"
	"github.com/kirillkom/claim-intake/internal/infrastructure/resilience"
	"github.com/nats-io/nats.go"
)

// classifyNATSError separates bus outages, which count against the breaker
// and are retried, from events the bus refuses, which say nothing about its
// health and would fail again on retry.
func classifyNATSError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err), isBusOutage(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case isRejectedEvent(err):
		return resilience.ErrorClassification{}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

func isBusOutage(err error) bool {
	return errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrConnectionReconnecting)
}

func isRejectedEvent(err error) bool {
	return domain.IsKind(err, domain.ErrInvalidInput) ||
		errors.Is(err, nats.ErrMaxPayload) ||
		errors.Is(err, nats.ErrBadSubject) ||
		errors.Is(err, nats.ErrInvalidMsg)
}

// wrapPublishError names the claim and milestone that were lost and tags the
// error ErrTemporary for outages or ErrInvalidInput for refused events.
func wrapPublishError(event domain.IntakeEvent, err error) error {
	if err == nil {
		return nil
	}
	op := fmt.Sprintf("publish %s for claim %s", event.Type, event.ClaimID)
	switch {
	case domain.IsKind(err, domain.ErrTemporary), domain.IsKind(err, domain.ErrInvalidInput):
		return fmt.Errorf("%s: %w", op, err)
	case resilience.IsCircuitOpen(err), isBusOutage(err):
		return domain.WrapError(domain.ErrTemporary, op, err)
	case isRejectedEvent(err):
		return domain.WrapError(domain.ErrInvalidInput, op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
