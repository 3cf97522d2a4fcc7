package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/claim-intake/internal/core/domain"
	"github.com/kirillkom/claim-intake/internal/infrastructure/resilience"
)

const defaultQueueGroup = "claim-journal"

// Queue carries intake lifecycle events. Each event type is published on
// its own subject below the configured prefix.
type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("claim-intake"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  strings.TrimSuffix(subject, "."),
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishIntakeEvent(ctx context.Context, event domain.IntakeEvent) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return wrapPublishError(event, err)
	}
	subject := subjectFor(q.subject, event.Type)

	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapPublishError(event, err)
	}
	return nil
}

func (q *Queue) SubscribeIntakeEvents(ctx context.Context, handler func(context.Context, domain.IntakeEvent) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject+".>", defaultQueueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		q.dispatch(ctx, msg.Subject, msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (q *Queue) dispatch(ctx context.Context, subject string, data []byte, handler func(context.Context, domain.IntakeEvent) error) {
	event, err := decodeEvent(data)
	if err != nil {
		q.logger.Error("intake_event_decode_failed", "subject", subject, "error", err)
		return
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := handler(handlerCtx, event); err != nil {
		q.logger.Error("intake_event_handler_failed",
			"subject", subject,
			"claim_id", event.ClaimID,
			"event", event.Type,
			"error", err,
		)
	}
}

func subjectFor(prefix string, eventType domain.IntakeEventType) string {
	return prefix + "." + string(eventType)
}

func encodeEvent(event domain.IntakeEvent) ([]byte, error) {
	if strings.TrimSpace(event.ClaimID) == "" || event.Type == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode intake event", errors.New("claim id and type are required"))
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal intake event: %w", err)
	}
	return payload, nil
}

func decodeEvent(data []byte) (domain.IntakeEvent, error) {
	var event domain.IntakeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.IntakeEvent{}, domain.WrapError(domain.ErrInvalidInput, "decode intake event", err)
	}
	if strings.TrimSpace(event.ClaimID) == "" || event.Type == "" {
		return domain.IntakeEvent{}, domain.WrapError(domain.ErrInvalidInput, "decode intake event", errors.New("claim id and type are required"))
	}
	return event, nil
}
