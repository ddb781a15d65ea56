package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"storefront-svc/config"
	"storefront-svc/middleware"
	"storefront-svc/models"
)

// MessageReader is the part of *kafkago.Reader the notifier uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

func NewNotificationReader(cfg config.KafkaConfig) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.NotifyGroup,
		SessionTimeout: 10 * time.Second,
		StartOffset:    kafkago.LastOffset,
		MaxBytes:       10e6, // 10MB
	})
}

// Sender delivers a text message to a customer contact number.
type Sender interface {
	Send(ctx context.Context, contact, message string) error
}

// LogSender writes notifications to the log instead of an SMS gateway.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, contact, message string) error {
	s.logger.Info("[SMS] notification",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("to", contact),
		zap.String("body", message))
	return nil
}

// Notifier tells customers about their orders as events arrive.
type Notifier struct {
	reader     MessageReader
	sender     Sender
	logger     *zap.Logger
	maxRetries int
	backoff    time.Duration
}

func NewNotifier(reader MessageReader, sender Sender, logger *zap.Logger) *Notifier {
	return &Notifier{
		reader:     reader,
		sender:     sender,
		logger:     logger,
		maxRetries: 3,
		backoff:    time.Second,
	}
}

// Run consumes until ctx is cancelled. A message is committed once handled,
// or after its retries are exhausted.
func (n *Notifier) Run(ctx context.Context) error {
	defer n.reader.Close()
	n.logger.Info("Notifier started")

	for {
		msg, err := n.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		if err := n.handleWithRetry(ctx, msg); err != nil {
			n.logger.Error("Failed to handle message after retries",
				zap.Int64("offset", msg.Offset), zap.Error(err))
		}
		if err := n.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			n.logger.Error("Failed to commit message", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

func (n *Notifier) handleWithRetry(ctx context.Context, msg kafkago.Message) error {
	var lastErr error
	for attempt := 1; attempt <= n.maxRetries; attempt++ {
		err := n.handle(ctx, msg)
		if err == nil {
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return err
		}
		lastErr = err
		if attempt < n.maxRetries {
			backoff := time.Duration(attempt) * n.backoff
			n.logger.Warn("Retrying message handling",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", n.maxRetries, lastErr)
}

// permanentError marks failures that retrying cannot fix.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func (n *Notifier) handle(ctx context.Context, msg kafkago.Message) error {
	ctx = otel.GetTextMapPropagator().Extract(ctx, kafkagoHeaderCarrier(msg.Headers))
	ctx, span := otel.Tracer("storefront-service").Start(ctx, "ProcessNotification")
	defer span.End()

	var event models.OrderEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		span.RecordError(err)
		return permanentError{fmt.Errorf("failed to unmarshal event: %w", err)}
	}
	span.SetAttributes(
		attribute.String("event.type", event.EventType),
		attribute.String("order.id", event.OrderID),
	)

	text, ok := notificationText(event)
	if !ok {
		n.logger.Debug("Unknown event type", zap.String("event_type", event.EventType))
		return nil
	}
	if event.CustomerContact == "" {
		return permanentError{errors.New("event has no customer contact")}
	}
	if err := n.sender.Send(ctx, event.CustomerContact, text); err != nil {
		span.RecordError(err)
		return err
	}

	middleware.RecordNotificationSent(event.EventType)
	n.logger.Info("Order notification sent",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("event_type", event.EventType),
		zap.String("order_id", event.OrderID),
	)
	return nil
}

func notificationText(event models.OrderEvent) (string, bool) {
	switch event.EventType {
	case models.EventOrderCreated:
		return fmt.Sprintf("Hi %s! Your order %s has been placed. Total: PHP %s, payable on delivery. Use this code to track your order.",
			event.CustomerName, event.OrderID, event.TotalAmount.StringFixed(2)), true
	case models.EventOrderStatusChanged:
		return fmt.Sprintf("Your order %s is now %s.", event.OrderID, event.Status), true
	}
	return "", false
}

// kafkagoHeaderCarrier implements the TextMapCarrier interface for kafka-go headers
type kafkagoHeaderCarrier []kafkago.Header

func (c kafkagoHeaderCarrier) Get(key string) string {
	for _, h := range c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c kafkagoHeaderCarrier) Set(key, value string) {
	// Not needed for extraction
}

func (c kafkagoHeaderCarrier) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = h.Key
	}
	return keys
}
