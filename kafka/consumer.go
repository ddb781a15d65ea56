package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"storefront-svc/config"
	"storefront-svc/models"
)

func InitConsumer(cfg config.KafkaConfig, logger *zap.Logger) (sarama.Consumer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Consumer.Retry.Backoff = 1 * time.Second

	consumer, err := sarama.NewConsumer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	logger.Info("Kafka consumer initialized")
	return consumer, nil
}

// EventApplier receives decoded order events.
type EventApplier interface {
	Apply(event models.OrderEvent)
}

// StartDashboardConsumer feeds every partition of topic into applier until
// ctx is cancelled.
func StartDashboardConsumer(ctx context.Context, consumer sarama.Consumer, topic string, applier EventApplier, logger *zap.Logger) error {
	partitions, err := consumer.Partitions(topic)
	if err != nil {
		return fmt.Errorf("failed to list partitions: %w", err)
	}

	var wg sync.WaitGroup
	for _, partition := range partitions {
		pc, err := consumer.ConsumePartition(topic, partition, sarama.OffsetNewest)
		if err != nil {
			return fmt.Errorf("failed to consume partition %d: %w", partition, err)
		}

		wg.Add(1)
		go func(pc sarama.PartitionConsumer) {
			defer wg.Done()
			defer pc.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case message, ok := <-pc.Messages():
					if !ok {
						return
					}
					if err := handleDashboardMessage(message, applier, logger); err != nil {
						logger.Error("Failed to handle message", zap.Error(err))
					}
				case err, ok := <-pc.Errors():
					if !ok {
						return
					}
					logger.Error("Kafka consumer error", zap.Error(err))
				}
			}
		}(pc)
	}

	logger.Info("Kafka consumer started", zap.String("topic", topic), zap.Int("partitions", len(partitions)))
	wg.Wait()
	return ctx.Err()
}

func handleDashboardMessage(message *sarama.ConsumerMessage, applier EventApplier, logger *zap.Logger) error {
	// Extract trace context from Kafka message headers
	carrier := saramaHeaderCarrierConsumer(message.Headers)
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), carrier)

	_, span := otel.Tracer("storefront-service").Start(ctx, "ApplyDashboardEvent")
	defer span.End()

	var event models.OrderEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	span.SetAttributes(
		attribute.String("event.type", event.EventType),
		attribute.String("order.id", event.OrderID),
	)
	applier.Apply(event)

	logger.Debug("Dashboard event applied",
		zap.String("event_type", event.EventType),
		zap.String("order_id", event.OrderID))
	return nil
}

// saramaHeaderCarrierConsumer implements the TextMapCarrier interface for Kafka headers (for consumer)
type saramaHeaderCarrierConsumer []*sarama.RecordHeader

func (c saramaHeaderCarrierConsumer) Get(key string) string {
	for _, h := range c {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c saramaHeaderCarrierConsumer) Set(key, value string) {
	// Not needed for extraction
}

func (c saramaHeaderCarrierConsumer) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = string(h.Key)
	}
	return keys
}
