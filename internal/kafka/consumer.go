package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"notary-payments/internal/logger"
	"notary-payments/internal/models"
)

// Consumer reads payment-captured events relayed by other services.
type Consumer struct {
	consumer sarama.ConsumerGroup
	topics   []string
	log      *logger.Logger
}

func NewCapturedPaymentConsumer(brokers []string, groupID string, log *logger.Logger) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	consumer, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &Consumer{
		consumer: consumer,
		topics:   []string{TopicPaymentCaptured},
		log:      log,
	}, nil
}

// Consume blocks until ctx is cancelled or the group fails. A session that
// ends because a message could not be handled is rejoined, and consumption
// resumes from that message.
func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, *models.PaymentEvent) error) error {
	groupHandler := &PaymentEventHandler{Handler: handler, Log: c.log}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := c.consumer.Consume(ctx, c.topics, groupHandler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return nil
				}
				c.log.Error("KAFKA", fmt.Sprintf("Error consuming messages: %v", err))
				return err
			}
		}
	}
}

func (c *Consumer) Close() error {
	return c.consumer.Close()
}

const (
	defaultHandlerAttempts = 3
	defaultRetryBackoff    = 500 * time.Millisecond
)

// PaymentEventHandler implements sarama.ConsumerGroupHandler.
type PaymentEventHandler struct {
	Handler func(context.Context, *models.PaymentEvent) error
	Log     *logger.Logger
	// Attempts and RetryBackoff bound in-place retries of a failing message.
	Attempts     int
	RetryBackoff time.Duration
}

func (h *PaymentEventHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *PaymentEventHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim marks malformed messages so they are not redelivered forever.
// A message whose handler keeps failing is left unmarked and ends the claim,
// so no later offset is committed past it.
func (h *PaymentEventHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()

	for message := range claim.Messages() {
		var event models.PaymentEvent
		if err := json.Unmarshal(message.Value, &event); err != nil {
			h.Log.Error("KAFKA", fmt.Sprintf("Dropping malformed message at %s/%d/%d: %v", message.Topic, message.Partition, message.Offset, err))
			session.MarkMessage(message, "")
			continue
		}

		if err := h.handle(ctx, &event); err != nil {
			h.Log.Error("KAFKA", fmt.Sprintf("Failed to handle %s for order %s at %s/%d/%d, stopping claim: %v",
				event.Type, event.OrderID, message.Topic, message.Partition, message.Offset, err))
			return fmt.Errorf("handle message at offset %d: %w", message.Offset, err)
		}

		session.MarkMessage(message, "")
	}

	return nil
}

func (h *PaymentEventHandler) handle(ctx context.Context, event *models.PaymentEvent) error {
	attempts := h.Attempts
	if attempts <= 0 {
		attempts = defaultHandlerAttempts
	}
	backoff := h.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}

	for attempt := 1; ; attempt++ {
		err := h.Handler(ctx, event)
		if err == nil {
			return nil
		}
		if attempt >= attempts {
			return err
		}

		h.Log.Warn("KAFKA", fmt.Sprintf("Attempt %d/%d for order %s failed, retrying in %s: %v", attempt, attempts, event.OrderID, backoff, err))
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
