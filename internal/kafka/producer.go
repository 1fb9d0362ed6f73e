package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"notary-payments/internal/logger"
	"notary-payments/internal/models"
)

const (
	TopicPaymentOrders             = "payment-orders"
	TopicPaymentVerified           = "payment-verified"
	TopicPaymentVerificationFailed = "payment-verification-failed"
	TopicPaymentSettled            = "payment-settled"
	TopicPaymentCaptured           = "payment-captured"
	TopicPaymentEvents             = "payment-events"
)

type Producer struct {
	producer sarama.SyncProducer
	mockMode bool
	log      *logger.Logger
}

func NewProducer(brokers []string, mockMode bool, log *logger.Logger) (*Producer, error) {
	if mockMode {
		log.LogKafka("MOCK_MODE", "producer", "Running in mock mode - no actual Kafka connection")
		return &Producer{
			producer: nil,
			mockMode: true,
			log:      log,
		}, nil
	}

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	log.LogKafka("CONNECTED", "producer", fmt.Sprintf("Connected to Kafka brokers: %v", brokers))
	return newProducer(producer, log), nil
}

func newProducer(producer sarama.SyncProducer, log *logger.Logger) *Producer {
	return &Producer{producer: producer, log: log}
}

// PublishPaymentEvent keys messages by order id so every event of one order
// lands on the same partition.
func (p *Producer) PublishPaymentEvent(event *models.PaymentEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := TopicForEvent(event.Type)

	if p.mockMode {
		p.log.LogKafka("MOCK_PUBLISH", topic, fmt.Sprintf("Mock publishing event: %s for order: %s", event.Type, event.OrderID))
		p.log.Debug("KAFKA", string(data))
		return nil
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.OrderID),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.log.Error("KAFKA", fmt.Sprintf("Failed to send message to topic %s: %v", topic, err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.log.LogKafka("PUBLISHED", topic, fmt.Sprintf("Message sent to partition %d at offset %d for order %s", partition, offset, event.OrderID))
	return nil
}

func TopicForEvent(eventType string) string {
	switch eventType {
	case models.EventOrderCreated:
		return TopicPaymentOrders
	case models.EventPaymentVerified:
		return TopicPaymentVerified
	case models.EventVerificationFailed:
		return TopicPaymentVerificationFailed
	case models.EventPaymentSettled:
		return TopicPaymentSettled
	case models.EventPaymentCaptured:
		return TopicPaymentCaptured
	default:
		return TopicPaymentEvents
	}
}

func (p *Producer) Close() error {
	if p.mockMode {
		p.log.LogKafka("MOCK_CLOSE", "producer", "Mock producer closed")
		return nil
	}

	if p.producer != nil {
		p.log.LogKafka("CLOSING", "producer", "Closing Kafka producer connection")
		return p.producer.Close()
	}
	return nil
}
