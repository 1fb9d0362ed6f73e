package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"notary-payments/internal/logger"
	"notary-payments/internal/models"
)

type MockConsumerGroupSession struct {
	mock.Mock
}

func (m *MockConsumerGroupSession) Claims() map[string][]int32 {
	args := m.Called()
	return args.Get(0).(map[string][]int32)
}

func (m *MockConsumerGroupSession) MemberID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConsumerGroupSession) GenerationID() int32 {
	args := m.Called()
	return int32(args.Int(0))
}

func (m *MockConsumerGroupSession) MarkOffset(topic string, partition int32, offset int64, metadata string) {
	m.Called(topic, partition, offset, metadata)
}

func (m *MockConsumerGroupSession) Commit() {
	m.Called()
}

func (m *MockConsumerGroupSession) ResetOffset(topic string, partition int32, offset int64, metadata string) {
	m.Called(topic, partition, offset, metadata)
}

func (m *MockConsumerGroupSession) MarkMessage(msg *sarama.ConsumerMessage, metadata string) {
	m.Called(msg, metadata)
}

func (m *MockConsumerGroupSession) Context() context.Context {
	args := m.Called()
	return args.Get(0).(context.Context)
}

type MockConsumerGroupClaim struct {
	mock.Mock
}

func (m *MockConsumerGroupClaim) Topic() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConsumerGroupClaim) Partition() int32 {
	args := m.Called()
	return int32(args.Int(0))
}

func (m *MockConsumerGroupClaim) InitialOffset() int64 {
	args := m.Called()
	return int64(args.Int(0))
}

func (m *MockConsumerGroupClaim) HighWaterMarkOffset() int64 {
	args := m.Called()
	return int64(args.Int(0))
}

func (m *MockConsumerGroupClaim) Messages() <-chan *sarama.ConsumerMessage {
	args := m.Called()
	return args.Get(0).(chan *sarama.ConsumerMessage)
}

func capturedMessage(t *testing.T, offset int64, event *models.PaymentEvent) *sarama.ConsumerMessage {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Topic: TopicPaymentCaptured, Offset: offset, Value: data}
}

func newClaim(messages ...*sarama.ConsumerMessage) *MockConsumerGroupClaim {
	msgChan := make(chan *sarama.ConsumerMessage, len(messages))
	for _, m := range messages {
		msgChan <- m
	}
	close(msgChan)

	claim := &MockConsumerGroupClaim{}
	claim.On("Messages").Return(msgChan)
	return claim
}

func newSession() *MockConsumerGroupSession {
	session := &MockConsumerGroupSession{}
	session.On("Context").Return(context.Background())
	return session
}

func TestPaymentEventHandlerConsumeClaim(t *testing.T) {
	good := capturedMessage(t, 0, &models.PaymentEvent{Type: models.EventPaymentCaptured, OrderID: "order_ok", PaymentID: "pay_ok"})
	malformed := &sarama.ConsumerMessage{Topic: TopicPaymentCaptured, Offset: 1, Value: []byte("{not json")}
	other := capturedMessage(t, 2, &models.PaymentEvent{Type: models.EventOrderPaid, OrderID: "order_two", PaymentID: "pay_two"})

	claim := newClaim(good, malformed, other)
	session := newSession()
	session.On("MarkMessage", good, "").Return().Once()
	session.On("MarkMessage", malformed, "").Return().Once()
	session.On("MarkMessage", other, "").Return().Once()

	var handled []string
	handler := &PaymentEventHandler{
		Handler: func(ctx context.Context, event *models.PaymentEvent) error {
			handled = append(handled, event.OrderID)
			return nil
		},
		Log: logger.New(io.Discard, logger.DebugLevel),
	}

	require.NoError(t, handler.ConsumeClaim(session, claim))

	assert.Equal(t, []string{"order_ok", "order_two"}, handled)
	session.AssertExpectations(t)
	claim.AssertExpectations(t)
}

func TestPaymentEventHandlerStopsAtFailingMessage(t *testing.T) {
	failing := capturedMessage(t, 10, &models.PaymentEvent{Type: models.EventPaymentCaptured, OrderID: "order_fail", PaymentID: "pay_fail"})
	next := capturedMessage(t, 11, &models.PaymentEvent{Type: models.EventPaymentCaptured, OrderID: "order_next", PaymentID: "pay_next"})

	claim := newClaim(failing, next)
	session := newSession()

	var handled []string
	handler := &PaymentEventHandler{
		Handler: func(ctx context.Context, event *models.PaymentEvent) error {
			handled = append(handled, event.OrderID)
			return errors.New("store unavailable")
		},
		Log:          logger.New(io.Discard, logger.DebugLevel),
		Attempts:     3,
		RetryBackoff: time.Millisecond,
	}

	err := handler.ConsumeClaim(session, claim)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "offset 10")
	assert.Equal(t, []string{"order_fail", "order_fail", "order_fail"}, handled)
	session.AssertNotCalled(t, "MarkMessage", mock.Anything, mock.Anything)
}

func TestPaymentEventHandlerRetriesTransientFailure(t *testing.T) {
	flaky := capturedMessage(t, 10, &models.PaymentEvent{Type: models.EventPaymentCaptured, OrderID: "order_flaky", PaymentID: "pay_1"})
	next := capturedMessage(t, 11, &models.PaymentEvent{Type: models.EventPaymentCaptured, OrderID: "order_next", PaymentID: "pay_2"})

	claim := newClaim(flaky, next)
	session := newSession()
	session.On("MarkMessage", flaky, "").Return().Once()
	session.On("MarkMessage", next, "").Return().Once()

	failures := 1
	var handled []string
	handler := &PaymentEventHandler{
		Handler: func(ctx context.Context, event *models.PaymentEvent) error {
			handled = append(handled, event.OrderID)
			if event.OrderID == "order_flaky" && failures > 0 {
				failures--
				return errors.New("deadlock found when trying to get lock")
			}
			return nil
		},
		Log:          logger.New(io.Discard, logger.DebugLevel),
		RetryBackoff: time.Millisecond,
	}

	require.NoError(t, handler.ConsumeClaim(session, claim))

	assert.Equal(t, []string{"order_flaky", "order_flaky", "order_next"}, handled)
	session.AssertExpectations(t)
}

func TestPaymentEventHandlerPassesSessionContext(t *testing.T) {
	type ctxKey struct{}
	sessionCtx := context.WithValue(context.Background(), ctxKey{}, "session")

	msg := capturedMessage(t, 0, &models.PaymentEvent{Type: models.EventPaymentCaptured, OrderID: "order_ok", PaymentID: "pay_ok"})
	claim := newClaim(msg)
	session := &MockConsumerGroupSession{}
	session.On("Context").Return(sessionCtx)
	session.On("MarkMessage", msg, "").Return().Once()

	var got context.Context
	handler := &PaymentEventHandler{
		Handler: func(ctx context.Context, event *models.PaymentEvent) error {
			got = ctx
			return nil
		},
		Log: logger.New(io.Discard, logger.DebugLevel),
	}

	require.NoError(t, handler.ConsumeClaim(session, claim))
	require.NotNil(t, got)
	assert.Equal(t, "session", got.Value(ctxKey{}))
}

// TestCapturedPaymentConsumerIntegration needs a running broker.
func TestCapturedPaymentConsumerIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		brokers = "localhost:29092"
	}
	brokerList := strings.Split(brokers, ",")

	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Net.DialTimeout = 5 * time.Second

	producer, err := sarama.NewSyncProducer(brokerList, config)
	if err != nil {
		t.Skip("Skipping test because Kafka is not available:", err)
		return
	}
	defer producer.Close()

	log := logger.New(io.Discard, logger.DebugLevel)
	consumer, err := NewCapturedPaymentConsumer(brokerList, "test-consumer-group-"+time.Now().Format("20060102150405"), log)
	require.NoError(t, err)
	defer consumer.Close()

	orderID := "order_it_" + time.Now().Format("20060102150405.000")
	received := make(chan *models.PaymentEvent, 1)
	var once sync.Once

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		err := consumer.Consume(ctx, func(ctx context.Context, event *models.PaymentEvent) error {
			if event.OrderID == orderID {
				once.Do(func() { received <- event })
			}
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Consumer error: %v", err)
		}
	}()

	payload, err := json.Marshal(&models.PaymentEvent{
		Type:      models.EventPaymentCaptured,
		OrderID:   orderID,
		PaymentID: "pay_it",
		Timestamp: time.Now(),
	})
	require.NoError(t, err)

	// The group starts at the newest offset, so keep sending until it has joined.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	deadline := time.After(20 * time.Second)

	for {
		_, _, err := producer.SendMessage(&sarama.ProducerMessage{
			Topic: TopicPaymentCaptured,
			Key:   sarama.StringEncoder(orderID),
			Value: sarama.ByteEncoder(payload),
		})
		require.NoError(t, err)

		select {
		case event := <-received:
			assert.Equal(t, "pay_it", event.PaymentID)
			return
		case <-deadline:
			t.Fatalf("Timeout waiting for message to be consumed: %s", orderID)
		case <-ticker.C:
		}
	}
}
