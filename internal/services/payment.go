package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"notary-payments/internal/logger"
	"notary-payments/internal/metrics"
	"notary-payments/internal/models"
	"notary-payments/internal/signature"
	"notary-payments/internal/storage"
	"notary-payments/internal/telemetry"
	"notary-payments/internal/utils"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrInvalidAmount                 = errors.New("invalid amount")
	ErrMissingPaymentDetails         = errors.New("missing payment details")
	ErrOrderCreationFailed           = errors.New("failed to create order")
	ErrGatewayTimeout                = fmt.Errorf("%w: gateway timed out", ErrOrderCreationFailed)
	ErrVerificationComputationFailed = errors.New("verification computation failed")
	ErrDuplicateReceipt              = errors.New("order with this receipt is already being created")
	ErrReceiptConflict               = errors.New("receipt already used for a different amount or currency")
	ErrOrderNotFound                 = errors.New("order not found")
	ErrOrderAlreadyPaid              = errors.New("order already paid with a different payment")
	ErrInvalidWebhookSignature       = errors.New("invalid webhook signature")
	ErrInvalidWebhookPayload         = errors.New("invalid webhook payload")
	ErrWebhookNotConfigured          = errors.New("webhook secret not configured")
)

const (
	SourceVerify  = "verify"
	SourceWebhook = "webhook"
	SourceKafka   = "kafka"

	DefaultListLimit = 20
	MaxListLimit     = 100
)

type OrderGateway interface {
	CreateOrder(ctx context.Context, data map[string]interface{}) (models.OrderDescriptor, error)
	VerifyWebhookSignature(body []byte, signature string) bool
	WebhookConfigured() bool
}

// ReceiptCache is the optional receipt dedup cache. A nil cache disables it.
type ReceiptCache interface {
	Claim(ctx context.Context, receipt string) (bool, error)
	Lookup(ctx context.Context, receipt string) (*models.ReceiptEntry, error)
	Complete(ctx context.Context, receipt string, entry *models.ReceiptEntry) error
	Release(ctx context.Context, receipt string) error
}

type EventPublisher interface {
	PublishPaymentEvent(event *models.PaymentEvent) error
}

type PaymentService struct {
	gateway   OrderGateway
	store     storage.Store
	producer  EventPublisher
	receipts  ReceiptCache
	keySecret string
	log       *logger.Logger
	tracer    trace.Tracer
}

func NewPaymentService(gateway OrderGateway, store storage.Store, producer EventPublisher, receipts ReceiptCache, keySecret string, log *logger.Logger) *PaymentService {
	return &PaymentService{
		gateway:   gateway,
		store:     store,
		producer:  producer,
		receipts:  receipts,
		keySecret: keySecret,
		log:       log,
		tracer:    telemetry.Tracer("payment-service"),
	}
}

// CreateOrder creates one gateway order and returns the gateway's descriptor
// untouched. Recording and publishing afterwards are best-effort.
func (s *PaymentService) CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (models.OrderDescriptor, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.CreateOrder")
	defer span.End()

	if req.Amount <= 0 {
		s.log.LogPayment("REJECTED", "new", fmt.Sprintf("Invalid amount: %d", req.Amount))
		metrics.OrdersFailed.WithLabelValues("invalid_amount").Inc()
		span.SetStatus(otelcodes.Error, ErrInvalidAmount.Error())
		return nil, ErrInvalidAmount
	}

	currency := req.Currency
	if currency == "" {
		currency = models.DefaultCurrency
	}
	receipt := req.Receipt
	if receipt == "" {
		receipt = utils.GenerateReceipt()
	}
	notes := req.Notes
	if notes == nil {
		notes = map[string]string{}
	}

	span.SetAttributes(
		attribute.Int64("order.amount", req.Amount),
		attribute.String("order.currency", currency),
		attribute.String("order.receipt", receipt),
	)

	if s.receipts != nil {
		existing, err := s.claimReceipt(ctx, receipt, req.Amount, currency)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	s.log.LogPayment("INIT", receipt, fmt.Sprintf("Creating gateway order for %d %s", req.Amount, currency))

	start := time.Now()
	order, err := s.gateway.CreateOrder(ctx, map[string]interface{}{
		"amount":   req.Amount,
		"currency": currency,
		"receipt":  receipt,
		"notes":    notes,
	})
	metrics.GatewayLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		s.releaseReceipt(ctx, receipt)
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "gateway order creation failed")

		if isTimeout(err) {
			s.log.Error("PAYMENT", fmt.Sprintf("Gateway timed out creating order for receipt %s: %v", receipt, err))
			metrics.OrdersFailed.WithLabelValues("timeout").Inc()
			return nil, fmt.Errorf("%w: %w", ErrGatewayTimeout, err)
		}
		s.log.Error("PAYMENT", fmt.Sprintf("Gateway rejected order for receipt %s: %v", receipt, err))
		metrics.OrdersFailed.WithLabelValues("gateway").Inc()
		return nil, fmt.Errorf("%w: %w", ErrOrderCreationFailed, err)
	}

	metrics.OrdersCreated.Inc()
	span.SetAttributes(attribute.String("order.id", order.ID()))
	s.log.LogPayment("CREATED", order.ID(), fmt.Sprintf("Gateway order created for receipt %s", receipt))

	if s.receipts != nil {
		entry := &models.ReceiptEntry{Amount: req.Amount, Currency: currency, Order: order}
		if err := s.receipts.Complete(ctx, receipt, entry); err != nil {
			s.log.Warn("REDIS", fmt.Sprintf("Failed to cache order for receipt %s: %v", receipt, err))
			s.releaseReceipt(ctx, receipt)
		}
	}

	s.recordOrder(ctx, order, req.Amount, currency, receipt, notes)
	s.publish(&models.PaymentEvent{
		Type:     models.EventOrderCreated,
		OrderID:  order.ID(),
		Receipt:  receipt,
		Amount:   req.Amount,
		Currency: currency,
	})

	return order, nil
}

// claimReceipt returns a previously created order for the receipt, or nil
// when the caller now owns the claim. A remembered order is only returned for
// the same amount and currency. A cache outage disables dedup for the
// request rather than failing it.
func (s *PaymentService) claimReceipt(ctx context.Context, receipt string, amount int64, currency string) (models.OrderDescriptor, error) {
	claimed, err := s.receipts.Claim(ctx, receipt)
	if err != nil {
		s.log.Warn("REDIS", fmt.Sprintf("Receipt claim failed for %s, continuing without dedup: %v", receipt, err))
		return nil, nil
	}
	if claimed {
		return nil, nil
	}

	existing, err := s.receipts.Lookup(ctx, receipt)
	if err != nil {
		s.log.Warn("REDIS", fmt.Sprintf("Receipt lookup failed for %s: %v", receipt, err))
	}
	if existing != nil && existing.Order != nil {
		if !existing.Matches(amount, currency) {
			s.log.LogPayment("RECEIPT_CONFLICT", existing.Order.ID(),
				fmt.Sprintf("Receipt %s was used for %d %s, refusing %d %s", receipt, existing.Amount, existing.Currency, amount, currency))
			metrics.OrdersFailed.WithLabelValues("receipt_conflict").Inc()
			return nil, ErrReceiptConflict
		}
		s.log.LogPayment("DUPLICATE", existing.Order.ID(), fmt.Sprintf("Returning existing order for receipt %s", receipt))
		return existing.Order, nil
	}

	s.log.LogPayment("IN_FLIGHT", receipt, "Order creation already in progress for receipt")
	metrics.OrdersFailed.WithLabelValues("duplicate_receipt").Inc()
	return nil, ErrDuplicateReceipt
}

func (s *PaymentService) releaseReceipt(ctx context.Context, receipt string) {
	if s.receipts == nil {
		return
	}
	// The request context may already be done; the release must still go out.
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.receipts.Release(releaseCtx, receipt); err != nil {
		s.log.Warn("REDIS", fmt.Sprintf("Failed to release receipt %s: %v", receipt, err))
	}
}

func (s *PaymentService) recordOrder(ctx context.Context, order models.OrderDescriptor, amount int64, currency, receipt string, notes map[string]string) {
	if order.ID() == "" {
		s.log.Warn("PAYMENT", fmt.Sprintf("Gateway order for receipt %s has no id, not recording", receipt))
		return
	}

	now := time.Now().UTC()
	record := &models.PaymentOrder{
		OrderID:   order.ID(),
		Receipt:   receipt,
		Amount:    amount,
		Currency:  currency,
		Status:    models.OrderStatusCreated,
		Notes:     notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SaveOrder(ctx, record); err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Order %s created at gateway but not recorded: %v", record.OrderID, err))
	}
}

// VerifyPayment recomputes the checkout signature. A mismatch is a normal
// result, not an error. Nothing is persisted here.
func (s *PaymentService) VerifyPayment(ctx context.Context, req *models.VerifyPaymentRequest) (*models.VerifyPaymentResult, error) {
	_, span := s.tracer.Start(ctx, "PaymentService.VerifyPayment")
	defer span.End()

	if req.RazorpayPaymentID == "" || req.RazorpayOrderID == "" || req.RazorpaySignature == "" {
		s.log.LogSecurity("VERIFY_REJECTED", "Verification request with missing fields")
		span.SetStatus(otelcodes.Error, ErrMissingPaymentDetails.Error())
		return nil, ErrMissingPaymentDetails
	}

	span.SetAttributes(
		attribute.String("payment.id", req.RazorpayPaymentID),
		attribute.String("order.id", req.RazorpayOrderID),
	)

	ok, err := signature.Verify(s.keySecret, req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature)
	if err != nil {
		s.log.Error("PAYMENT", fmt.Sprintf("Cannot verify payment %s: %v", req.RazorpayPaymentID, err))
		metrics.Verifications.WithLabelValues(metrics.OutcomeError).Inc()
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "signature computation failed")
		return nil, fmt.Errorf("%w: %w", ErrVerificationComputationFailed, err)
	}

	result := &models.VerifyPaymentResult{
		Verified:  ok,
		PaymentID: req.RazorpayPaymentID,
		OrderID:   req.RazorpayOrderID,
	}
	span.SetAttributes(attribute.Bool("payment.verified", ok))

	event := &models.PaymentEvent{OrderID: req.RazorpayOrderID, PaymentID: req.RazorpayPaymentID}
	if ok {
		s.log.LogPayment("VERIFIED", req.RazorpayPaymentID, "Signature valid for order "+req.RazorpayOrderID)
		metrics.Verifications.WithLabelValues(metrics.OutcomeVerified).Inc()
		event.Type = models.EventPaymentVerified
	} else {
		s.log.LogSecurity("SIGNATURE_MISMATCH", fmt.Sprintf("Signature mismatch for payment %s on order %s", req.RazorpayPaymentID, req.RazorpayOrderID))
		metrics.Verifications.WithLabelValues(metrics.OutcomeMismatch).Inc()
		event.Type = models.EventVerificationFailed
	}
	s.publish(event)

	return result, nil
}

// SettlePayment marks a recorded order paid by paymentID. Settling twice with
// the same payment is a no-op.
func (s *PaymentService) SettlePayment(ctx context.Context, orderID, paymentID, source string) (*models.PaymentOrder, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.SettlePayment")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.String("payment.id", paymentID),
		attribute.String("settlement.source", source),
	)

	if orderID == "" || paymentID == "" {
		metrics.Settlements.WithLabelValues(source, "invalid").Inc()
		return nil, ErrMissingPaymentDetails
	}

	order, err := s.lookupOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			metrics.Settlements.WithLabelValues(source, "not_found").Inc()
		} else {
			metrics.Settlements.WithLabelValues(source, "error").Inc()
			span.RecordError(err)
		}
		return nil, err
	}

	if order.Status == models.OrderStatusPaid {
		if order.PaymentID == paymentID {
			s.log.LogPayment("SETTLE_NOOP", paymentID, fmt.Sprintf("Order %s already settled (%s)", orderID, source))
			metrics.Settlements.WithLabelValues(source, "duplicate").Inc()
			return order, nil
		}
		s.log.LogSecurity("SETTLE_CONFLICT", fmt.Sprintf("Order %s already paid by %s, refusing %s", orderID, order.PaymentID, paymentID))
		metrics.Settlements.WithLabelValues(source, "conflict").Inc()
		return nil, ErrOrderAlreadyPaid
	}

	order.Status = models.OrderStatusPaid
	order.PaymentID = paymentID
	order.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateOrder(ctx, order); err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to settle order %s: %v", orderID, err))
		metrics.Settlements.WithLabelValues(source, "error").Inc()
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "settlement update failed")
		return nil, fmt.Errorf("failed to settle order: %w", err)
	}

	s.log.LogPayment("SETTLED", paymentID, fmt.Sprintf("Order %s marked paid via %s", orderID, source))
	metrics.Settlements.WithLabelValues(source, "settled").Inc()
	s.publish(&models.PaymentEvent{
		Type:      models.EventPaymentSettled,
		OrderID:   order.OrderID,
		PaymentID: paymentID,
		Receipt:   order.Receipt,
		Amount:    order.Amount,
		Currency:  order.Currency,
	})

	return order, nil
}

func (s *PaymentService) markFailed(ctx context.Context, orderID, paymentID string) error {
	order, err := s.lookupOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != models.OrderStatusCreated {
		return nil
	}

	order.Status = models.OrderStatusFailed
	order.PaymentID = paymentID
	order.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateOrder(ctx, order); err != nil {
		return fmt.Errorf("failed to mark order failed: %w", err)
	}

	s.log.LogPayment("FAILED", paymentID, fmt.Sprintf("Order %s marked failed", orderID))
	s.publish(&models.PaymentEvent{Type: models.EventPaymentFailed, OrderID: orderID, PaymentID: paymentID})
	return nil
}

func (s *PaymentService) lookupOrder(ctx context.Context, orderID string) (*models.PaymentOrder, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, storage.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

func (s *PaymentService) GetOrder(ctx context.Context, orderID string) (*models.PaymentOrder, error) {
	s.log.LogPayment("LOOKUP", orderID, "Retrieving order record")
	return s.lookupOrder(ctx, orderID)
}

// ListOrders pages through recorded orders, newest first. limit is clamped
// to [1, MaxListLimit] and defaults to DefaultListLimit.
func (s *PaymentService) ListOrders(ctx context.Context, receipt string, limit, offset int) ([]*models.PaymentOrder, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListOrders(ctx, receipt, limit, offset)
}

// HandleWebhook authenticates a gateway webhook delivery and applies it.
// Events that cannot be applied to a known order are acknowledged.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, sig string) error {
	if !s.gateway.WebhookConfigured() {
		s.log.Error("WEBHOOK", "Webhook received but RAZORPAY_WEBHOOK_SECRET is not set")
		return ErrWebhookNotConfigured
	}
	if !s.gateway.VerifyWebhookSignature(body, sig) {
		s.log.LogSecurity("WEBHOOK_SIGNATURE", "Rejected webhook with invalid signature")
		return ErrInvalidWebhookSignature
	}

	var event models.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWebhookPayload, err)
	}

	orderID, paymentID := event.OrderAndPaymentIDs()
	s.log.LogProcess("WEBHOOK", fmt.Sprintf("Received %s for order %s", event.Event, orderID))

	var err error
	switch event.Event {
	case models.EventPaymentCaptured, models.EventOrderPaid:
		_, err = s.SettlePayment(ctx, orderID, paymentID, SourceWebhook)
	case models.EventPaymentFailed:
		err = s.markFailed(ctx, orderID, paymentID)
	default:
		s.log.Debug("WEBHOOK", "Ignoring webhook event "+event.Event)
		return nil
	}

	return s.acknowledgeable(err, "WEBHOOK", orderID)
}

// ProcessCapturedEvent settles orders from payment-captured messages relayed
// by other services. ctx is the consumer session's context.
func (s *PaymentService) ProcessCapturedEvent(ctx context.Context, event *models.PaymentEvent) error {
	s.log.LogKafka("EVENT_RECEIVED", "payment-captured", fmt.Sprintf("Processing %s for order %s", event.Type, event.OrderID))

	switch event.Type {
	case models.EventPaymentCaptured, models.EventOrderPaid:
	default:
		s.log.Warn("KAFKA", "Skipping unexpected event type "+event.Type)
		return nil
	}

	_, err := s.SettlePayment(ctx, event.OrderID, event.PaymentID, SourceKafka)
	return s.acknowledgeable(err, "KAFKA", event.OrderID)
}

// acknowledgeable drops errors that redelivery can never fix so the sender
// stops retrying; everything else is returned for a retry.
func (s *PaymentService) acknowledgeable(err error, category, orderID string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrMissingPaymentDetails):
		s.log.Warn(category, fmt.Sprintf("Cannot apply event to order %q: %v", orderID, err))
		return nil
	case errors.Is(err, ErrOrderAlreadyPaid):
		return nil
	default:
		return err
	}
}

func (s *PaymentService) publish(event *models.PaymentEvent) {
	event.ID = utils.GenerateEventID()
	event.Timestamp = time.Now().UTC()

	if err := s.producer.PublishPaymentEvent(event); err != nil {
		s.log.Error("KAFKA", fmt.Sprintf("Failed to publish %s for order %s: %v", event.Type, event.OrderID, err))
		s.log.LogProcess("FALLBACK", fmt.Sprintf("Order %s processed despite Kafka publish failure", event.OrderID))
	}
}
