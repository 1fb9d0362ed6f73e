package models

import (
	"time"
)

// VerifyPaymentRequest carries the fields the checkout widget hands back.
type VerifyPaymentRequest struct {
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}

type VerifyPaymentResult struct {
	Verified  bool   `json:"verified"`
	PaymentID string `json:"payment_id"`
	OrderID   string `json:"order_id"`
}

const (
	EventOrderCreated       = "order.created"
	EventPaymentVerified    = "payment.verified"
	EventVerificationFailed = "payment.verification_failed"
	EventPaymentSettled     = "payment.settled"
	EventPaymentCaptured    = "payment.captured"
	EventPaymentFailed      = "payment.failed"
	EventOrderPaid          = "order.paid"
)

type PaymentEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	OrderID   string    `json:"order_id"`
	PaymentID string    `json:"payment_id,omitempty"`
	Receipt   string    `json:"receipt,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	Currency  string    `json:"currency,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// WebhookEvent is the subset of the gateway webhook envelope we act on.
type WebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity WebhookPayment `json:"entity"`
		} `json:"payment,omitempty"`
		Order *struct {
			Entity WebhookOrder `json:"entity"`
		} `json:"order,omitempty"`
	} `json:"payload"`
}

type WebhookPayment struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type WebhookOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// OrderAndPaymentIDs pulls the identifiers out of whichever entity carries them.
func (e *WebhookEvent) OrderAndPaymentIDs() (orderID, paymentID string) {
	if e.Payload.Payment != nil {
		orderID = e.Payload.Payment.Entity.OrderID
		paymentID = e.Payload.Payment.Entity.ID
	}
	if orderID == "" && e.Payload.Order != nil {
		orderID = e.Payload.Order.Entity.ID
	}
	return orderID, paymentID
}
