package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderStatusCreated OrderStatus = "created"
	OrderStatusPaid    OrderStatus = "paid"
	OrderStatusFailed  OrderStatus = "failed"
)

const DefaultCurrency = "INR"

// CreateOrderRequest is the checkout request. Amount is in the smallest
// currency unit (paise for INR).
type CreateOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency,omitempty"`
	Receipt  string            `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// OrderDescriptor is the gateway's order object, passed through untouched.
type OrderDescriptor map[string]interface{}

// ID returns the gateway order id, or "" when the descriptor has none.
func (d OrderDescriptor) ID() string {
	id, _ := d["id"].(string)
	return id
}

// ReceiptEntry is what the receipt cache remembers about a created order.
// Amount and currency pin the receipt to the request that first used it.
type ReceiptEntry struct {
	Amount   int64           `json:"amount"`
	Currency string          `json:"currency"`
	Order    OrderDescriptor `json:"order"`
}

func (e *ReceiptEntry) Matches(amount int64, currency string) bool {
	return e.Amount == amount && e.Currency == currency
}

// PaymentOrder is the local record of a gateway order.
type PaymentOrder struct {
	bun.BaseModel `bun:"table:payment_orders"`

	OrderID   string            `json:"order_id" bun:"order_id,pk"`
	Receipt   string            `json:"receipt" bun:"receipt,notnull"`
	Amount    int64             `json:"amount" bun:"amount,notnull"`
	Currency  string            `json:"currency" bun:"currency,notnull"`
	Status    OrderStatus       `json:"status" bun:"status,notnull"`
	PaymentID string            `json:"payment_id,omitempty" bun:"payment_id,nullzero"`
	Notes     map[string]string `json:"notes,omitempty" bun:"notes,type:json"`
	CreatedAt time.Time         `json:"created_at" bun:"created_at,notnull"`
	UpdatedAt time.Time         `json:"updated_at" bun:"updated_at,notnull"`
}

// Clone returns a deep copy so stores never share maps with callers.
func (o *PaymentOrder) Clone() *PaymentOrder {
	c := *o
	if o.Notes != nil {
		c.Notes = make(map[string]string, len(o.Notes))
		for k, v := range o.Notes {
			c.Notes[k] = v
		}
	}
	return &c
}
