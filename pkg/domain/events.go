package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event names as they appear in envelopes and outbox rows.
const (
	EventOrderCreated      = "OrderCreated"
	EventOrderConfirmed    = "OrderConfirmed"
	EventOrderCancelled    = "OrderCancelled"
	EventPaymentProcessed  = "PaymentProcessed"
	EventInventoryReserved = "InventoryReserved"
	EventShippingScheduled = "ShippingScheduled"
)

type OrderItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type OrderCreatedEvent struct {
	OrderID       uuid.UUID       `json:"order_id"`
	CustomerID    string          `json:"customer_id"`
	Items         []OrderItem     `json:"items"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	CausationID   uuid.UUID       `json:"causation_id"`
	Version       int             `json:"version"`
}

type PaymentProcessedEvent struct {
	CorrelationID uuid.UUID       `json:"correlation_id"`
	OrderID       uuid.UUID       `json:"order_id"`
	PaymentID     uuid.UUID       `json:"payment_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	FailureReason string          `json:"failure_reason,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

type ReservedItem struct {
	ProductID     string    `json:"product_id"`
	Quantity      int       `json:"quantity"`
	ReservationID uuid.UUID `json:"reservation_id"`
}

type InventoryReservedEvent struct {
	CorrelationID uuid.UUID      `json:"correlation_id"`
	OrderID       uuid.UUID      `json:"order_id"`
	Items         []ReservedItem `json:"items"`
	Status        string         `json:"status"`
	FailureReason string         `json:"failure_reason,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

type ShippingScheduledEvent struct {
	CorrelationID     uuid.UUID `json:"correlation_id"`
	OrderID           uuid.UUID `json:"order_id"`
	TrackingNumber    uuid.UUID `json:"tracking_number"`
	Status            string    `json:"status"`
	FailureReason     string    `json:"failure_reason,omitempty"`
	EstimatedDelivery time.Time `json:"estimated_delivery,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

type PaymentConfirmedEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	PaymentID     uuid.UUID `json:"payment_id"`
	CorrelationID uuid.UUID `json:"correlation_id"`
	CausationID   uuid.UUID `json:"causation_id"`
	Version       int       `json:"version"`
	Timestamp     time.Time `json:"timestamp"`
}

type OrderConfirmedEvent struct {
	CorrelationID  uuid.UUID `json:"correlation_id"`
	OrderID        uuid.UUID `json:"order_id"`
	PaymentID      uuid.UUID `json:"payment_id"`
	TrackingNumber uuid.UUID `json:"tracking_number"`
	Timestamp      time.Time `json:"timestamp"`
}

type OrderCancelledEvent struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	OrderID       uuid.UUID `json:"order_id"`
	Reason        string    `json:"reason"`
	Timestamp     time.Time `json:"timestamp"`
}
