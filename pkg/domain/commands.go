package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Command names as they appear in envelopes.
const (
	CommandProcessPayment   = "ProcessPayment"
	CommandReserveInventory = "ReserveInventory"
	CommandScheduleShipping = "ScheduleShipping"
	CommandRefundPayment    = "RefundPayment"
	CommandReleaseInventory = "ReleaseInventory"
	CommandCancelShipment   = "CancelShipment"
)

type ProcessPaymentCommand struct {
	CorrelationID uuid.UUID       `json:"correlation_id"`
	OrderID       uuid.UUID       `json:"order_id"`
	CustomerID    string          `json:"customer_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
}

type InventoryItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type ReserveInventoryCommand struct {
	CorrelationID uuid.UUID       `json:"correlation_id"`
	OrderID       uuid.UUID       `json:"order_id"`
	Items         []InventoryItem `json:"items"`
}

type ScheduleShippingCommand struct {
	CorrelationID   uuid.UUID `json:"correlation_id"`
	OrderID         uuid.UUID `json:"order_id"`
	CustomerID      string    `json:"customer_id"`
	ShippingAddress string    `json:"shipping_address"`
	ShippingMethod  string    `json:"shipping_method"`
}

// Compensation commands. Collaborators must treat these as idempotent: the
// orchestrator is free to resend them on retry.

type RefundPaymentCommand struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	OrderID       uuid.UUID `json:"order_id"`
	PaymentID     uuid.UUID `json:"payment_id"`
	Reason        string    `json:"reason"`
}

type ReleaseInventoryCommand struct {
	CorrelationID uuid.UUID      `json:"correlation_id"`
	OrderID       uuid.UUID      `json:"order_id"`
	Items         []ReservedItem `json:"items"`
	Reason        string         `json:"reason"`
}

type CancelShipmentCommand struct {
	CorrelationID  uuid.UUID `json:"correlation_id"`
	OrderID        uuid.UUID `json:"order_id"`
	TrackingNumber uuid.UUID `json:"tracking_number"`
	Reason         string    `json:"reason"`
}
