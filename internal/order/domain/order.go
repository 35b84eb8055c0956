package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/order/domain/valueobject"
	"github.com/google/uuid"
)

// ErrReconstruction marks a corrupt event history: a gap or an out-of-order
// version during replay.
var ErrReconstruction = errors.New("event history is corrupt")

type OrderStatus string

const (
	OrderStatusPending           OrderStatus = "PENDING"
	OrderStatusPaymentPending    OrderStatus = "PAYMENT_PENDING"
	OrderStatusPaymentAuthorized OrderStatus = "PAYMENT_AUTHORIZED"
	OrderStatusConfirmed         OrderStatus = "CONFIRMED"
	OrderStatusShipped           OrderStatus = "SHIPPED"
	OrderStatusDelivered         OrderStatus = "DELIVERED"
	OrderStatusCancelled         OrderStatus = "CANCELLED"
)

// Order derives its state exclusively by folding its event history. It is
// owned by a single command invocation and discarded after the transaction
// commits; the event store is authoritative.
type Order struct {
	id          uuid.UUID
	customerID  valueobject.CustomerID
	items       []valueobject.OrderItem
	totalAmount valueobject.Money
	status      OrderStatus
	version     int
	createdAt   time.Time
	updatedAt   time.Time

	uncommitted []DomainEvent
}

// CreateOrder validates the command, computes the total as the sum of item
// subtotals and applies an OrderCreated event to a fresh aggregate.
func CreateOrder(
	customerID valueobject.CustomerID,
	items []valueobject.OrderItem,
	correlationID uuid.UUID,
	causationID uuid.UUID,
) (*Order, error) {
	if customerID.Value() == "" {
		return nil, fmt.Errorf("%w: customer id cannot be blank", valueobject.ErrValidation)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: order must have at least one item", valueobject.ErrValidation)
	}

	total := valueobject.ZeroMoney(items[0].Subtotal().Currency())
	for _, item := range items {
		var err error
		total, err = total.Add(item.Subtotal())
		if err != nil {
			return nil, err
		}
	}

	order := &Order{}

	event := OrderCreatedDomainEvent{
		EventMeta: EventMeta{
			AggregateID:   uuid.New(),
			CorrelationID: correlationID,
			CausationID:   causationID,
			Version:       1,
			Timestamp:     time.Now().UTC(),
		},
		CustomerID:  customerID,
		Items:       append([]valueobject.OrderItem(nil), items...),
		TotalAmount: total,
	}

	order.applyNew(event)

	return order, nil
}

// FromHistory rebuilds an aggregate by folding events in ascending version
// order. The first event must carry version 1 and each subsequent event must
// follow without a gap.
func FromHistory(history []DomainEvent) (*Order, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: event history cannot be empty", valueobject.ErrValidation)
	}

	order := &Order{}
	for i, event := range history {
		if event.Meta().Version != i+1 {
			return nil, fmt.Errorf("%w: expected version %d, got %d",
				ErrReconstruction, i+1, event.Meta().Version)
		}

		order.apply(event)
		order.version = event.Meta().Version
	}

	return order, nil
}

func (o *Order) applyNew(event DomainEvent) {
	o.apply(event)
	o.version = event.Meta().Version
	o.uncommitted = append(o.uncommitted, event)
}

// apply folds a single event into state. The dispatch is closed over the
// known variants; anything else folds to a no-op so histories written by
// newer code stay readable.
func (o *Order) apply(event DomainEvent) {
	switch e := event.(type) {
	case OrderCreatedDomainEvent:
		o.id = e.AggregateID
		o.customerID = e.CustomerID
		o.items = append([]valueobject.OrderItem(nil), e.Items...)
		o.totalAmount = e.TotalAmount
		o.status = OrderStatusPending
		o.createdAt = e.Timestamp
		o.updatedAt = e.Timestamp
	case PaymentConfirmedDomainEvent:
		o.status = OrderStatusPaymentAuthorized
		o.updatedAt = e.Timestamp
	case OrderCancelledDomainEvent:
		o.status = OrderStatusCancelled
		o.updatedAt = e.Timestamp
	}
}

// Cancel emits an OrderCancelled event. The order must not already be
// cancelled and a delivered order can no longer be cancelled.
func (o *Order) Cancel(reason string, correlationID, causationID uuid.UUID) error {
	if o.status == OrderStatusCancelled {
		return fmt.Errorf("%w: order is already cancelled", valueobject.ErrValidation)
	}
	if o.status == OrderStatusDelivered {
		return fmt.Errorf("%w: cannot cancel delivered order", valueobject.ErrValidation)
	}

	o.applyNew(OrderCancelledDomainEvent{
		EventMeta: EventMeta{
			AggregateID:   o.id,
			CorrelationID: correlationID,
			CausationID:   causationID,
			Version:       o.version + 1,
			Timestamp:     time.Now().UTC(),
		},
		Reason: reason,
	})

	return nil
}

// ConfirmPayment emits a PaymentConfirmed event for an order still waiting
// on payment.
func (o *Order) ConfirmPayment(paymentID uuid.UUID, correlationID, causationID uuid.UUID) error {
	if o.status != OrderStatusPending && o.status != OrderStatusPaymentPending {
		return fmt.Errorf("%w: order is not waiting for payment", valueobject.ErrValidation)
	}

	o.applyNew(PaymentConfirmedDomainEvent{
		EventMeta: EventMeta{
			AggregateID:   o.id,
			CorrelationID: correlationID,
			CausationID:   causationID,
			Version:       o.version + 1,
			Timestamp:     time.Now().UTC(),
		},
		PaymentID: paymentID,
	})

	return nil
}

func (o *Order) UncommittedEvents() []DomainEvent {
	return o.uncommitted
}

func (o *Order) MarkEventsCommitted() {
	o.uncommitted = nil
}

func (o *Order) ID() uuid.UUID                       { return o.id }
func (o *Order) CustomerID() valueobject.CustomerID  { return o.customerID }
func (o *Order) Items() []valueobject.OrderItem      { return o.items }
func (o *Order) TotalAmount() valueobject.Money      { return o.totalAmount }
func (o *Order) Status() OrderStatus                 { return o.status }
func (o *Order) Version() int                        { return o.version }
func (o *Order) CreatedAt() time.Time                { return o.createdAt }
func (o *Order) UpdatedAt() time.Time                { return o.updatedAt }
