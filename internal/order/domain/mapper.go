package domain

import (
	"encoding/json"
	"fmt"

	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/order/domain/valueobject"
	shared "github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/pkg/domain"
)

// ToIntegrationEvent translates a domain event into its external-facing
// payload: plain wire values instead of value objects.
func ToIntegrationEvent(event DomainEvent) (any, error) {
	switch e := event.(type) {
	case OrderCreatedDomainEvent:
		items := make([]shared.OrderItem, 0, len(e.Items))
		for _, item := range e.Items {
			items = append(items, shared.OrderItem{
				ProductID:   item.ProductID().Value(),
				ProductName: item.ProductName(),
				Quantity:    item.Quantity().Value(),
				UnitPrice:   item.UnitPrice().Amount(),
				Subtotal:    item.Subtotal().Amount(),
			})
		}

		return shared.OrderCreatedEvent{
			OrderID:       e.AggregateID,
			CustomerID:    e.CustomerID.Value(),
			Items:         items,
			TotalAmount:   e.TotalAmount.Amount(),
			Timestamp:     e.Timestamp,
			CorrelationID: e.CorrelationID,
			CausationID:   e.CausationID,
			Version:       e.Version,
		}, nil
	case OrderCancelledDomainEvent:
		return shared.OrderCancelledEvent{
			CorrelationID: e.CorrelationID,
			OrderID:       e.AggregateID,
			Reason:        e.Reason,
			Timestamp:     e.Timestamp,
		}, nil
	case PaymentConfirmedDomainEvent:
		return shared.PaymentConfirmedEvent{
			OrderID:       e.AggregateID,
			PaymentID:     e.PaymentID,
			CorrelationID: e.CorrelationID,
			CausationID:   e.CausationID,
			Version:       e.Version,
			Timestamp:     e.Timestamp,
		}, nil
	default:
		return nil, fmt.Errorf("no integration mapping for event type %q", event.EventType())
	}
}

// FromStored rebuilds a domain event from an event store row. Event types
// unknown to this build come back as GenericDomainEvent so the fold skips
// them without breaking the version sequence.
func FromStored(eventType string, data []byte, meta EventMeta) (DomainEvent, error) {
	switch eventType {
	case shared.EventOrderCreated:
		var wire shared.OrderCreatedEvent
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", eventType, err)
		}

		customerID, err := valueobject.NewCustomerID(wire.CustomerID)
		if err != nil {
			return nil, err
		}

		items := make([]valueobject.OrderItem, 0, len(wire.Items))
		for _, item := range wire.Items {
			vo, err := valueobject.CreateOrderItem(item.ProductID, item.ProductName, item.Quantity, item.UnitPrice)
			if err != nil {
				return nil, err
			}
			items = append(items, vo)
		}

		total, err := valueobject.MoneyOf(wire.TotalAmount)
		if err != nil {
			return nil, err
		}

		return OrderCreatedDomainEvent{
			EventMeta:   meta,
			CustomerID:  customerID,
			Items:       items,
			TotalAmount: total,
		}, nil
	case shared.EventOrderCancelled:
		var wire shared.OrderCancelledEvent
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", eventType, err)
		}

		return OrderCancelledDomainEvent{
			EventMeta: meta,
			Reason:    wire.Reason,
		}, nil
	case EventPaymentConfirmed:
		var wire shared.PaymentConfirmedEvent
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", eventType, err)
		}

		return PaymentConfirmedDomainEvent{
			EventMeta: meta,
			PaymentID: wire.PaymentID,
		}, nil
	default:
		return GenericDomainEvent{EventMeta: meta, Type: eventType}, nil
	}
}
