package domain

import (
	"time"

	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/order/domain/valueobject"
	shared "github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/pkg/domain"
	"github.com/google/uuid"
)

const EventPaymentConfirmed = "PaymentConfirmed"

// EventMeta carries the identity every domain event shares. Events for one
// aggregate are totally ordered by Version, starting at 1, with no gaps.
type EventMeta struct {
	AggregateID   uuid.UUID
	CorrelationID uuid.UUID
	CausationID   uuid.UUID
	Version       int
	Timestamp     time.Time
}

type DomainEvent interface {
	Meta() EventMeta
	EventType() string
}

type OrderCreatedDomainEvent struct {
	EventMeta
	CustomerID  valueobject.CustomerID
	Items       []valueobject.OrderItem
	TotalAmount valueobject.Money
}

func (e OrderCreatedDomainEvent) Meta() EventMeta { return e.EventMeta }

func (e OrderCreatedDomainEvent) EventType() string { return shared.EventOrderCreated }

type OrderCancelledDomainEvent struct {
	EventMeta
	Reason string
}

func (e OrderCancelledDomainEvent) Meta() EventMeta { return e.EventMeta }

func (e OrderCancelledDomainEvent) EventType() string { return shared.EventOrderCancelled }

type PaymentConfirmedDomainEvent struct {
	EventMeta
	PaymentID uuid.UUID
}

func (e PaymentConfirmedDomainEvent) Meta() EventMeta { return e.EventMeta }

func (e PaymentConfirmedDomainEvent) EventType() string { return EventPaymentConfirmed }

// GenericDomainEvent stands in for event types this build does not know.
// Folding it is a no-op, but it still occupies its slot in the version
// sequence, so histories written by newer code keep replaying.
type GenericDomainEvent struct {
	EventMeta
	Type string
}

func (e GenericDomainEvent) Meta() EventMeta { return e.EventMeta }

func (e GenericDomainEvent) EventType() string { return e.Type }
