package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/saga/service"
	shared "github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/pkg/domain"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/pkg/mylogger"
	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Topics the orchestrator subscribes to. order-events is consumed for
// OrderCreated only; the OrderConfirmed and OrderCancelled events it also
// carries are produced by the orchestrator itself and skipped on read.
func Topics() []string {
	return []string{
		shared.TopicOrderEvents,
		shared.TopicPaymentEvents,
		shared.TopicInventoryEvents,
		shared.TopicShippingEvents,
	}
}

// EventHandler decodes envelopes off the broker and dispatches them to the
// orchestrator. Returning an error keeps the offset unmarked, so the broker
// redelivers the message; malformed payloads are logged and dropped instead,
// since redelivery cannot fix them.
type EventHandler struct {
	orchestrator *service.Orchestrator
	logger       *zap.Logger
}

func NewEventHandler(orchestrator *service.Orchestrator, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		orchestrator: orchestrator,
		logger:       logger,
	}
}

func (h *EventHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var envelope shared.EventEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		mylogger.Error(
			ctx,
			h.logger,
			"Dropping undecodable message",
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)

		return nil
	}

	switch msg.Topic {
	case shared.TopicOrderEvents:
		return h.handleOrderEvent(ctx, &envelope)
	case shared.TopicPaymentEvents:
		return h.handlePaymentEvent(ctx, &envelope)
	case shared.TopicInventoryEvents:
		return h.handleInventoryEvent(ctx, &envelope)
	case shared.TopicShippingEvents:
		return h.handleShippingEvent(ctx, &envelope)
	default:
		mylogger.Warn(ctx, h.logger, "Message from unexpected topic", zap.String("topic", msg.Topic))

		return nil
	}
}

func (h *EventHandler) handleOrderEvent(ctx context.Context, envelope *shared.EventEnvelope) error {
	if envelope.Event != shared.EventOrderCreated {
		return nil
	}

	var event shared.OrderCreatedEvent
	if err := h.decode(ctx, envelope, &event); err != nil {
		return nil
	}

	return h.orchestrator.StartSaga(ctx, &event)
}

func (h *EventHandler) handlePaymentEvent(ctx context.Context, envelope *shared.EventEnvelope) error {
	if envelope.Event != shared.EventPaymentProcessed {
		h.logUnknown(ctx, envelope)

		return nil
	}

	var event shared.PaymentProcessedEvent
	if err := h.decode(ctx, envelope, &event); err != nil {
		return nil
	}

	return h.orchestrator.HandlePaymentProcessed(ctx, &event)
}

func (h *EventHandler) handleInventoryEvent(ctx context.Context, envelope *shared.EventEnvelope) error {
	if envelope.Event != shared.EventInventoryReserved {
		h.logUnknown(ctx, envelope)

		return nil
	}

	var event shared.InventoryReservedEvent
	if err := h.decode(ctx, envelope, &event); err != nil {
		return nil
	}

	return h.orchestrator.HandleInventoryReserved(ctx, &event)
}

func (h *EventHandler) handleShippingEvent(ctx context.Context, envelope *shared.EventEnvelope) error {
	if envelope.Event != shared.EventShippingScheduled {
		h.logUnknown(ctx, envelope)

		return nil
	}

	var event shared.ShippingScheduledEvent
	if err := h.decode(ctx, envelope, &event); err != nil {
		return nil
	}

	return h.orchestrator.HandleShippingScheduled(ctx, &event)
}

func (h *EventHandler) decode(ctx context.Context, envelope *shared.EventEnvelope, target any) error {
	if err := json.Unmarshal(envelope.Payload, target); err != nil {
		mylogger.Error(
			ctx,
			h.logger,
			"Dropping undecodable payload",
			zap.String("event", envelope.Event),
			zap.Error(err),
		)

		return fmt.Errorf("decode %s payload: %w", envelope.Event, err)
	}

	return nil
}

func (h *EventHandler) logUnknown(ctx context.Context, envelope *shared.EventEnvelope) {
	mylogger.Warn(ctx, h.logger, "Skipping unhandled event type", zap.String("event", envelope.Event))
}
