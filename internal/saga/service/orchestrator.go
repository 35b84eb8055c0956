package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/saga/domain"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/saga/repository"
	shared "github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/pkg/domain"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/pkg/mylogger"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	sagaCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "saga_completed_total",
		Help: "Sagas that reached COMPLETED.",
	})
	sagaCompensatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "saga_compensated_total",
		Help: "Sagas that reached COMPENSATION_COMPLETED.",
	})
	sagaFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "saga_failed_total",
		Help: "Sagas that reached FAILED.",
	})
)

type Producer interface {
	ProduceMessage(ctx context.Context, topic string, key string, message interface{}) error
}

// Conflicting writers retry their read-modify-write a few times before
// giving the message back to the broker.
const maxConflictRetries = 3

// Orchestrator drives one order saga per correlation id. Each handler is a
// read-modify-write on the saga row under an optimistic lock; a result event
// for a step the saga is no longer waiting on is discarded as a duplicate.
type Orchestrator struct {
	repo     repository.SagaRepository
	producer Producer
	logger   *zap.Logger
	tracer   trace.Tracer
}

func NewOrchestrator(repo repository.SagaRepository, producer Producer, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		repo:     repo,
		producer: producer,
		logger:   logger,
		tracer:   otel.Tracer("saga_orchestrator"),
	}
}

// StartSaga creates the saga instance for a newly created order and issues
// the first step, the payment command. A second delivery of the same
// OrderCreated event finds the existing instance and does nothing.
func (o *Orchestrator) StartSaga(ctx context.Context, event *shared.OrderCreatedEvent) error {
	ctx, span := o.tracer.Start(ctx, "Orchestrator.StartSaga")
	defer span.End()

	span.SetAttributes(
		attribute.String("correlation_id", event.CorrelationID.String()),
		attribute.String("order_id", event.OrderID.String()),
	)

	mylogger.Info(
		ctx,
		o.logger,
		"Starting order saga",
		zap.String("order_id", event.OrderID.String()),
		zap.String("correlation_id", event.CorrelationID.String()),
	)

	saga := domain.NewInstance(event.CorrelationID, event.OrderID)
	saga.Data = domain.SagaData{
		CustomerID:  event.CustomerID,
		TotalAmount: event.TotalAmount,
		Items:       event.Items,
	}

	if err := o.repo.Create(ctx, saga); err != nil {
		if errors.Is(err, repository.ErrSagaAlreadyExists) {
			mylogger.Info(
				ctx,
				o.logger,
				"Saga already exists, skipping duplicate OrderCreated",
				zap.String("correlation_id", event.CorrelationID.String()),
			)

			return nil
		}

		return err
	}

	saga.AddCompletedStep(domain.StepOrderCreated)

	return o.processPayment(ctx, saga)
}

func (o *Orchestrator) processPayment(ctx context.Context, saga *domain.Instance) error {
	saga.Status = domain.SagaStatusPaymentPending
	saga.CurrentStep = domain.StepPaymentProcessing

	if err := o.repo.Update(ctx, saga); err != nil {
		return err
	}

	command := shared.ProcessPaymentCommand{
		CorrelationID: saga.CorrelationID,
		OrderID:       saga.OrderID,
		CustomerID:    saga.Data.CustomerID,
		Amount:        saga.Data.TotalAmount,
		PaymentMethod: "CREDIT_CARD",
	}

	return o.publish(ctx, shared.TopicPaymentCommands, saga.CorrelationID, shared.CommandProcessPayment, command)
}

func (o *Orchestrator) HandlePaymentProcessed(ctx context.Context, event *shared.PaymentProcessedEvent) error {
	ctx, span := o.tracer.Start(ctx, "Orchestrator.HandlePaymentProcessed")
	defer span.End()

	span.SetAttributes(
		attribute.String("correlation_id", event.CorrelationID.String()),
		attribute.String("status", event.Status),
	)

	return o.withSaga(ctx, event.CorrelationID, func(saga *domain.Instance) error {
		if saga.Status != domain.SagaStatusPaymentPending {
			o.logDuplicate(ctx, saga, shared.EventPaymentProcessed)

			return nil
		}

		if event.Status != shared.StatusSuccess {
			return o.failSaga(ctx, saga, "Payment failed: "+event.FailureReason)
		}

		// PAYMENT_AUTHORIZED and the move to the next pending state commit as
		// one write, so a crash here leaves the saga replayable from
		// PAYMENT_PENDING instead of stranded between the two.
		saga.AddCompletedStep(domain.StepPaymentProcessing)
		saga.Data.PaymentID = event.PaymentID

		return o.reserveInventory(ctx, saga)
	})
}

func (o *Orchestrator) reserveInventory(ctx context.Context, saga *domain.Instance) error {
	saga.Status = domain.SagaStatusInventoryPending
	saga.CurrentStep = domain.StepInventoryProcessing

	if err := o.repo.Update(ctx, saga); err != nil {
		return err
	}

	items := make([]shared.InventoryItem, 0, len(saga.Data.Items))
	for _, item := range saga.Data.Items {
		items = append(items, shared.InventoryItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	command := shared.ReserveInventoryCommand{
		CorrelationID: saga.CorrelationID,
		OrderID:       saga.OrderID,
		Items:         items,
	}

	return o.publish(ctx, shared.TopicInventoryCommands, saga.CorrelationID, shared.CommandReserveInventory, command)
}

func (o *Orchestrator) HandleInventoryReserved(ctx context.Context, event *shared.InventoryReservedEvent) error {
	ctx, span := o.tracer.Start(ctx, "Orchestrator.HandleInventoryReserved")
	defer span.End()

	span.SetAttributes(
		attribute.String("correlation_id", event.CorrelationID.String()),
		attribute.String("status", event.Status),
	)

	return o.withSaga(ctx, event.CorrelationID, func(saga *domain.Instance) error {
		if saga.Status != domain.SagaStatusInventoryPending {
			o.logDuplicate(ctx, saga, shared.EventInventoryReserved)

			return nil
		}

		if event.Status != shared.StatusSuccess {
			return o.compensateSaga(ctx, saga, "Inventory reservation failed: "+event.FailureReason)
		}

		saga.AddCompletedStep(domain.StepInventoryProcessing)
		saga.Data.ReservationItems = event.Items

		return o.scheduleShipping(ctx, saga)
	})
}

func (o *Orchestrator) scheduleShipping(ctx context.Context, saga *domain.Instance) error {
	saga.Status = domain.SagaStatusShippingPending
	saga.CurrentStep = domain.StepShippingProcessing

	if err := o.repo.Update(ctx, saga); err != nil {
		return err
	}

	command := shared.ScheduleShippingCommand{
		CorrelationID:   saga.CorrelationID,
		OrderID:         saga.OrderID,
		CustomerID:      saga.Data.CustomerID,
		ShippingAddress: "Default Address",
		ShippingMethod:  "STANDARD",
	}

	return o.publish(ctx, shared.TopicShippingCommands, saga.CorrelationID, shared.CommandScheduleShipping, command)
}

func (o *Orchestrator) HandleShippingScheduled(ctx context.Context, event *shared.ShippingScheduledEvent) error {
	ctx, span := o.tracer.Start(ctx, "Orchestrator.HandleShippingScheduled")
	defer span.End()

	span.SetAttributes(
		attribute.String("correlation_id", event.CorrelationID.String()),
		attribute.String("status", event.Status),
	)

	return o.withSaga(ctx, event.CorrelationID, func(saga *domain.Instance) error {
		if saga.Status != domain.SagaStatusShippingPending {
			o.logDuplicate(ctx, saga, shared.EventShippingScheduled)

			return nil
		}

		if event.Status != shared.StatusSuccess {
			return o.compensateSaga(ctx, saga, "Shipping scheduling failed: "+event.FailureReason)
		}

		saga.AddCompletedStep(domain.StepShippingProcessing)
		saga.Data.TrackingNumber = event.TrackingNumber

		return o.completeSaga(ctx, saga)
	})
}

func (o *Orchestrator) completeSaga(ctx context.Context, saga *domain.Instance) error {
	now := time.Now().UTC()

	saga.Status = domain.SagaStatusCompleted
	saga.CurrentStep = domain.StepOrderConfirmed
	saga.CompletedAt = &now
	saga.AddCompletedStep(domain.StepOrderConfirmed)

	if err := o.repo.Update(ctx, saga); err != nil {
		return err
	}

	event := shared.OrderConfirmedEvent{
		CorrelationID:  saga.CorrelationID,
		OrderID:        saga.OrderID,
		PaymentID:      saga.Data.PaymentID,
		TrackingNumber: saga.Data.TrackingNumber,
		Timestamp:      now,
	}

	if err := o.publish(ctx, shared.TopicOrderEvents, saga.CorrelationID, shared.EventOrderConfirmed, event); err != nil {
		return err
	}

	sagaCompletedTotal.Inc()

	mylogger.Info(
		ctx,
		o.logger,
		"Saga completed",
		zap.String("correlation_id", saga.CorrelationID.String()),
		zap.String("order_id", saga.OrderID.String()),
	)

	return nil
}

// compensateSaga walks the completed steps in reverse and issues the undo
// command for each one. The undo commands are idempotent at the collaborator
// boundary, so resending them on a retry is safe. Once a saga is
// compensating it never re-enters a forward step.
func (o *Orchestrator) compensateSaga(ctx context.Context, saga *domain.Instance, reason string) error {
	mylogger.Warn(
		ctx,
		o.logger,
		"Starting saga compensation",
		zap.String("correlation_id", saga.CorrelationID.String()),
		zap.String("reason", reason),
	)

	saga.Status = domain.SagaStatusCompensating
	saga.ErrorMessage = reason

	// The current step moves onto the compensation track before anything is
	// persisted. If the process dies mid-undo the re-drive resumes
	// compensation instead of re-entering a forward step.
	switch {
	case saga.HasCompletedStep(domain.StepShippingProcessing):
		saga.CurrentStep = domain.StepCompensationShipping
	case saga.HasCompletedStep(domain.StepInventoryProcessing):
		saga.CurrentStep = domain.StepCompensationInventory
	case saga.HasCompletedStep(domain.StepPaymentProcessing):
		saga.CurrentStep = domain.StepCompensationPayment
	}

	if err := o.repo.Update(ctx, saga); err != nil {
		return err
	}

	if saga.HasCompletedStep(domain.StepShippingProcessing) {
		saga.CurrentStep = domain.StepCompensationShipping

		command := shared.CancelShipmentCommand{
			CorrelationID:  saga.CorrelationID,
			OrderID:        saga.OrderID,
			TrackingNumber: saga.Data.TrackingNumber,
			Reason:         reason,
		}

		if err := o.publish(ctx, shared.TopicShippingCommands, saga.CorrelationID, shared.CommandCancelShipment, command); err != nil {
			return err
		}
	}

	if saga.HasCompletedStep(domain.StepInventoryProcessing) {
		saga.CurrentStep = domain.StepCompensationInventory

		command := shared.ReleaseInventoryCommand{
			CorrelationID: saga.CorrelationID,
			OrderID:       saga.OrderID,
			Items:         saga.Data.ReservationItems,
			Reason:        reason,
		}

		if err := o.publish(ctx, shared.TopicInventoryCommands, saga.CorrelationID, shared.CommandReleaseInventory, command); err != nil {
			return err
		}
	}

	if saga.HasCompletedStep(domain.StepPaymentProcessing) {
		saga.CurrentStep = domain.StepCompensationPayment

		command := shared.RefundPaymentCommand{
			CorrelationID: saga.CorrelationID,
			OrderID:       saga.OrderID,
			PaymentID:     saga.Data.PaymentID,
			Reason:        reason,
		}

		if err := o.publish(ctx, shared.TopicPaymentCommands, saga.CorrelationID, shared.CommandRefundPayment, command); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	saga.Status = domain.SagaStatusCompensationCompleted
	saga.CompletedAt = &now

	if err := o.repo.Update(ctx, saga); err != nil {
		return err
	}

	if err := o.publishCancelled(ctx, saga, reason, now); err != nil {
		return err
	}

	sagaCompensatedTotal.Inc()

	mylogger.Info(
		ctx,
		o.logger,
		"Saga compensated",
		zap.String("correlation_id", saga.CorrelationID.String()),
	)

	return nil
}

// failSaga terminates a saga without issuing undo commands: either nothing
// succeeded yet, or the saga is being timed out and the retry re-drive owns
// resuming whatever work (forward or compensation) is still outstanding.
func (o *Orchestrator) failSaga(ctx context.Context, saga *domain.Instance, reason string) error {
	mylogger.Error(
		ctx,
		o.logger,
		"Saga failed",
		zap.String("correlation_id", saga.CorrelationID.String()),
		zap.String("reason", reason),
	)

	now := time.Now().UTC()
	saga.Status = domain.SagaStatusFailed
	saga.ErrorMessage = reason
	saga.CompletedAt = &now

	if err := o.repo.Update(ctx, saga); err != nil {
		return err
	}

	if err := o.publishCancelled(ctx, saga, reason, now); err != nil {
		return err
	}

	sagaFailedTotal.Inc()

	return nil
}

// Redrive picks a failed saga back up from the step it died on: forward
// steps get their command re-issued, compensation steps resume the undo
// walk. The terminal bookkeeping is reset here so the next update persists
// a live saga again.
func (o *Orchestrator) Redrive(ctx context.Context, saga *domain.Instance) error {
	ctx, span := o.tracer.Start(ctx, "Orchestrator.Redrive")
	defer span.End()

	span.SetAttributes(
		attribute.String("correlation_id", saga.CorrelationID.String()),
		attribute.String("current_step", string(saga.CurrentStep)),
	)

	reason := saga.ErrorMessage
	saga.CompletedAt = nil
	saga.ErrorMessage = ""

	switch saga.CurrentStep {
	case domain.StepOrderCreated, domain.StepPaymentProcessing:
		return o.processPayment(ctx, saga)
	case domain.StepInventoryProcessing:
		return o.reserveInventory(ctx, saga)
	case domain.StepShippingProcessing:
		return o.scheduleShipping(ctx, saga)
	case domain.StepCompensationShipping, domain.StepCompensationInventory, domain.StepCompensationPayment:
		return o.compensateSaga(ctx, saga, reason)
	default:
		mylogger.Warn(
			ctx,
			o.logger,
			"No re-drive for saga step",
			zap.String("correlation_id", saga.CorrelationID.String()),
			zap.String("current_step", string(saga.CurrentStep)),
		)

		return nil
	}
}

// withSaga runs fn against the saga for the given correlation id, retrying
// the whole read-modify-write when the optimistic update loses a race.
func (o *Orchestrator) withSaga(ctx context.Context, correlationID uuid.UUID, fn func(saga *domain.Instance) error) error {
	for attempt := 0; ; attempt++ {
		saga, err := o.repo.FindByCorrelationID(ctx, correlationID)
		if err != nil {
			if errors.Is(err, repository.ErrSagaNotFound) {
				return fmt.Errorf("%w: %s", repository.ErrSagaNotFound, correlationID)
			}

			return err
		}

		err = fn(saga)
		if errors.Is(err, repository.ErrConcurrentUpdate) && attempt < maxConflictRetries {
			mylogger.Warn(
				ctx,
				o.logger,
				"Retrying saga step after concurrent update",
				zap.String("correlation_id", correlationID.String()),
				zap.Int("attempt", attempt+1),
			)

			continue
		}

		return err
	}
}

func (o *Orchestrator) publishCancelled(ctx context.Context, saga *domain.Instance, reason string, at time.Time) error {
	event := shared.OrderCancelledEvent{
		CorrelationID: saga.CorrelationID,
		OrderID:       saga.OrderID,
		Reason:        reason,
		Timestamp:     at,
	}

	return o.publish(ctx, shared.TopicOrderEvents, saga.CorrelationID, shared.EventOrderCancelled, event)
}

func (o *Orchestrator) publish(ctx context.Context, topic string, correlationID uuid.UUID, name string, payload any) error {
	envelope, err := shared.NewEnvelope(name, payload)
	if err != nil {
		return err
	}

	return o.producer.ProduceMessage(ctx, topic, correlationID.String(), envelope)
}

func (o *Orchestrator) logDuplicate(ctx context.Context, saga *domain.Instance, eventType string) {
	mylogger.Info(
		ctx,
		o.logger,
		"Result event does not match the step the saga is waiting on, discarding",
		zap.String("correlation_id", saga.CorrelationID.String()),
		zap.String("event_type", eventType),
		zap.String("saga_status", string(saga.Status)),
	)
}
