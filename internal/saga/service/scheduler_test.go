package service

import (
	"context"
	"testing"
	"time"

	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/saga/domain"
	shared "github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSchedulerHarness() (*orchestratorHarness, *Scheduler) {
	h := newOrchestratorHarness()
	scheduler := NewScheduler(h.repo, h.orchestrator, SchedulerConfig{
		TimeoutWindow: 15 * time.Minute,
		SweepInterval: time.Minute,
		RetryInterval: 2 * time.Minute,
		MaxRetries:    3,
	}, zap.NewNop())

	return h, scheduler
}

func TestSweepTimeoutsFailsSagaStuckOnPayment(t *testing.T) {
	h, scheduler := newSchedulerHarness()
	ctx := context.Background()
	created := orderCreated()

	require.NoError(t, h.orchestrator.StartSaga(ctx, created))
	h.repo.touch(created.CorrelationID, time.Now().UTC().Add(-time.Hour))

	scheduler.SweepTimeouts(ctx)

	saga, err := h.repo.FindByCorrelationID(ctx, created.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, domain.SagaStatusFailed, saga.Status)
	assert.Contains(t, saga.ErrorMessage, "timed out")

	assert.Len(t, h.producer.byEvent(shared.EventOrderCancelled), 1)
	assert.Empty(t, h.producer.byEvent(shared.CommandRefundPayment))
}

func TestSweepTimeoutsFailsSagaStuckOnInventory(t *testing.T) {
	h, scheduler := newSchedulerHarness()
	ctx := context.Background()
	created := orderCreated()

	require.NoError(t, h.orchestrator.StartSaga(ctx, created))
	require.NoError(t, h.orchestrator.HandlePaymentProcessed(ctx, paymentSucceeded(created.CorrelationID, created.OrderID)))
	h.repo.touch(created.CorrelationID, time.Now().UTC().Add(-time.Hour))

	scheduler.SweepTimeouts(ctx)

	saga, err := h.repo.FindByCorrelationID(ctx, created.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, domain.SagaStatusFailed, saga.Status)
	assert.Equal(t, domain.StepInventoryProcessing, saga.CurrentStep)
	assert.Len(t, h.producer.byEvent(shared.EventOrderCancelled), 1)

	// The retry sweep re-issues the unanswered inventory command.
	scheduler.SweepRetries(ctx)
	assert.Len(t, h.producer.byEvent(shared.CommandReserveInventory), 2)
}

func TestSweepsRecoverSagaStrandedMidCompensation(t *testing.T) {
	h, scheduler := newSchedulerHarness()
	ctx := context.Background()
	created := orderCreated()

	require.NoError(t, h.orchestrator.StartSaga(ctx, created))
	require.NoError(t, h.orchestrator.HandlePaymentProcessed(ctx, paymentSucceeded(created.CorrelationID, created.OrderID)))

	// The process dies after COMPENSATING lands but before the final write.
	h.repo.failUpdate(2)

	failure := &shared.InventoryReservedEvent{
		CorrelationID: created.CorrelationID,
		OrderID:       created.OrderID,
		Status:        shared.StatusFailed,
		FailureReason: "out of stock",
	}
	require.Error(t, h.orchestrator.HandleInventoryReserved(ctx, failure))

	saga, err := h.repo.FindByCorrelationID(ctx, created.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, domain.SagaStatusCompensating, saga.Status)
	assert.Equal(t, domain.StepCompensationPayment, saga.CurrentStep)

	// The redelivered result no longer matches the step gate.
	require.NoError(t, h.orchestrator.HandleInventoryReserved(ctx, failure))

	saga, err = h.repo.FindByCorrelationID(ctx, created.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, domain.SagaStatusCompensating, saga.Status)

	// The timeout sweep still reaches the stranded saga and fails it.
	h.repo.touch(created.CorrelationID, time.Now().UTC().Add(-time.Hour))
	scheduler.SweepTimeouts(ctx)

	saga, err = h.repo.FindByCorrelationID(ctx, created.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, domain.SagaStatusFailed, saga.Status)

	// The retry sweep resumes the undo walk; the refund is idempotent at
	// the collaborator boundary, so resending it is safe.
	scheduler.SweepRetries(ctx)

	saga, err = h.repo.FindByCorrelationID(ctx, created.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, domain.SagaStatusCompensationCompleted, saga.Status)
	assert.Equal(t, 1, saga.RetryCount)
	assert.NotNil(t, saga.CompletedAt)

	assert.Len(t, h.producer.byEvent(shared.CommandRefundPayment), 2)
	assert.Empty(t, h.producer.byEvent(shared.CommandScheduleShipping))
}

func TestSweepTimeoutsIgnoresFreshSagas(t *testing.T) {
	h, scheduler := newSchedulerHarness()
	ctx := context.Background()
	created := orderCreated()

	require.NoError(t, h.orchestrator.StartSaga(ctx, created))

	scheduler.SweepTimeouts(ctx)

	saga, err := h.repo.FindByCorrelationID(ctx, created.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, domain.SagaStatusPaymentPending, saga.Status)
}

func TestSweepRetriesRedrivesFailedSaga(t *testing.T) {
	h, scheduler := newSchedulerHarness()
	ctx := context.Background()
	created := orderCreated()

	require.NoError(t, h.orchestrator.StartSaga(ctx, created))
	require.NoError(t, h.orchestrator.HandlePaymentProcessed(ctx, &shared.PaymentProcessedEvent{
		CorrelationID: created.CorrelationID,
		OrderID:       created.OrderID,
		Status:        shared.StatusFailed,
		FailureReason: "gateway unavailable",
	}))

	scheduler.SweepRetries(ctx)

	saga, err := h.repo.FindByCorrelationID(ctx, created.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, domain.SagaStatusPaymentPending, saga.Status)
	assert.Equal(t, 1, saga.RetryCount)
	assert.Empty(t, saga.ErrorMessage)
	assert.Nil(t, saga.CompletedAt)

	assert.Len(t, h.producer.byEvent(shared.CommandProcessPayment), 2)
}

func TestSweepRetriesHonorsRetryBudget(t *testing.T) {
	h, scheduler := newSchedulerHarness()
	ctx := context.Background()
	created := orderCreated()

	require.NoError(t, h.orchestrator.StartSaga(ctx, created))
	require.NoError(t, h.orchestrator.HandlePaymentProcessed(ctx, &shared.PaymentProcessedEvent{
		CorrelationID: created.CorrelationID,
		OrderID:       created.OrderID,
		Status:        shared.StatusFailed,
		FailureReason: "gateway unavailable",
	}))

	for i := 0; i < 3; i++ {
		scheduler.SweepRetries(ctx)

		require.NoError(t, h.orchestrator.HandlePaymentProcessed(ctx, &shared.PaymentProcessedEvent{
			CorrelationID: created.CorrelationID,
			OrderID:       created.OrderID,
			Status:        shared.StatusFailed,
			FailureReason: "gateway unavailable",
		}))
	}

	// Budget exhausted, the fourth sweep re-drives nothing.
	scheduler.SweepRetries(ctx)

	saga, err := h.repo.FindByCorrelationID(ctx, created.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, domain.SagaStatusFailed, saga.Status)
	assert.Equal(t, 3, saga.RetryCount)

	// One initial attempt plus three re-drives.
	assert.Len(t, h.producer.byEvent(shared.CommandProcessPayment), 4)
}
