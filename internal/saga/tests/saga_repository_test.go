package tests

import (
	"time"

	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/saga/domain"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/saga/repository"
	shared "github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/pkg/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func (s *IntegrationTestSuite) newSaga() *domain.Instance {
	saga := domain.NewInstance(uuid.New(), uuid.New())
	saga.Data = domain.SagaData{
		CustomerID:  "customer-1",
		TotalAmount: decimal.RequireFromString("3150.00"),
		Items: []shared.OrderItem{
			{ProductID: "SKU-1", ProductName: "Notebook", Quantity: 2, UnitPrice: decimal.RequireFromString("1500.00"), Subtotal: decimal.RequireFromString("3000.00")},
		},
	}
	saga.AddCompletedStep(domain.StepOrderCreated)

	return saga
}

func (s *IntegrationTestSuite) TestCreateAndFindRoundTrip() {
	saga := s.newSaga()

	s.Require().NoError(s.SagaRepo.Create(s.Ctx, saga))
	s.Require().NotZero(saga.ID)
	s.Require().EqualValues(1, saga.LockVersion)

	found, err := s.SagaRepo.FindByCorrelationID(s.Ctx, saga.CorrelationID)
	s.Require().NoError(err)

	s.Equal(saga.CorrelationID, found.CorrelationID)
	s.Equal(saga.OrderID, found.OrderID)
	s.Equal(domain.SagaStatusStarted, found.Status)
	s.Equal(domain.StepOrderCreated, found.CurrentStep)
	s.Equal([]domain.SagaStep{domain.StepOrderCreated}, found.CompletedSteps)
	s.Equal("customer-1", found.Data.CustomerID)
	s.True(found.Data.TotalAmount.Equal(decimal.RequireFromString("3150.00")))
	s.Len(found.Data.Items, 1)

	byOrder, err := s.SagaRepo.FindByOrderID(s.Ctx, saga.OrderID)
	s.Require().NoError(err)
	s.Equal(found.ID, byOrder.ID)
}

func (s *IntegrationTestSuite) TestCreateDuplicateCorrelationID() {
	saga := s.newSaga()
	s.Require().NoError(s.SagaRepo.Create(s.Ctx, saga))

	duplicate := domain.NewInstance(saga.CorrelationID, uuid.New())
	err := s.SagaRepo.Create(s.Ctx, duplicate)
	s.Require().ErrorIs(err, repository.ErrSagaAlreadyExists)
}

func (s *IntegrationTestSuite) TestFindUnknownSaga() {
	_, err := s.SagaRepo.FindByCorrelationID(s.Ctx, uuid.New())
	s.Require().ErrorIs(err, repository.ErrSagaNotFound)

	_, err = s.SagaRepo.FindByOrderID(s.Ctx, uuid.New())
	s.Require().ErrorIs(err, repository.ErrSagaNotFound)
}

func (s *IntegrationTestSuite) TestUpdatePersistsStateAndBumpsLockVersion() {
	saga := s.newSaga()
	s.Require().NoError(s.SagaRepo.Create(s.Ctx, saga))

	saga.Status = domain.SagaStatusPaymentAuthorized
	saga.CurrentStep = domain.StepPaymentProcessing
	saga.AddCompletedStep(domain.StepPaymentProcessing)
	saga.Data.PaymentID = uuid.New()

	s.Require().NoError(s.SagaRepo.Update(s.Ctx, saga))
	s.Require().EqualValues(2, saga.LockVersion)

	found, err := s.SagaRepo.FindByCorrelationID(s.Ctx, saga.CorrelationID)
	s.Require().NoError(err)
	s.Equal(domain.SagaStatusPaymentAuthorized, found.Status)
	s.Equal(saga.Data.PaymentID, found.Data.PaymentID)
	s.EqualValues(2, found.LockVersion)
}

func (s *IntegrationTestSuite) TestConcurrentUpdateLosesOptimisticLock() {
	saga := s.newSaga()
	s.Require().NoError(s.SagaRepo.Create(s.Ctx, saga))

	first, err := s.SagaRepo.FindByCorrelationID(s.Ctx, saga.CorrelationID)
	s.Require().NoError(err)
	second, err := s.SagaRepo.FindByCorrelationID(s.Ctx, saga.CorrelationID)
	s.Require().NoError(err)

	first.Status = domain.SagaStatusPaymentPending
	s.Require().NoError(s.SagaRepo.Update(s.Ctx, first))

	second.Status = domain.SagaStatusCompensating
	err = s.SagaRepo.Update(s.Ctx, second)
	s.Require().ErrorIs(err, repository.ErrConcurrentUpdate)

	found, err := s.SagaRepo.FindByCorrelationID(s.Ctx, saga.CorrelationID)
	s.Require().NoError(err)
	s.Equal(domain.SagaStatusPaymentPending, found.Status)
}

func (s *IntegrationTestSuite) TestFindTimedOutHonorsCutoffAndStatus() {
	stuck := s.newSaga()
	s.Require().NoError(s.SagaRepo.Create(s.Ctx, stuck))
	stuck.Status = domain.SagaStatusPaymentPending
	s.Require().NoError(s.SagaRepo.Update(s.Ctx, stuck))

	fresh := s.newSaga()
	s.Require().NoError(s.SagaRepo.Create(s.Ctx, fresh))
	fresh.Status = domain.SagaStatusPaymentPending
	s.Require().NoError(s.SagaRepo.Update(s.Ctx, fresh))

	completed := s.newSaga()
	s.Require().NoError(s.SagaRepo.Create(s.Ctx, completed))
	completed.Status = domain.SagaStatusCompleted
	s.Require().NoError(s.SagaRepo.Update(s.Ctx, completed))

	old := time.Now().UTC().Add(-time.Hour)
	_, err := s.DbPool.Exec(s.Ctx,
		"UPDATE saga_instance SET updated_at = $1 WHERE correlation_id IN ($2, $3)",
		old, stuck.CorrelationID, completed.CorrelationID)
	s.Require().NoError(err)

	cutoff := time.Now().UTC().Add(-15 * time.Minute)
	timedOut, err := s.SagaRepo.FindTimedOut(s.Ctx, domain.PendingStatuses(), cutoff)
	s.Require().NoError(err)

	s.Require().Len(timedOut, 1)
	s.Equal(stuck.CorrelationID, timedOut[0].CorrelationID)
}

func (s *IntegrationTestSuite) TestFindRetryableExcludesExhaustedSagas() {
	retryable := s.newSaga()
	s.Require().NoError(s.SagaRepo.Create(s.Ctx, retryable))
	retryable.Status = domain.SagaStatusFailed
	retryable.RetryCount = 1
	s.Require().NoError(s.SagaRepo.Update(s.Ctx, retryable))

	exhausted := s.newSaga()
	s.Require().NoError(s.SagaRepo.Create(s.Ctx, exhausted))
	exhausted.Status = domain.SagaStatusFailed
	exhausted.RetryCount = 3
	s.Require().NoError(s.SagaRepo.Update(s.Ctx, exhausted))

	found, err := s.SagaRepo.FindRetryable(s.Ctx, 3)
	s.Require().NoError(err)

	s.Require().Len(found, 1)
	s.Equal(retryable.CorrelationID, found[0].CorrelationID)
}
