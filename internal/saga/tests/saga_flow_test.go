package tests

import (
	"encoding/json"
	"time"

	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/saga/domain"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/saga/service"
	shared "github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/pkg/domain"
	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *IntegrationTestSuite) TestStartSagaPersistsAndPublishesPaymentCommand() {
	orchestrator := service.NewOrchestrator(s.SagaRepo, s.TestProducer, zap.NewNop())

	created := &shared.OrderCreatedEvent{
		OrderID:       uuid.New(),
		CustomerID:    "customer-1",
		TotalAmount:   decimal.RequireFromString("3150.00"),
		CorrelationID: uuid.New(),
		CausationID:   uuid.New(),
		Version:       1,
		Items: []shared.OrderItem{
			{ProductID: "SKU-1", ProductName: "Notebook", Quantity: 2, UnitPrice: decimal.RequireFromString("1500.00"), Subtotal: decimal.RequireFromString("3000.00")},
		},
	}

	s.Require().NoError(orchestrator.StartSaga(s.Ctx, created))

	saga, err := s.SagaRepo.FindByCorrelationID(s.Ctx, created.CorrelationID)
	s.Require().NoError(err)
	s.Equal(domain.SagaStatusPaymentPending, saga.Status)
	s.Equal(domain.StepPaymentProcessing, saga.CurrentStep)

	consumer, err := sarama.NewConsumer(s.KafkaBrokers, sarama.NewConfig())
	s.Require().NoError(err)
	defer func() { _ = consumer.Close() }()

	partition, err := consumer.ConsumePartition(shared.TopicPaymentCommands, 0, sarama.OffsetOldest)
	s.Require().NoError(err)
	defer func() { _ = partition.Close() }()

	select {
	case msg := <-partition.Messages():
		s.Equal(created.CorrelationID.String(), string(msg.Key))

		var envelope shared.EventEnvelope
		s.Require().NoError(json.Unmarshal(msg.Value, &envelope))
		s.Equal(shared.CommandProcessPayment, envelope.Event)

		var command shared.ProcessPaymentCommand
		s.Require().NoError(json.Unmarshal(envelope.Payload, &command))
		s.Equal(created.OrderID, command.OrderID)
		s.True(command.Amount.Equal(created.TotalAmount))
	case <-time.After(15 * time.Second):
		s.FailNow("no command arrived on payment-commands")
	}

	// The same delivery again is a no-op.
	s.Require().NoError(orchestrator.StartSaga(s.Ctx, created))

	found, err := s.SagaRepo.FindByCorrelationID(s.Ctx, created.CorrelationID)
	s.Require().NoError(err)
	s.Equal(domain.SagaStatusPaymentPending, found.Status)
}
