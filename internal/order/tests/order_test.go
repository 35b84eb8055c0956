package tests

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/order/domain"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/order/domain/valueobject"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/order/repository"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/order/service"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/outbox"
	shared "github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/pkg/domain"
	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *IntegrationTestSuite) createOrderRequest() *service.CreateOrderRequest {
	return &service.CreateOrderRequest{
		CustomerID: "customer-1",
		Items: []service.CreateOrderItem{
			{ProductID: "SKU-1", ProductName: "Notebook", Quantity: 2, UnitPrice: decimal.RequireFromString("1500.00")},
			{ProductID: "SKU-2", ProductName: "Mouse", Quantity: 1, UnitPrice: decimal.RequireFromString("150.00")},
		},
	}
}

func (s *IntegrationTestSuite) TestCreateOrderWritesEventAndOutboxTogether() {
	orderID, err := s.OrderService.CreateOrder(s.Ctx, s.createOrderRequest())
	s.Require().NoError(err)
	s.Require().NotEqual(uuid.Nil, orderID)

	s.Equal(1, s.CountRows("events"))
	s.Equal(1, s.CountRows("outbox"))

	var eventData, outboxPayload []byte
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx,
		"SELECT event_data FROM events WHERE aggregate_id = $1", orderID).Scan(&eventData))
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx,
		"SELECT payload FROM outbox WHERE aggregate_id = $1", orderID).Scan(&outboxPayload))

	var stored, mirrored shared.OrderCreatedEvent
	s.Require().NoError(json.Unmarshal(eventData, &stored))
	s.Require().NoError(json.Unmarshal(outboxPayload, &mirrored))

	s.Equal(orderID, stored.OrderID)
	s.Equal(stored.CorrelationID, mirrored.CorrelationID)
	s.True(stored.TotalAmount.Equal(decimal.RequireFromString("3150.00")))
	s.Equal(1, stored.Version)
}

func (s *IntegrationTestSuite) TestCreateOrderRejectsInvalidRequest() {
	_, err := s.OrderService.CreateOrder(s.Ctx, &service.CreateOrderRequest{
		CustomerID: "customer-1",
		Items: []service.CreateOrderItem{
			{ProductID: "SKU-1", ProductName: "Notebook", Quantity: 0, UnitPrice: decimal.NewFromInt(10)},
		},
	})
	s.Require().ErrorIs(err, valueobject.ErrValidation)

	s.Equal(0, s.CountRows("events"))
	s.Equal(0, s.CountRows("outbox"))
}

func (s *IntegrationTestSuite) TestDualWriteRollsBackTogether() {
	orderID := uuid.New()
	correlationID := uuid.New()

	tx, err := s.DbPool.Begin(s.Ctx)
	s.Require().NoError(err)

	stored := &repository.StoredEvent{
		AggregateID:   orderID,
		EventType:     shared.EventOrderCreated,
		EventData:     []byte(`{"order_id":"` + orderID.String() + `"}`),
		CorrelationID: correlationID,
		CausationID:   correlationID,
		Version:       1,
		CreatedAt:     time.Now().UTC(),
	}
	s.Require().NoError(s.EventStore.SaveEvent(s.Ctx, tx, stored))

	record := &outbox.Record{
		AggregateID:   orderID,
		AggregateType: "Order",
		EventType:     shared.EventOrderCreated,
		Payload:       stored.EventData,
		CorrelationID: correlationID,
		CausationID:   correlationID,
		Version:       1,
		CreatedAt:     stored.CreatedAt,
	}
	s.Require().NoError(s.OutboxRepo.SaveRecord(s.Ctx, tx, record))

	s.Require().NoError(tx.Rollback(s.Ctx))

	s.Equal(0, s.CountRows("events"))
	s.Equal(0, s.CountRows("outbox"))
}

func (s *IntegrationTestSuite) TestGetOrderReplaysHistory() {
	orderID, err := s.OrderService.CreateOrder(s.Ctx, s.createOrderRequest())
	s.Require().NoError(err)

	order, err := s.OrderService.GetOrder(s.Ctx, orderID)
	s.Require().NoError(err)

	s.Equal(orderID, order.ID())
	s.Equal(domain.OrderStatusPending, order.Status())
	s.Equal(1, order.Version())
	s.Equal("3150.00 BRL", order.TotalAmount().String())
	s.Len(order.Items(), 2)
}

func (s *IntegrationTestSuite) TestGetOrderUnknownID() {
	_, err := s.OrderService.GetOrder(s.Ctx, uuid.New())
	s.Require().ErrorIs(err, repository.ErrOrderNotFound)
}

func (s *IntegrationTestSuite) TestRelayPublishesOutboxRecords() {
	orderID, err := s.OrderService.CreateOrder(s.Ctx, s.createOrderRequest())
	s.Require().NoError(err)

	s.Require().Eventually(func() bool {
		var published int
		err := s.DbPool.QueryRow(s.Ctx,
			"SELECT COUNT(*) FROM outbox WHERE published = TRUE").Scan(&published)
		return err == nil && published == 1
	}, 15*time.Second, 200*time.Millisecond, "outbox record was never marked published")

	consumer, err := sarama.NewConsumer(s.KafkaBrokers, sarama.NewConfig())
	s.Require().NoError(err)
	defer func() { _ = consumer.Close() }()

	partition, err := consumer.ConsumePartition(shared.TopicOrderEvents, 0, sarama.OffsetOldest)
	s.Require().NoError(err)
	defer func() { _ = partition.Close() }()

	select {
	case msg := <-partition.Messages():
		s.Equal(orderID.String(), string(msg.Key))

		var envelope shared.EventEnvelope
		s.Require().NoError(json.Unmarshal(msg.Value, &envelope))
		s.Equal(shared.EventOrderCreated, envelope.Event)

		var event shared.OrderCreatedEvent
		s.Require().NoError(json.Unmarshal(envelope.Payload, &event))
		s.Equal(orderID, event.OrderID)
	case <-time.After(15 * time.Second):
		s.FailNow("no message arrived on order-events")
	}
}

// brokerOutage fails the first n publishes, then delegates to the real
// producer.
type brokerOutage struct {
	inner    outbox.Producer
	mu       sync.Mutex
	failures int
}

func (p *brokerOutage) ProduceMessage(ctx context.Context, topic string, key string, message interface{}) error {
	p.mu.Lock()
	if p.failures > 0 {
		p.failures--
		p.mu.Unlock()

		return errors.New("broker unavailable")
	}
	p.mu.Unlock()

	return p.inner.ProduceMessage(ctx, topic, key, message)
}

func (s *IntegrationTestSuite) TestRelayHoldsAggregateOrderAcrossFailedPublish() {
	// Stop the background relay so the batch runs below are the only ones.
	s.relayCancel()

	orderID := uuid.New()
	correlationID := uuid.New()

	tx, err := s.DbPool.Begin(s.Ctx)
	s.Require().NoError(err)

	for version, eventType := range []string{shared.EventOrderCreated, shared.EventOrderCancelled} {
		record := &outbox.Record{
			AggregateID:   orderID,
			AggregateType: "Order",
			EventType:     eventType,
			Payload:       []byte(`{"order_id":"` + orderID.String() + `"}`),
			CorrelationID: correlationID,
			CausationID:   correlationID,
			Version:       version + 1,
			CreatedAt:     time.Now().UTC(),
		}
		s.Require().NoError(s.OutboxRepo.SaveRecord(s.Ctx, tx, record))
	}

	s.Require().NoError(tx.Commit(s.Ctx))

	published := func() int {
		var n int
		s.Require().NoError(s.DbPool.QueryRow(s.Ctx,
			"SELECT COUNT(*) FROM outbox WHERE published = TRUE").Scan(&n))

		return n
	}

	flaky := &brokerOutage{inner: s.TestProducer, failures: 1}
	relay := outbox.NewRelay(s.DbPool, s.OutboxRepo, flaky, zap.NewNop(), 50, time.Second)

	// First batch: the oldest record fails to publish, so the newer record
	// of the same aggregate is held back instead of overtaking it.
	s.Require().NoError(relay.RunOnce(s.Ctx))
	s.Equal(0, published())

	// Next batch publishes both, oldest first.
	s.Require().NoError(relay.RunOnce(s.Ctx))
	s.Equal(2, published())

	consumer, err := sarama.NewConsumer(s.KafkaBrokers, sarama.NewConfig())
	s.Require().NoError(err)
	defer func() { _ = consumer.Close() }()

	partition, err := consumer.ConsumePartition(shared.TopicOrderEvents, 0, sarama.OffsetOldest)
	s.Require().NoError(err)
	defer func() { _ = partition.Close() }()

	var got []string
	deadline := time.After(15 * time.Second)
	for len(got) < 2 {
		select {
		case msg := <-partition.Messages():
			if string(msg.Key) != orderID.String() {
				continue
			}

			var envelope shared.EventEnvelope
			s.Require().NoError(json.Unmarshal(msg.Value, &envelope))
			got = append(got, envelope.Event)
		case <-deadline:
			s.FailNow("expected both aggregate events on order-events")
		}
	}

	s.Equal([]string{shared.EventOrderCreated, shared.EventOrderCancelled}, got)
}
