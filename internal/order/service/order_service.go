package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/order/domain"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/order/domain/valueobject"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/order/repository"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/outbox"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/pkg/mylogger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const aggregateTypeOrder = "Order"

type CreateOrderItem struct {
	ProductID   string          `json:"product_id" validate:"required"`
	ProductName string          `json:"product_name" validate:"required"`
	Quantity    int             `json:"quantity" validate:"required,gte=1"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type CreateOrderRequest struct {
	CustomerID string            `json:"customer_id" validate:"required"`
	Items      []CreateOrderItem `json:"items" validate:"required,min=1,dive"`
}

type OrderService interface {
	CreateOrder(ctx context.Context, req *CreateOrderRequest) (uuid.UUID, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
}

type orderService struct {
	pool       *pgxpool.Pool
	logger     *zap.Logger
	eventStore repository.EventStore
	outboxRepo outbox.Repository
	tracer     trace.Tracer
}

func NewOrderService(
	pool *pgxpool.Pool,
	logger *zap.Logger,
	eventStore repository.EventStore,
	outboxRepo outbox.Repository,
) OrderService {
	return &orderService{
		pool:       pool,
		logger:     logger,
		eventStore: eventStore,
		outboxRepo: outboxRepo,
		tracer:     otel.Tracer("order_service"),
	}
}

// CreateOrder runs the full command path: value objects, aggregate factory,
// then one transaction appending an event store row and an outbox row per
// uncommitted event. Both rows commit together or not at all.
func (s *orderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (uuid.UUID, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CreateOrder")
	defer span.End()

	correlationID := uuid.New()
	causationID := uuid.New()

	span.SetAttributes(
		attribute.String("correlation_id", correlationID.String()),
	)

	customerID, err := valueobject.NewCustomerID(req.CustomerID)
	if err != nil {
		return uuid.Nil, err
	}

	items := make([]valueobject.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		vo, err := valueobject.CreateOrderItem(item.ProductID, item.ProductName, item.Quantity, item.UnitPrice)
		if err != nil {
			return uuid.Nil, err
		}

		items = append(items, vo)
	}

	order, err := domain.CreateOrder(customerID, items, correlationID, causationID)
	if err != nil {
		return uuid.Nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		shutdownCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(shutdownCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(
				shutdownCtx,
				s.logger,
				"Error rolling back transaction",
				zap.Error(err),
			)
		}
	}()

	for _, event := range order.UncommittedEvents() {
		if err := s.persistEvent(ctx, tx, event); err != nil {
			mylogger.Error(
				ctx,
				s.logger,
				"Failed to persist event",
				zap.String("event_type", event.EventType()),
				zap.Error(err),
			)

			return uuid.Nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to commit transaction", zap.Error(err))

		return uuid.Nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	order.MarkEventsCommitted()

	mylogger.Info(
		ctx,
		s.logger,
		"Order created",
		zap.String("order_id", order.ID().String()),
		zap.String("correlation_id", correlationID.String()),
		zap.String("total_amount", order.TotalAmount().String()),
	)

	return order.ID(), nil
}

// persistEvent writes the event store row and the mirroring outbox row inside
// the caller's transaction, with identical metadata on both.
func (s *orderService) persistEvent(ctx context.Context, tx pgx.Tx, event domain.DomainEvent) error {
	payload, err := domain.ToIntegrationEvent(event)
	if err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	meta := event.Meta()

	stored := &repository.StoredEvent{
		AggregateID:   meta.AggregateID,
		EventType:     event.EventType(),
		EventData:     data,
		CorrelationID: meta.CorrelationID,
		CausationID:   meta.CausationID,
		Version:       meta.Version,
		CreatedAt:     meta.Timestamp,
	}

	if err := s.eventStore.SaveEvent(ctx, tx, stored); err != nil {
		return err
	}

	record := &outbox.Record{
		AggregateID:   meta.AggregateID,
		AggregateType: aggregateTypeOrder,
		EventType:     event.EventType(),
		Payload:       data,
		CorrelationID: meta.CorrelationID,
		CausationID:   meta.CausationID,
		Version:       meta.Version,
		CreatedAt:     meta.Timestamp,
	}

	return s.outboxRepo.SaveRecord(ctx, tx, record)
}

// GetOrder reconstructs current aggregate state from the event stream.
func (s *orderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.GetOrder")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID.String()),
	)

	stored, err := s.eventStore.GetEventsByAggregateID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	history := make([]domain.DomainEvent, 0, len(stored))
	for _, row := range stored {
		event, err := domain.FromStored(row.EventType, row.EventData, domain.EventMeta{
			AggregateID:   row.AggregateID,
			CorrelationID: row.CorrelationID,
			CausationID:   row.CausationID,
			Version:       row.Version,
			Timestamp:     row.CreatedAt,
		})
		if err != nil {
			return nil, err
		}

		history = append(history, event)
	}

	return domain.FromHistory(history)
}
