package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/pkg/mylogger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// StoredEvent is one row of the append-only events table.
type StoredEvent struct {
	ID            int64     `db:"id"`
	AggregateID   uuid.UUID `db:"aggregate_id"`
	EventType     string    `db:"event_type"`
	EventData     []byte    `db:"event_data"`
	CorrelationID uuid.UUID `db:"correlation_id"`
	CausationID   uuid.UUID `db:"causation_id"`
	Version       int       `db:"version"`
	CreatedAt     time.Time `db:"created_at"`
}

type EventStore interface {
	SaveEvent(ctx context.Context, tx pgx.Tx, event *StoredEvent) error
	GetEventsByAggregateID(ctx context.Context, aggregateID uuid.UUID) ([]*StoredEvent, error)
}

type eventStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewEventStore(pool *pgxpool.Pool, logger *zap.Logger) EventStore {
	return &eventStore{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("event_store"),
	}
}

func (r *eventStore) SaveEvent(ctx context.Context, tx pgx.Tx, event *StoredEvent) error {
	ctx, span := r.tracer.Start(ctx, "EventStore.SaveEvent")
	defer span.End()

	span.SetAttributes(
		attribute.String("aggregate_id", event.AggregateID.String()),
		attribute.String("event_type", event.EventType),
		attribute.Int("version", event.Version),
	)

	query := `
		INSERT INTO events (aggregate_id, event_type, event_data, correlation_id, causation_id, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	if err := tx.QueryRow(
		ctx,
		query,
		event.AggregateID,
		event.EventType,
		event.EventData,
		event.CorrelationID,
		event.CausationID,
		event.Version,
		event.CreatedAt,
	).Scan(&event.ID); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to insert event",
			zap.String("aggregate_id", event.AggregateID.String()),
			zap.Error(err),
		)

		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}

func (r *eventStore) GetEventsByAggregateID(ctx context.Context, aggregateID uuid.UUID) ([]*StoredEvent, error) {
	ctx, span := r.tracer.Start(ctx, "EventStore.GetEventsByAggregateID")
	defer span.End()

	span.SetAttributes(
		attribute.String("aggregate_id", aggregateID.String()),
	)

	query := `
		SELECT id, aggregate_id, event_type, event_data, correlation_id, causation_id, version, created_at
		FROM events
		WHERE aggregate_id = $1
		ORDER BY version ASC
	`

	rows, err := r.pool.Query(ctx, query, aggregateID)
	if err != nil {
		span.RecordError(err)

		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*StoredEvent
	for rows.Next() {
		var e StoredEvent
		if err := rows.Scan(
			&e.ID,
			&e.AggregateID,
			&e.EventType,
			&e.EventData,
			&e.CorrelationID,
			&e.CausationID,
			&e.Version,
			&e.CreatedAt,
		); err != nil {
			span.RecordError(err)

			return nil, fmt.Errorf("error scanning event: %w", err)
		}

		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(events) == 0 {
		return nil, ErrOrderNotFound
	}

	return events, nil
}
