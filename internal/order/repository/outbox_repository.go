package repository

import (
	"context"
	"fmt"

	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/outbox"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type outboxRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewOutboxRepository(pool *pgxpool.Pool, logger *zap.Logger) outbox.Repository {
	return &outboxRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("outbox_repo"),
	}
}

func (r *outboxRepo) SaveRecord(ctx context.Context, tx pgx.Tx, record *outbox.Record) error {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.SaveRecord")
	defer span.End()

	span.SetAttributes(
		attribute.String("aggregate_id", record.AggregateID.String()),
		attribute.String("event_type", record.EventType),
	)

	query := `
		INSERT INTO outbox (aggregate_id, aggregate_type, event_type, payload, correlation_id, causation_id, version, created_at, published)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE)
		RETURNING id
	`

	if err := tx.QueryRow(
		ctx,
		query,
		record.AggregateID,
		record.AggregateType,
		record.EventType,
		record.Payload,
		record.CorrelationID,
		record.CausationID,
		record.Version,
		record.CreatedAt,
	).Scan(&record.ID); err != nil {
		span.RecordError(err)

		return fmt.Errorf("failed to insert outbox record: %w", err)
	}

	return nil
}

func (r *outboxRepo) GetUnpublished(ctx context.Context, tx pgx.Tx, batchSize int) ([]*outbox.Record, error) {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.GetUnpublished")
	defer span.End()

	span.SetAttributes(
		attribute.Int("batch_size", batchSize),
	)

	query := `
		SELECT id, aggregate_id, aggregate_type, event_type, payload, correlation_id, causation_id, version, created_at
		FROM outbox
		WHERE published = FALSE
		ORDER BY created_at ASC, id ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`

	rows, err := tx.Query(ctx, query, batchSize)
	if err != nil {
		span.RecordError(err)

		return nil, fmt.Errorf("failed to query unpublished records: %w", err)
	}
	defer rows.Close()

	var records []*outbox.Record
	for rows.Next() {
		var rec outbox.Record
		if err := rows.Scan(
			&rec.ID,
			&rec.AggregateID,
			&rec.AggregateType,
			&rec.EventType,
			&rec.Payload,
			&rec.CorrelationID,
			&rec.CausationID,
			&rec.Version,
			&rec.CreatedAt,
		); err != nil {
			span.RecordError(err)

			return nil, fmt.Errorf("error scanning outbox record: %w", err)
		}

		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("result_count", len(records)),
	)

	return records, nil
}

func (r *outboxRepo) MarkPublished(ctx context.Context, tx pgx.Tx, recordID int64) error {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.MarkPublished")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("record_id", recordID),
	)

	query := `
		UPDATE outbox
		SET published = TRUE, published_at = NOW()
		WHERE id = $1
	`

	if _, err := tx.Exec(ctx, query, recordID); err != nil {
		span.RecordError(err)

		return err
	}

	return nil
}
