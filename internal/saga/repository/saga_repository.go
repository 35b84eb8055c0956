package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/saga/domain"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/pkg/mylogger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type SagaRepository interface {
	Create(ctx context.Context, instance *domain.Instance) error
	FindByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*domain.Instance, error)
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Instance, error)
	Update(ctx context.Context, instance *domain.Instance) error
	FindTimedOut(ctx context.Context, statuses []domain.SagaStatus, before time.Time) ([]*domain.Instance, error)
	FindRetryable(ctx context.Context, maxRetries int) ([]*domain.Instance, error)
}

type sagaRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewSagaRepository(pool *pgxpool.Pool, logger *zap.Logger) SagaRepository {
	return &sagaRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("saga_repository"),
	}
}

func (r *sagaRepo) Create(ctx context.Context, instance *domain.Instance) error {
	ctx, span := r.tracer.Start(ctx, "SagaRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("correlation_id", instance.CorrelationID.String()),
	)

	steps, data, err := marshalState(instance)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO saga_instance (correlation_id, order_id, status, current_step, completed_steps, saga_data,
			created_at, updated_at, error_message, retry_count, lock_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)
		RETURNING id, lock_version
	`

	if err := r.pool.QueryRow(
		ctx,
		query,
		instance.CorrelationID,
		instance.OrderID,
		string(instance.Status),
		string(instance.CurrentStep),
		steps,
		data,
		instance.CreatedAt,
		instance.UpdatedAt,
		instance.ErrorMessage,
		instance.RetryCount,
	).Scan(&instance.ID, &instance.LockVersion); err != nil {
		var pgError *pgconn.PgError
		if errors.As(err, &pgError) && pgError.Code == "23505" {
			return ErrSagaAlreadyExists
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to insert saga instance",
			zap.String("correlation_id", instance.CorrelationID.String()),
			zap.Error(err),
		)

		return fmt.Errorf("failed to insert saga instance: %w", err)
	}

	return nil
}

func (r *sagaRepo) FindByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*domain.Instance, error) {
	ctx, span := r.tracer.Start(ctx, "SagaRepository.FindByCorrelationID")
	defer span.End()

	span.SetAttributes(
		attribute.String("correlation_id", correlationID.String()),
	)

	query := selectColumns + ` WHERE correlation_id = $1`

	return r.queryOne(ctx, query, correlationID)
}

func (r *sagaRepo) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Instance, error) {
	ctx, span := r.tracer.Start(ctx, "SagaRepository.FindByOrderID")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID.String()),
	)

	query := selectColumns + ` WHERE order_id = $1`

	return r.queryOne(ctx, query, orderID)
}

// Update writes the instance back only if nobody else has written it since
// it was read. A lost race surfaces as ErrConcurrentUpdate and the caller
// retries its read-modify-write.
func (r *sagaRepo) Update(ctx context.Context, instance *domain.Instance) error {
	ctx, span := r.tracer.Start(ctx, "SagaRepository.Update")
	defer span.End()

	span.SetAttributes(
		attribute.String("correlation_id", instance.CorrelationID.String()),
		attribute.String("status", string(instance.Status)),
	)

	steps, data, err := marshalState(instance)
	if err != nil {
		return err
	}

	instance.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE saga_instance
		SET status = $1,
			current_step = $2,
			completed_steps = $3,
			saga_data = $4,
			updated_at = $5,
			completed_at = $6,
			error_message = $7,
			retry_count = $8,
			lock_version = lock_version + 1
		WHERE id = $9 AND lock_version = $10
	`

	tag, err := r.pool.Exec(
		ctx,
		query,
		string(instance.Status),
		string(instance.CurrentStep),
		steps,
		data,
		instance.UpdatedAt,
		instance.CompletedAt,
		instance.ErrorMessage,
		instance.RetryCount,
		instance.ID,
		instance.LockVersion,
	)
	if err != nil {
		span.RecordError(err)

		return fmt.Errorf("failed to update saga instance: %w", err)
	}

	if tag.RowsAffected() == 0 {
		mylogger.Warn(
			ctx,
			r.logger,
			"Optimistic lock conflict on saga instance",
			zap.String("correlation_id", instance.CorrelationID.String()),
			zap.Int64("lock_version", instance.LockVersion),
		)

		return ErrConcurrentUpdate
	}

	instance.LockVersion++

	return nil
}

func (r *sagaRepo) FindTimedOut(ctx context.Context, statuses []domain.SagaStatus, before time.Time) ([]*domain.Instance, error) {
	ctx, span := r.tracer.Start(ctx, "SagaRepository.FindTimedOut")
	defer span.End()

	values := make([]string, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, string(s))
	}

	query := selectColumns + ` WHERE status = ANY($1) AND updated_at < $2`

	return r.queryMany(ctx, query, values, before)
}

func (r *sagaRepo) FindRetryable(ctx context.Context, maxRetries int) ([]*domain.Instance, error) {
	ctx, span := r.tracer.Start(ctx, "SagaRepository.FindRetryable")
	defer span.End()

	query := selectColumns + ` WHERE status = $1 AND retry_count < $2`

	return r.queryMany(ctx, query, string(domain.SagaStatusFailed), maxRetries)
}

const selectColumns = `
	SELECT id, correlation_id, order_id, status, current_step, completed_steps, saga_data,
		created_at, updated_at, completed_at, error_message, retry_count, lock_version
	FROM saga_instance
`

func (r *sagaRepo) queryOne(ctx context.Context, query string, args ...any) (*domain.Instance, error) {
	row := r.pool.QueryRow(ctx, query, args...)

	instance, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSagaNotFound
		}

		return nil, fmt.Errorf("failed to query saga instance: %w", err)
	}

	return instance, nil
}

func (r *sagaRepo) queryMany(ctx context.Context, query string, args ...any) ([]*domain.Instance, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query saga instances: %w", err)
	}
	defer rows.Close()

	var instances []*domain.Instance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning saga instance: %w", err)
		}

		instances = append(instances, instance)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return instances, nil
}

func scanInstance(row pgx.Row) (*domain.Instance, error) {
	var (
		instance  domain.Instance
		status    string
		step      string
		stepsJSON []byte
		dataJSON  []byte
	)

	if err := row.Scan(
		&instance.ID,
		&instance.CorrelationID,
		&instance.OrderID,
		&status,
		&step,
		&stepsJSON,
		&dataJSON,
		&instance.CreatedAt,
		&instance.UpdatedAt,
		&instance.CompletedAt,
		&instance.ErrorMessage,
		&instance.RetryCount,
		&instance.LockVersion,
	); err != nil {
		return nil, err
	}

	instance.Status = domain.SagaStatus(status)
	instance.CurrentStep = domain.SagaStep(step)

	if len(stepsJSON) > 0 {
		if err := json.Unmarshal(stepsJSON, &instance.CompletedSteps); err != nil {
			return nil, fmt.Errorf("decoding completed steps: %w", err)
		}
	}

	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &instance.Data); err != nil {
			return nil, fmt.Errorf("decoding saga data: %w", err)
		}
	}

	return &instance, nil
}

func marshalState(instance *domain.Instance) ([]byte, []byte, error) {
	steps := instance.CompletedSteps
	if steps == nil {
		steps = []domain.SagaStep{}
	}

	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding completed steps: %w", err)
	}

	dataJSON, err := json.Marshal(instance.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding saga data: %w", err)
	}

	return stepsJSON, dataJSON, nil
}
