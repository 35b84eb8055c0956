package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	shared "github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/pkg/domain"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/pkg/mylogger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	publishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_records_published_total",
		Help: "Outbox records published to the broker and marked published.",
	})
	publishFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_publish_failures_total",
		Help: "Broker publish attempts that failed; the record stays unpublished.",
	})
)

// Relay drains unpublished outbox records to the broker. A record is marked
// published only after the broker acknowledges it, so a crash anywhere in the
// loop re-publishes the record on restart: delivery is at-least-once and
// consumers must tolerate duplicates.
type Relay struct {
	pool      *pgxpool.Pool
	repo      Repository
	producer  Producer
	logger    *zap.Logger
	breaker   *gobreaker.CircuitBreaker
	batchSize int
	interval  time.Duration
	tracer    trace.Tracer
}

func NewRelay(
	pool *pgxpool.Pool,
	repo Repository,
	producer Producer,
	logger *zap.Logger,
	batchSize int,
	interval time.Duration,
) *Relay {
	settings := gobreaker.Settings{
		Name:    "OutboxBrokerPublish",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn(
				"Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &Relay{
		pool:      pool,
		repo:      repo,
		producer:  producer,
		logger:    logger,
		breaker:   gobreaker.NewCircuitBreaker(settings),
		batchSize: batchSize,
		interval:  interval,
		tracer:    otel.Tracer("outbox-relay"),
	}
}

func (r *Relay) Start(ctx context.Context) {
	mylogger.Info(ctx, r.logger, "Starting outbox relay")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mylogger.Info(ctx, r.logger, "Outbox relay stopping")

			return
		case <-ticker.C:
			if err := r.processBatch(ctx); err != nil {
				mylogger.Error(
					ctx,
					r.logger,
					"Error processing outbox batch",
					zap.Error(err),
				)
			}
		}
	}
}

// RunOnce drains a single batch outside the ticker loop.
func (r *Relay) RunOnce(ctx context.Context) error {
	return r.processBatch(ctx)
}

func (r *Relay) processBatch(ctx context.Context) error {
	ctx, span := r.tracer.Start(ctx, "Relay.processBatch")
	defer span.End()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(cleanupCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Error(
				cleanupCtx,
				r.logger,
				"Outbox relay failed to rollback transaction",
				zap.Error(err),
			)
		}
	}()

	records, err := r.repo.GetUnpublished(ctx, tx, r.batchSize)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		return nil
	}

	mylogger.Debug(
		ctx,
		r.logger,
		"Processing outbox records",
		zap.Int("count", len(records)),
	)

	// Records come back ordered, oldest first. Once a publish for an
	// aggregate fails, its later records must wait for the next batch, or
	// that aggregate's events would reach the topic out of order.
	failedAggregates := make(map[uuid.UUID]struct{})

	for _, record := range records {
		if _, held := failedAggregates[record.AggregateID]; held {
			mylogger.Debug(
				ctx,
				r.logger,
				"Holding outbox record behind an earlier failed publish",
				zap.Int64("id", record.ID),
				zap.String("aggregate_id", record.AggregateID.String()),
			)

			continue
		}

		envelope := shared.EventEnvelope{
			Event:   record.EventType,
			Payload: json.RawMessage(record.Payload),
		}

		// Messages are keyed by aggregate id, so all events of one
		// aggregate stay on one partition and keep their order.
		_, err := r.breaker.Execute(func() (interface{}, error) {
			return nil, r.producer.ProduceMessage(
				ctx,
				topicFor(record.AggregateType),
				record.AggregateID.String(),
				envelope,
			)
		})
		if err != nil {
			publishFailuresTotal.Inc()
			failedAggregates[record.AggregateID] = struct{}{}

			mylogger.Error(
				ctx,
				r.logger,
				"Outbox relay publish failed, record stays unpublished",
				zap.Int64("id", record.ID),
				zap.Error(err),
			)

			continue
		}

		if err := r.repo.MarkPublished(ctx, tx, record.ID); err != nil {
			mylogger.Error(
				ctx,
				r.logger,
				"Outbox relay failed to mark record published",
				zap.Int64("id", record.ID),
				zap.Error(err),
			)

			return err
		}

		publishedTotal.Inc()
	}

	return tx.Commit(ctx)
}

var topicByAggregate = map[string]string{
	"Order": shared.TopicOrderEvents,
}

func topicFor(aggregateType string) string {
	if topic, ok := topicByAggregate[aggregateType]; ok {
		return topic
	}

	return shared.TopicOrderEvents
}
