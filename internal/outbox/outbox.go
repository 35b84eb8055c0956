package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Record is one row of the outbox table. It is written in the same
// transaction as the matching event store row and mutated only by the relay
// flipping the published flag. Rows are never deleted by the write path.
type Record struct {
	ID            int64      `db:"id"`
	AggregateID   uuid.UUID  `db:"aggregate_id"`
	AggregateType string     `db:"aggregate_type"`
	EventType     string     `db:"event_type"`
	Payload       []byte     `db:"payload"`
	CorrelationID uuid.UUID  `db:"correlation_id"`
	CausationID   uuid.UUID  `db:"causation_id"`
	Version       int        `db:"version"`
	CreatedAt     time.Time  `db:"created_at"`
	Published     bool       `db:"published"`
	PublishedAt   *time.Time `db:"published_at"`
}

type Repository interface {
	SaveRecord(ctx context.Context, tx pgx.Tx, record *Record) error
	GetUnpublished(ctx context.Context, tx pgx.Tx, batchSize int) ([]*Record, error)
	MarkPublished(ctx context.Context, tx pgx.Tx, recordID int64) error
}

type Producer interface {
	ProduceMessage(ctx context.Context, topic string, key string, message interface{}) error
}
