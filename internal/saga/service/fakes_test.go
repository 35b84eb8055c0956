package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/saga/domain"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/saga/repository"
	shared "github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/pkg/domain"
	"github.com/google/uuid"
)

// fakeSagaRepo is an in-memory SagaRepository with the same optimistic
// locking semantics as the postgres implementation: reads hand out copies
// and Update fails with ErrConcurrentUpdate on a stale lock version.
var errStorageDown = errors.New("write: connection reset by peer")

type fakeSagaRepo struct {
	mu     sync.Mutex
	nextID int64
	sagas  map[uuid.UUID]*domain.Instance

	// failAt counts down Update calls; when it hits zero the call is
	// rejected, simulating the process dying before a write lands.
	failAt int
}

func newFakeSagaRepo() *fakeSagaRepo {
	return &fakeSagaRepo{sagas: make(map[uuid.UUID]*domain.Instance)}
}

func copyInstance(saga *domain.Instance) *domain.Instance {
	clone := *saga
	clone.CompletedSteps = append([]domain.SagaStep(nil), saga.CompletedSteps...)
	clone.Data.Items = append([]shared.OrderItem(nil), saga.Data.Items...)
	clone.Data.ReservationItems = append([]shared.ReservedItem(nil), saga.Data.ReservationItems...)
	if saga.CompletedAt != nil {
		at := *saga.CompletedAt
		clone.CompletedAt = &at
	}

	return &clone
}

func (f *fakeSagaRepo) Create(_ context.Context, instance *domain.Instance) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.sagas[instance.CorrelationID]; exists {
		return repository.ErrSagaAlreadyExists
	}

	f.nextID++
	instance.ID = f.nextID
	instance.LockVersion = 1
	f.sagas[instance.CorrelationID] = copyInstance(instance)

	return nil
}

func (f *fakeSagaRepo) FindByCorrelationID(_ context.Context, correlationID uuid.UUID) (*domain.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	saga, ok := f.sagas[correlationID]
	if !ok {
		return nil, repository.ErrSagaNotFound
	}

	return copyInstance(saga), nil
}

func (f *fakeSagaRepo) FindByOrderID(_ context.Context, orderID uuid.UUID) (*domain.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, saga := range f.sagas {
		if saga.OrderID == orderID {
			return copyInstance(saga), nil
		}
	}

	return nil, repository.ErrSagaNotFound
}

// failUpdate arms the repo to reject the nth Update call from now.
func (f *fakeSagaRepo) failUpdate(nth int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failAt = nth
}

func (f *fakeSagaRepo) Update(_ context.Context, instance *domain.Instance) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failAt > 0 {
		f.failAt--
		if f.failAt == 0 {
			return errStorageDown
		}
	}

	stored, ok := f.sagas[instance.CorrelationID]
	if !ok || stored.LockVersion != instance.LockVersion {
		return repository.ErrConcurrentUpdate
	}

	instance.UpdatedAt = time.Now().UTC()
	instance.LockVersion++
	f.sagas[instance.CorrelationID] = copyInstance(instance)

	return nil
}

func (f *fakeSagaRepo) FindTimedOut(_ context.Context, statuses []domain.SagaStatus, before time.Time) ([]*domain.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []*domain.Instance
	for _, saga := range f.sagas {
		for _, status := range statuses {
			if saga.Status == status && saga.UpdatedAt.Before(before) {
				result = append(result, copyInstance(saga))
				break
			}
		}
	}

	return result, nil
}

func (f *fakeSagaRepo) FindRetryable(_ context.Context, maxRetries int) ([]*domain.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []*domain.Instance
	for _, saga := range f.sagas {
		if saga.Status == domain.SagaStatusFailed && saga.RetryCount < maxRetries {
			result = append(result, copyInstance(saga))
		}
	}

	return result, nil
}

// touch rewrites a stored saga's timestamp, bypassing the lock, so sweep
// tests can age instances.
func (f *fakeSagaRepo) touch(correlationID uuid.UUID, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if saga, ok := f.sagas[correlationID]; ok {
		saga.UpdatedAt = at
	}
}

type producedMessage struct {
	Topic string
	Key   string
	Event string
	Raw   json.RawMessage
}

type fakeProducer struct {
	mu       sync.Mutex
	messages []producedMessage
}

func (f *fakeProducer) ProduceMessage(_ context.Context, topic string, key string, message interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	envelope, ok := message.(*shared.EventEnvelope)
	if !ok {
		raw, err := json.Marshal(message)
		if err != nil {
			return err
		}

		f.messages = append(f.messages, producedMessage{Topic: topic, Key: key, Raw: raw})

		return nil
	}

	f.messages = append(f.messages, producedMessage{
		Topic: topic,
		Key:   key,
		Event: envelope.Event,
		Raw:   envelope.Payload,
	})

	return nil
}

func (f *fakeProducer) byEvent(event string) []producedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []producedMessage
	for _, msg := range f.messages {
		if msg.Event == event {
			result = append(result, msg)
		}
	}

	return result
}
