package domain

import (
	"time"

	shared "github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/pkg/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SagaStatus string

const (
	SagaStatusStarted               SagaStatus = "STARTED"
	SagaStatusPaymentPending        SagaStatus = "PAYMENT_PENDING"
	SagaStatusPaymentAuthorized     SagaStatus = "PAYMENT_AUTHORIZED"
	SagaStatusInventoryPending      SagaStatus = "INVENTORY_PENDING"
	SagaStatusInventoryReserved     SagaStatus = "INVENTORY_RESERVED"
	SagaStatusShippingPending       SagaStatus = "SHIPPING_PENDING"
	SagaStatusShippingScheduled     SagaStatus = "SHIPPING_SCHEDULED"
	SagaStatusCompleted             SagaStatus = "COMPLETED"
	SagaStatusCompensating          SagaStatus = "COMPENSATING"
	SagaStatusCompensationCompleted SagaStatus = "COMPENSATION_COMPLETED"
	SagaStatusFailed                SagaStatus = "FAILED"
)

func (s SagaStatus) IsTerminal() bool {
	return s == SagaStatusCompleted || s == SagaStatusCompensationCompleted || s == SagaStatusFailed
}

// PendingStatuses are all non-terminal states: the ones spent waiting on a
// collaborator reply, plus the intermediate ones a crash can leave behind.
// The timeout sweep watches every one of them so no live saga can sit
// outside its reach.
func PendingStatuses() []SagaStatus {
	return []SagaStatus{
		SagaStatusStarted,
		SagaStatusPaymentPending,
		SagaStatusPaymentAuthorized,
		SagaStatusInventoryPending,
		SagaStatusInventoryReserved,
		SagaStatusShippingPending,
		SagaStatusShippingScheduled,
		SagaStatusCompensating,
	}
}

type SagaStep string

const (
	StepOrderCreated          SagaStep = "ORDER_CREATED"
	StepPaymentProcessing     SagaStep = "PAYMENT_PROCESSING"
	StepInventoryProcessing   SagaStep = "INVENTORY_PROCESSING"
	StepShippingProcessing    SagaStep = "SHIPPING_PROCESSING"
	StepOrderConfirmed        SagaStep = "ORDER_CONFIRMED"
	StepCompensationShipping  SagaStep = "COMPENSATION_SHIPPING"
	StepCompensationInventory SagaStep = "COMPENSATION_INVENTORY"
	StepCompensationPayment   SagaStep = "COMPENSATION_PAYMENT"
)

// SagaData is the typed bag of facts accumulated across steps and needed by
// later steps or by compensation.
type SagaData struct {
	CustomerID       string                `json:"customer_id,omitempty"`
	TotalAmount      decimal.Decimal       `json:"total_amount"`
	Items            []shared.OrderItem    `json:"items,omitempty"`
	PaymentID        uuid.UUID             `json:"payment_id,omitempty"`
	ReservationItems []shared.ReservedItem `json:"reservation_items,omitempty"`
	TrackingNumber   uuid.UUID             `json:"tracking_number,omitempty"`
}

// Instance is the durable record of one in-flight distributed transaction,
// keyed by correlation id. It is the unit of mutual exclusion: every step
// handler reads, mutates and writes it back under an optimistic version
// check. Terminal instances are kept for audit and duplicate detection.
type Instance struct {
	ID             int64      `db:"id"`
	CorrelationID  uuid.UUID  `db:"correlation_id"`
	OrderID        uuid.UUID  `db:"order_id"`
	Status         SagaStatus `db:"status"`
	CurrentStep    SagaStep   `db:"current_step"`
	CompletedSteps []SagaStep `db:"completed_steps"`
	Data           SagaData   `db:"saga_data"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
	CompletedAt    *time.Time `db:"completed_at"`
	ErrorMessage   string     `db:"error_message"`
	RetryCount     int        `db:"retry_count"`

	// LockVersion backs the optimistic read-modify-write cycle; it is bumped
	// by the repository on every successful update.
	LockVersion int64 `db:"lock_version"`
}

func NewInstance(correlationID, orderID uuid.UUID) *Instance {
	now := time.Now().UTC()

	return &Instance{
		CorrelationID: correlationID,
		OrderID:       orderID,
		Status:        SagaStatusStarted,
		CurrentStep:   StepOrderCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// AddCompletedStep records a step once; the set is append-only.
func (i *Instance) AddCompletedStep(step SagaStep) {
	if i.HasCompletedStep(step) {
		return
	}

	i.CompletedSteps = append(i.CompletedSteps, step)
}

func (i *Instance) HasCompletedStep(step SagaStep) bool {
	for _, s := range i.CompletedSteps {
		if s == step {
			return true
		}
	}

	return false
}

func (i *Instance) IncrementRetryCount() {
	i.RetryCount++
}
