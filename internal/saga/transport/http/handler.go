package http

import (
	"errors"
	"time"

	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/saga/domain"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/saga/repository"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SagaHandler struct {
	repo   repository.SagaRepository
	logger *zap.Logger
}

func NewSagaHandler(repo repository.SagaRepository, logger *zap.Logger) *SagaHandler {
	return &SagaHandler{
		repo:   repo,
		logger: logger,
	}
}

type sagaResponse struct {
	CorrelationID  string   `json:"correlation_id"`
	OrderID        string   `json:"order_id"`
	Status         string   `json:"status"`
	CurrentStep    string   `json:"current_step"`
	CompletedSteps []string `json:"completed_steps"`
	ErrorMessage   string   `json:"error_message,omitempty"`
	RetryCount     int      `json:"retry_count"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
	CompletedAt    *string  `json:"completed_at,omitempty"`
}

func (h *SagaHandler) GetByCorrelationID(c *fiber.Ctx) error {
	correlationID, err := uuid.Parse(c.Params("correlationId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid correlation id",
		})
	}

	saga, err := h.repo.FindByCorrelationID(c.UserContext(), correlationID)

	return h.respond(c, saga, err)
}

func (h *SagaHandler) GetByOrderID(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("orderId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid order id",
		})
	}

	saga, err := h.repo.FindByOrderID(c.UserContext(), orderID)

	return h.respond(c, saga, err)
}

func (h *SagaHandler) respond(c *fiber.Ctx, saga *domain.Instance, err error) error {
	if err != nil {
		if errors.Is(err, repository.ErrSagaNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "saga not found",
			})
		}

		h.logger.Error("Failed to load saga", zap.Error(err))

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}

	steps := make([]string, 0, len(saga.CompletedSteps))
	for _, step := range saga.CompletedSteps {
		steps = append(steps, string(step))
	}

	resp := sagaResponse{
		CorrelationID:  saga.CorrelationID.String(),
		OrderID:        saga.OrderID.String(),
		Status:         string(saga.Status),
		CurrentStep:    string(saga.CurrentStep),
		CompletedSteps: steps,
		ErrorMessage:   saga.ErrorMessage,
		RetryCount:     saga.RetryCount,
		CreatedAt:      saga.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      saga.UpdatedAt.Format(time.RFC3339),
	}

	if saga.CompletedAt != nil {
		completedAt := saga.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &completedAt
	}

	return c.JSON(resp)
}
