package http

import (
	"errors"
	"time"

	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/order/domain"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/order/domain/valueobject"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/order/repository"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/order/service"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/pkg/mylogger"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrderHandler struct {
	service  service.OrderService
	logger   *zap.Logger
	validate *validator.Validate
}

func NewOrderHandler(service service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		service:  service,
		logger:   logger,
		validate: validator.New(),
	}
}

func (h *OrderHandler) Create(c *fiber.Ctx) error {
	input := new(service.CreateOrderRequest)

	if err := c.BodyParser(input); err != nil {
		h.logger.Warn(
			"failed to parse body in create order",
			zap.Error(err),
		)

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "error parsing body",
		})
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": utils.FormatValidationError(err),
		})
	}

	orderID, err := h.service.CreateOrder(c.UserContext(), input)
	if err != nil {
		if errors.Is(err, valueobject.ErrValidation) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		mylogger.Error(
			c.UserContext(),
			h.logger,
			"Failed to create order",
			zap.Error(err),
		)

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create order",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"order_id": orderID,
	})
}

type orderItemResponse struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Subtotal    string `json:"subtotal"`
}

type orderResponse struct {
	OrderID     string              `json:"order_id"`
	CustomerID  string              `json:"customer_id"`
	Items       []orderItemResponse `json:"items"`
	TotalAmount string              `json:"total_amount"`
	Currency    string              `json:"currency"`
	Status      string              `json:"status"`
	Version     int                 `json:"version"`
	CreatedAt   string              `json:"created_at"`
	UpdatedAt   string              `json:"updated_at"`
}

func (h *OrderHandler) Get(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid order id",
		})
	}

	order, err := h.service.GetOrder(c.UserContext(), orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "order not found",
			})
		}

		mylogger.Error(
			c.UserContext(),
			h.logger,
			"Failed to load order",
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load order",
		})
	}

	return c.JSON(toOrderResponse(order))
}

func toOrderResponse(order *domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items()))
	for _, item := range order.Items() {
		items = append(items, orderItemResponse{
			ProductID:   item.ProductID().Value(),
			ProductName: item.ProductName(),
			Quantity:    item.Quantity().Value(),
			UnitPrice:   item.UnitPrice().Amount().StringFixed(2),
			Subtotal:    item.Subtotal().Amount().StringFixed(2),
		})
	}

	return orderResponse{
		OrderID:     order.ID().String(),
		CustomerID:  order.CustomerID().Value(),
		Items:       items,
		TotalAmount: order.TotalAmount().Amount().StringFixed(2),
		Currency:    order.TotalAmount().Currency(),
		Status:      string(order.Status()),
		Version:     order.Version(),
		CreatedAt:   order.CreatedAt().UTC().Format(time.RFC3339),
		UpdatedAt:   order.UpdatedAt().UTC().Format(time.RFC3339),
	}
}
