package http

import (
	"github.com/gofiber/fiber/v2"
)

func NewRouter(handler *SagaHandler) *fiber.App {
	app := fiber.New()

	api := app.Group("/api/v1")

	sagas := api.Group("/sagas")
	sagas.Get("/order/:orderId", handler.GetByOrderID)
	sagas.Get("/:correlationId", handler.GetByCorrelationID)

	return app
}
