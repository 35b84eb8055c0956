package http

import (
	"github.com/gofiber/fiber/v2"
)

func NewRouter(handler *OrderHandler) *fiber.App {
	app := fiber.New()

	api := app.Group("/api/v1")

	orders := api.Group("/orders")
	orders.Post("/", handler.Create)
	orders.Get("/:id", handler.Get)

	return app
}
