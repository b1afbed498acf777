package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/example/payhero/internal/services"
)

// statusFor maps service error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidRequest), errors.Is(err, services.ErrMalformedCallback):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrUnauthorized):
		return fiber.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrGateway):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// toFiberError keeps internal detail out of responses except for client errors.
func toFiberError(err error) *fiber.Error {
	status := statusFor(err)
	switch status {
	case fiber.StatusBadRequest:
		return fiber.NewError(status, err.Error())
	case fiber.StatusForbidden:
		return fiber.NewError(status, "forbidden")
	case fiber.StatusNotFound:
		return fiber.NewError(status, "payment not found")
	case fiber.StatusBadGateway:
		return fiber.NewError(status, "failed to initiate payment")
	default:
		return fiber.NewError(status, "internal error")
	}
}

// ErrorHandler renders every error as {"error": message}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	} else {
		log.Errorw("[HTTP] unhandled error", "method", c.Method(), "path", c.Path(), "error", err)
	}

	return c.Status(code).JSON(fiber.Map{"error": message})
}
