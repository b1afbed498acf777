package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"

	"github.com/example/payhero/internal/services"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: amount must be positive", services.ErrInvalidRequest), fiber.StatusBadRequest},
		{fmt.Errorf("%w: no account reference", services.ErrMalformedCallback), fiber.StatusBadRequest},
		{services.ErrUnauthorized, fiber.StatusForbidden},
		{fmt.Errorf("%w: dep-x", services.ErrNotFound), fiber.StatusNotFound},
		{fmt.Errorf("%w: %w", services.ErrGateway, errors.New("timeout")), fiber.StatusBadGateway},
		{fmt.Errorf("%w: %w", services.ErrStore, errors.New("conn reset")), fiber.StatusInternalServerError},
		{errors.New("unexpected"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestToFiberErrorHidesInternals(t *testing.T) {
	err := toFiberError(fmt.Errorf("%w: %w", services.ErrStore, errors.New("password=hunter2")))
	assert.Equal(t, "internal error", err.Message)

	err = toFiberError(fmt.Errorf("%w: %w", services.ErrGateway, errors.New("body: secret")))
	assert.Equal(t, "failed to initiate payment", err.Message)
}

func TestAmountString(t *testing.T) {
	assert.Equal(t, "100.50", amountString(json.Number("100.50")))
	assert.Equal(t, "7", amountString("7"))
	assert.Equal(t, "2.5", amountString(2.5))
	assert.Equal(t, "", amountString(true))
	assert.Equal(t, "", amountString(nil))
}
