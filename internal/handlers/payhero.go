package handlers

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/example/payhero/internal/services"
)

// PayHeroHandler serves the checkout and provider callback endpoints.
type PayHeroHandler struct {
	checkout  *services.CheckoutService
	callbacks *services.CallbackService
}

func NewPayHeroHandler(checkout *services.CheckoutService, callbacks *services.CallbackService) *PayHeroHandler {
	return &PayHeroHandler{checkout: checkout, callbacks: callbacks}
}

type checkoutRequest struct {
	UserID string `json:"user_id"`
	Amount any    `json:"amount"`
	Phone  string `json:"phone"`
}

// Checkout starts an STK push. The amount may be sent as a JSON number or string.
func (h *PayHeroHandler) Checkout(c *fiber.Ctx) error {
	var req checkoutRequest
	decoder := json.NewDecoder(bytes.NewReader(c.Body()))
	decoder.UseNumber()
	if err := decoder.Decode(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.checkout.InitiateCheckout(c.UserContext(), services.CheckoutRequest{
		UserID: req.UserID,
		Amount: amountString(req.Amount),
		Phone:  req.Phone,
	})
	if err != nil {
		return toFiberError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"ok":                true,
		"account_reference": result.AccountReference,
		"provider":          result.ProviderResponse,
	})
}

// Callback receives PayHero payment results. Any non-2xx answer makes
// PayHero redeliver, so only store failures are reported as 5xx.
func (h *PayHeroHandler) Callback(c *fiber.Ctx) error {
	body := append([]byte(nil), c.Body()...)

	outcome, err := h.callbacks.HandleCallback(c.UserContext(), body, c.Get(services.SignatureHeader))
	if err != nil {
		return toFiberError(err)
	}

	return c.JSON(fiber.Map{"ok": true, "outcome": outcome})
}

func amountString(v any) string {
	switch amount := v.(type) {
	case json.Number:
		return amount.String()
	case string:
		return amount
	case float64:
		return strconv.FormatFloat(amount, 'f', -1, 64)
	}
	return ""
}
