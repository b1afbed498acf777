package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/example/payhero/internal/middleware"
	"github.com/example/payhero/internal/models"
	"github.com/example/payhero/internal/store"
	"github.com/example/payhero/internal/utils"
)

// PaymentHandler exposes the caller's balance and payment history.
type PaymentHandler struct {
	store store.Store
}

func NewPaymentHandler(st store.Store) *PaymentHandler {
	return &PaymentHandler{store: st}
}

// GetBalance returns the authenticated user's credited balance.
func (h *PaymentHandler) GetBalance(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	balance, err := h.store.GetBalance(c.UserContext(), userID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"user_id":      balance.UserID,
			"amount":       balance.Amount.StringFixed(2),
			"last_updated": balance.LastUpdated,
		},
	})
}

// ListPayments pages through the user's payment intents, newest first.
func (h *PaymentHandler) ListPayments(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	pg := utils.ParsePagination(c)
	intents, total, err := h.store.ListIntents(c.UserContext(), store.IntentFilter{
		UserID: userID,
		Status: models.PaymentStatus(c.Query("status")),
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       intents,
		"pagination": pg.Meta(total),
	})
}

// GetPayment returns one intent; intents of other users are reported as missing.
func (h *PaymentHandler) GetPayment(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	intent, err := h.store.GetIntent(c.UserContext(), c.Params("reference"))
	if errors.Is(err, store.ErrIntentNotFound) || (err == nil && intent.UserID != userID) {
		return fiber.NewError(fiber.StatusNotFound, "payment not found")
	}
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": intent})
}
