package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/example/payhero/internal/metrics"
	"github.com/example/payhero/internal/models"
	"github.com/example/payhero/internal/store"
)

// Amounts are stored as numeric(18,2).
var maxAmount = decimal.New(1, 16)

const (
	maxAmountExponent = 32
	maxAmountDigits   = 48
)

// acknowledgedStatuses are the gateway "status" values that mean the push was
// accepted even when no request id is returned.
var acknowledgedStatuses = map[string]struct{}{
	"queued":   {},
	"pending":  {},
	"accepted": {},
	"success":  {},
	"ok":       {},
}

const followUpWriteTimeout = 5 * time.Second

type CheckoutRequest struct {
	UserID string
	Amount string
	Phone  string
}

type CheckoutResult struct {
	AccountReference string
	ProviderResponse map[string]any
}

// CheckoutService records a pending intent and asks PayHero to push a payment
// prompt to the payer's phone.
type CheckoutService struct {
	store   store.Store
	gateway Gateway
	now     func() time.Time
	newRef  func(userID string) string
}

func NewCheckoutService(st store.Store, gateway Gateway) *CheckoutService {
	return &CheckoutService{
		store:   st,
		gateway: gateway,
		now:     time.Now,
		newRef:  NewAccountReference,
	}
}

// ParseAmount accepts a positive decimal with at most two fraction digits.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: amount is required", ErrInvalidRequest)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q is not a number", ErrInvalidRequest, raw)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	// Round and Cmp rescale to a common exponent, so bound it first.
	exp := int(amount.Exponent())
	if exp > maxAmountExponent || exp < -maxAmountExponent || len(amount.Coefficient().String()) > maxAmountDigits {
		return decimal.Zero, fmt.Errorf("%w: amount is out of range", ErrInvalidRequest)
	}
	if !amount.Equal(amount.Round(2)) {
		return decimal.Zero, fmt.Errorf("%w: amount has more than two decimal places", ErrInvalidRequest)
	}
	if amount.GreaterThanOrEqual(maxAmount) {
		return decimal.Zero, fmt.Errorf("%w: amount is too large", ErrInvalidRequest)
	}
	return amount, nil
}

// InitiateCheckout persists a pending intent before contacting PayHero, so a
// callback can never arrive for a reference the store does not know.
func (s *CheckoutService) InitiateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	userID := strings.TrimSpace(req.UserID)
	phone := strings.TrimSpace(req.Phone)
	if userID == "" || phone == "" {
		metrics.Checkouts.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: missing user_id, amount, or phone", ErrInvalidRequest)
	}
	amount, err := ParseAmount(req.Amount)
	if err != nil {
		metrics.Checkouts.WithLabelValues("invalid").Inc()
		return nil, err
	}

	ref := s.newRef(userID)
	now := s.now()
	intent := &models.PaymentIntent{
		AccountReference: ref,
		UserID:           userID,
		Amount:           amount,
		Phone:            phone,
		Status:           models.PaymentStatusPending,
	}
	intent.Touch(now)

	if err := s.store.CreateIntent(ctx, intent); err != nil {
		metrics.Checkouts.WithLabelValues("store_error").Inc()
		return nil, fmt.Errorf("%w: create intent: %w", ErrStore, err)
	}

	resp, err := s.gateway.InitiateSTKPush(ctx, STKPushRequest{
		Phone:            phone,
		Amount:           amount,
		AccountReference: ref,
		IdempotencyKey:   IdempotencyKey(ref),
	})
	var requestID string
	if err == nil {
		requestID, err = acknowledgedRequestID(resp.Payload)
	}
	if err != nil {
		metrics.Checkouts.WithLabelValues("gateway_error").Inc()
		log.Warnw("[PayHero] STK push failed", "account_reference", ref, "error", err)
		s.recordGatewayFailure(ctx, ref, err)
		return nil, fmt.Errorf("%w: %w", ErrGateway, err)
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), followUpWriteTimeout)
	defer cancel()
	applied, err := s.store.UpdateIntent(writeCtx, ref, store.IntentPatch{
		ProviderRequestID: requestID,
		ProviderPayload:   datatypes.JSON(resp.Body),
		UpdatedAt:         s.now(),
		OnlyFrom:          []models.PaymentStatus{models.PaymentStatusPending},
	})
	switch {
	case err != nil:
		// The push already went out; the callback or the sweep resolves the intent.
		log.Errorw("[PayHero] failed to record STK push response", "account_reference", ref, "error", err)
	case !applied:
		log.Infow("[PayHero] intent resolved before STK push response was recorded", "account_reference", ref)
	}

	metrics.Checkouts.WithLabelValues("accepted").Inc()
	log.Infow("[PayHero] STK push accepted", "account_reference", ref, "user_id", userID, "provider_request_id", requestID)
	return &CheckoutResult{AccountReference: ref, ProviderResponse: resp.Payload}, nil
}

// acknowledgedRequestID returns the provider request id, which may be empty
// when the gateway acknowledges the push without one.
func acknowledgedRequestID(payload map[string]any) (string, error) {
	if ok, isBool := payload["success"].(bool); isBool && !ok {
		return "", fmt.Errorf("payhero stk push rejected: %s", describePayload(payload))
	}

	requestID, hasID := LookupString(payload, ackRequestIDPaths)
	if hasID {
		return requestID, nil
	}
	if ok, _ := payload["success"].(bool); ok {
		return "", nil
	}
	if status, _ := payload["status"].(string); status != "" {
		if _, ok := acknowledgedStatuses[strings.ToLower(strings.TrimSpace(status))]; ok {
			return "", nil
		}
	}
	if code, ok := LookupString(payload, []FieldPath{{"ResponseCode"}}); ok && code == "0" {
		return "", nil
	}
	return "", fmt.Errorf("payhero stk push not acknowledged: %s", describePayload(payload))
}

func (s *CheckoutService) recordGatewayFailure(ctx context.Context, ref string, cause error) {
	detail, err := json.Marshal(map[string]string{"error": cause.Error()})
	if err != nil {
		log.Errorw("[PayHero] failed to encode gateway error", "account_reference", ref, "error", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), followUpWriteTimeout)
	defer cancel()
	if _, err := s.store.UpdateIntent(writeCtx, ref, store.IntentPatch{
		Status:          models.PaymentStatusError,
		ProviderPayload: datatypes.JSON(detail),
		UpdatedAt:       s.now(),
		OnlyFrom:        []models.PaymentStatus{models.PaymentStatusPending},
	}); err != nil {
		log.Errorw("[PayHero] failed to record gateway error", "account_reference", ref, "error", err)
	}
}

func describePayload(payload map[string]any) string {
	body, err := json.Marshal(payload)
	if err != nil {
		return "unreadable response"
	}
	return truncate(string(body), 512)
}
