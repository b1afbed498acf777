package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"

	"github.com/example/payhero/internal/metrics"
	"github.com/example/payhero/internal/models"
	"github.com/example/payhero/internal/store"
)

const maxStatusLength = 32

// CallbackOutcome describes what applying a provider result did.
type CallbackOutcome string

const (
	OutcomeCredited       CallbackOutcome = "credited"
	OutcomeAlreadyPaid    CallbackOutcome = "already_paid"
	OutcomeStatusRecorded CallbackOutcome = "status_recorded"
)

// ProviderResult is a payment result reported by PayHero, through a callback
// or a status query.
type ProviderResult struct {
	AccountReference string
	Status           string
	RequestID        string
	Payload          datatypes.JSON
}

// DepositNotifier is told about every successful credit.
type DepositNotifier interface {
	NotifyDepositCredited(n DepositNotification) error
}

// CallbackService verifies PayHero callbacks and credits each paid intent to
// its owner's balance exactly once.
type CallbackService struct {
	store    store.Store
	verifier *SignatureVerifier
	notifier DepositNotifier
	now      func() time.Time
}

// NewCallbackService returns a service that rejects every callback when
// verifier has no secret. notifier may be nil.
func NewCallbackService(st store.Store, verifier *SignatureVerifier, notifier DepositNotifier) *CallbackService {
	return &CallbackService{
		store:    st,
		verifier: verifier,
		notifier: notifier,
		now:      time.Now,
	}
}

// HandleCallback authenticates and applies a raw callback body. Nothing is
// read from or written to the store before the signature checks out.
func (s *CallbackService) HandleCallback(ctx context.Context, body []byte, signature string) (CallbackOutcome, error) {
	if !s.verifier.Verify(body, signature) {
		metrics.Callbacks.WithLabelValues("unauthorized").Inc()
		log.Warn("[PayHero] rejected callback with invalid signature")
		return "", ErrUnauthorized
	}

	result, err := ParseCallback(body)
	if err != nil {
		metrics.Callbacks.WithLabelValues("malformed").Inc()
		log.Warnw("[PayHero] malformed callback", "error", err)
		return "", err
	}
	return s.Apply(ctx, result)
}

// ParseCallback extracts the account reference, status and request id from a
// callback body.
func ParseCallback(body []byte) (ProviderResult, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil || payload == nil {
		return ProviderResult{}, fmt.Errorf("%w: body is not a JSON object", ErrMalformedCallback)
	}

	ref, ok := LookupString(payload, callbackReferencePaths)
	if !ok {
		return ProviderResult{}, fmt.Errorf("%w: no account reference", ErrMalformedCallback)
	}
	status, _ := LookupString(payload, callbackStatusPaths)
	requestID, _ := LookupString(payload, callbackRequestIDPaths)

	return ProviderResult{
		AccountReference: ref,
		Status:           status,
		RequestID:        requestID,
		Payload:          datatypes.JSON(body),
	}, nil
}

// Apply moves the referenced intent according to a provider result. It is
// safe to call any number of times, concurrently, with the same result.
func (s *CallbackService) Apply(ctx context.Context, result ProviderResult) (CallbackOutcome, error) {
	intent, err := s.store.GetIntent(ctx, result.AccountReference)
	if errors.Is(err, store.ErrIntentNotFound) {
		metrics.Callbacks.WithLabelValues("unknown_reference").Inc()
		log.Warnw("[PayHero] result for unknown account reference", "account_reference", result.AccountReference)
		return "", fmt.Errorf("%w: %s", ErrNotFound, result.AccountReference)
	}
	if err != nil {
		return "", fmt.Errorf("%w: load intent: %w", ErrStore, err)
	}

	var outcome CallbackOutcome
	switch {
	case intent.IsPaid():
		outcome = OutcomeAlreadyPaid
	case IsSuccessStatus(result.Status):
		outcome, err = s.credit(ctx, result)
	default:
		outcome, err = s.recordStatus(ctx, result)
	}
	if err != nil {
		return "", err
	}

	metrics.Callbacks.WithLabelValues(string(outcome)).Inc()
	return outcome, nil
}

func (s *CallbackService) credit(ctx context.Context, result ProviderResult) (CallbackOutcome, error) {
	decide := creditOnPaid(result, s.now())

	var settled *store.Settlement
	applied, err := s.store.Settle(ctx, result.AccountReference, func(intent models.PaymentIntent, balance models.BalanceEntry) (*store.Settlement, error) {
		st, err := decide(intent, balance)
		settled = st
		return st, err
	})
	if errors.Is(err, store.ErrIntentNotFound) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, result.AccountReference)
	}
	if err != nil {
		return "", fmt.Errorf("%w: settle: %w", ErrStore, err)
	}
	if !applied || settled == nil {
		return OutcomeAlreadyPaid, nil
	}

	amount := settled.Intent.Amount
	metrics.CreditedAmount.Add(amount.InexactFloat64())
	log.Infow("[PayHero] deposit credited",
		"account_reference", result.AccountReference,
		"user_id", settled.Intent.UserID,
		"amount", amount.StringFixed(2),
		"balance", settled.Balance.Amount.StringFixed(2),
	)
	s.notify(DepositNotification{
		AccountReference: settled.Intent.AccountReference,
		UserID:           settled.Intent.UserID,
		Phone:            settled.Intent.Phone,
		Amount:           amount,
		Balance:          settled.Balance.Amount,
	})
	return OutcomeCredited, nil
}

// creditOnPaid marks a pending intent paid and adds its amount to the
// balance. An intent that is already paid is left untouched.
func creditOnPaid(result ProviderResult, now time.Time) store.SettleFunc {
	return func(intent models.PaymentIntent, balance models.BalanceEntry) (*store.Settlement, error) {
		if intent.IsPaid() {
			return nil, nil
		}

		paidAt := now
		intent.Status = models.PaymentStatusPaid
		intent.PaidAt = &paidAt
		intent.UpdatedAt = now
		if result.RequestID != "" {
			requestID := result.RequestID
			intent.ProviderRequestID = &requestID
		}
		if len(result.Payload) > 0 {
			intent.ProviderPayload = result.Payload
		}

		balance.Amount = balance.Amount.Add(intent.Amount)
		balance.LastUpdated = now
		return &store.Settlement{Intent: intent, Balance: balance}, nil
	}
}

// recordStatus stores a non-success status. A paid intent is never moved back.
func (s *CallbackService) recordStatus(ctx context.Context, result ProviderResult) (CallbackOutcome, error) {
	applied, err := s.store.UpdateIntent(ctx, result.AccountReference, store.IntentPatch{
		Status:            normalizeStatus(result.Status),
		ProviderRequestID: result.RequestID,
		ProviderPayload:   result.Payload,
		UpdatedAt:         s.now(),
		NotFrom:           []models.PaymentStatus{models.PaymentStatusPaid},
	})
	if errors.Is(err, store.ErrIntentNotFound) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, result.AccountReference)
	}
	if err != nil {
		return "", fmt.Errorf("%w: record status: %w", ErrStore, err)
	}
	if !applied {
		return OutcomeAlreadyPaid, nil
	}

	log.Infow("[PayHero] payment status recorded", "account_reference", result.AccountReference, "status", result.Status)
	return OutcomeStatusRecorded, nil
}

func normalizeStatus(status string) models.PaymentStatus {
	status = strings.ToLower(strings.TrimSpace(strings.ToValidUTF8(status, "")))
	if status == "" {
		return models.PaymentStatusFailed
	}
	if len(status) > maxStatusLength {
		cut := maxStatusLength
		for cut > 0 && !utf8.RuneStart(status[cut]) {
			cut--
		}
		status = status[:cut]
	}
	return models.PaymentStatus(status)
}

func (s *CallbackService) notify(n DepositNotification) {
	if s.notifier == nil {
		return
	}
	go func() {
		if err := s.notifier.NotifyDepositCredited(n); err != nil {
			log.Warnw("[PayHero] deposit notification failed", "account_reference", n.AccountReference, "error", err)
		}
	}()
}

// ParseTransactionStatus turns a status query answer for accountRef into a
// ProviderResult that Apply understands.
func ParseTransactionStatus(accountRef string, resp *GatewayResponse) ProviderResult {
	status, _ := LookupString(resp.Payload, transactionStatusPaths)
	requestID, _ := LookupString(resp.Payload, callbackRequestIDPaths)
	return ProviderResult{
		AccountReference: accountRef,
		Status:           status,
		RequestID:        requestID,
		Payload:          datatypes.JSON(resp.Body),
	}
}
