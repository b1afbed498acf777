package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"

	"github.com/example/payhero/internal/models"
)

var (
	ErrIntentNotFound     = errors.New("payment intent not found")
	ErrDuplicateReference = errors.New("duplicate account reference")
)

// IntentPatch describes a single-row update of a PaymentIntent. Zero-valued
// fields are left untouched.
type IntentPatch struct {
	Status            models.PaymentStatus
	ProviderRequestID string
	ProviderPayload   datatypes.JSON
	UpdatedAt         time.Time

	// OnlyFrom restricts the write to intents currently in one of these states.
	OnlyFrom []models.PaymentStatus
	// NotFrom skips intents currently in any of these states.
	NotFrom []models.PaymentStatus
}

// Settlement is the state an intent and its owner's balance move to together.
type Settlement struct {
	Intent  models.PaymentIntent
	Balance models.BalanceEntry
}

// SettleFunc receives the intent and balance as read inside the transaction
// and returns what they should become. A nil Settlement leaves both unchanged.
// It must not touch the store.
type SettleFunc func(intent models.PaymentIntent, balance models.BalanceEntry) (*Settlement, error)

// IntentFilter narrows ListIntents. Zero-valued fields do not filter.
type IntentFilter struct {
	UserID        string
	Status        models.PaymentStatus
	CreatedBefore time.Time
	OldestFirst   bool
	Limit         int
	Offset        int
}

// Store is the durable home of payment intents and balances.
type Store interface {
	// CreateIntent inserts a new intent. ErrDuplicateReference is returned
	// when the account reference already exists.
	CreateIntent(ctx context.Context, intent *models.PaymentIntent) error
	GetIntent(ctx context.Context, accountRef string) (*models.PaymentIntent, error)
	// UpdateIntent applies patch and reports whether the guarded write matched.
	UpdateIntent(ctx context.Context, accountRef string, patch IntentPatch) (bool, error)
	// Settle runs fn against the intent and its owner's balance under one
	// transaction, writing both or neither. It reports whether anything was written.
	Settle(ctx context.Context, accountRef string, fn SettleFunc) (bool, error)
	// GetBalance returns the user's balance, or a zero entry if none exists yet.
	GetBalance(ctx context.Context, userID string) (*models.BalanceEntry, error)
	ListIntents(ctx context.Context, filter IntentFilter) ([]models.PaymentIntent, int64, error)
}

func statusStrings(statuses []models.PaymentStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
