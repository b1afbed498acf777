package store

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/example/payhero/internal/models"
)

// MemoryStore is a process-local Store. Settlements serialize on a single
// mutex, so it is only suitable for one instance (local runs and tests).
type MemoryStore struct {
	mu        sync.Mutex
	appID     string
	intents   map[string]*models.PaymentIntent
	balances  map[string]*models.BalanceEntry
	mutations int
}

func NewMemoryStore(appID string) *MemoryStore {
	return &MemoryStore{
		appID:    appID,
		intents:  make(map[string]*models.PaymentIntent),
		balances: make(map[string]*models.BalanceEntry),
	}
}

func (s *MemoryStore) CreateIntent(_ context.Context, intent *models.PaymentIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.intents[intent.AccountReference]; exists {
		return ErrDuplicateReference
	}
	intent.AppID = s.appID
	s.intents[intent.AccountReference] = cloneIntent(intent)
	s.mutations++
	return nil
}

func (s *MemoryStore) GetIntent(_ context.Context, accountRef string) (*models.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[accountRef]
	if !ok {
		return nil, ErrIntentNotFound
	}
	return cloneIntent(intent), nil
}

func (s *MemoryStore) UpdateIntent(_ context.Context, accountRef string, patch IntentPatch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[accountRef]
	if !ok {
		return false, ErrIntentNotFound
	}
	if len(patch.OnlyFrom) > 0 && !slices.Contains(patch.OnlyFrom, intent.Status) {
		return false, nil
	}
	if slices.Contains(patch.NotFrom, intent.Status) {
		return false, nil
	}

	if patch.Status != "" {
		intent.Status = patch.Status
	}
	if patch.ProviderRequestID != "" {
		id := patch.ProviderRequestID
		intent.ProviderRequestID = &id
	}
	if patch.ProviderPayload != nil {
		intent.ProviderPayload = slices.Clone(patch.ProviderPayload)
	}
	intent.UpdatedAt = patch.UpdatedAt
	s.mutations++
	return true, nil
}

func (s *MemoryStore) Settle(_ context.Context, accountRef string, fn SettleFunc) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[accountRef]
	if !ok {
		return false, ErrIntentNotFound
	}

	balance, ok := s.balances[intent.UserID]
	if !ok {
		balance = &models.BalanceEntry{AppID: s.appID, UserID: intent.UserID, Amount: decimal.Zero}
	}

	settlement, err := fn(*cloneIntent(intent), *balance)
	if err != nil || settlement == nil {
		return false, err
	}

	next := cloneIntent(&settlement.Intent)
	next.AccountReference = intent.AccountReference
	next.AppID = intent.AppID
	next.UserID = intent.UserID
	next.Amount = intent.Amount
	next.Phone = intent.Phone
	next.CreatedAt = intent.CreatedAt
	s.intents[accountRef] = next

	s.balances[intent.UserID] = &models.BalanceEntry{
		AppID:       s.appID,
		UserID:      intent.UserID,
		Amount:      settlement.Balance.Amount,
		LastUpdated: settlement.Balance.LastUpdated,
	}
	s.mutations++
	return true, nil
}

func (s *MemoryStore) GetBalance(_ context.Context, userID string) (*models.BalanceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if balance, ok := s.balances[userID]; ok {
		copied := *balance
		return &copied, nil
	}
	return &models.BalanceEntry{AppID: s.appID, UserID: userID, Amount: decimal.Zero}, nil
}

func (s *MemoryStore) ListIntents(_ context.Context, filter IntentFilter) ([]models.PaymentIntent, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []models.PaymentIntent
	for _, intent := range s.intents {
		if filter.UserID != "" && intent.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && intent.Status != filter.Status {
			continue
		}
		if !filter.CreatedBefore.IsZero() && !intent.CreatedAt.Before(filter.CreatedBefore) {
			continue
		}
		matched = append(matched, *cloneIntent(intent))
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].AccountReference < matched[j].AccountReference
		}
		if filter.OldestFirst {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if filter.Offset >= len(matched) {
		return []models.PaymentIntent{}, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

// Mutations counts committed writes.
func (s *MemoryStore) Mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutations
}

func cloneIntent(in *models.PaymentIntent) *models.PaymentIntent {
	out := *in
	if in.ProviderRequestID != nil {
		id := *in.ProviderRequestID
		out.ProviderRequestID = &id
	}
	if in.PaidAt != nil {
		paidAt := *in.PaidAt
		out.PaidAt = &paidAt
	}
	out.ProviderPayload = slices.Clone(in.ProviderPayload)
	return &out
}
