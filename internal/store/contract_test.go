package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/example/payhero/internal/models"
	"github.com/example/payhero/internal/store"
)

var baseTime = time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

func newIntent(ref, userID, amount string, createdAt time.Time) *models.PaymentIntent {
	intent := &models.PaymentIntent{
		AccountReference: ref,
		UserID:           userID,
		Amount:           decimal.RequireFromString(amount),
		Phone:            "0712345678",
		Status:           models.PaymentStatusPending,
	}
	intent.Touch(createdAt)
	return intent
}

// markPaid credits a pending intent; paid intents are left alone.
func markPaid(now time.Time) store.SettleFunc {
	return func(intent models.PaymentIntent, balance models.BalanceEntry) (*store.Settlement, error) {
		if intent.IsPaid() {
			return nil, nil
		}
		intent.Status = models.PaymentStatusPaid
		intent.PaidAt = &now
		intent.UpdatedAt = now
		balance.Amount = balance.Amount.Add(intent.Amount)
		balance.LastUpdated = now
		return &store.Settlement{Intent: intent, Balance: balance}, nil
	}
}

func runStoreContract(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("create and get", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()

		require.NoError(t, st.CreateIntent(ctx, newIntent("dep-a", "u1", "100.50", baseTime)))
		got, err := st.GetIntent(ctx, "dep-a")
		require.NoError(t, err)
		assert.Equal(t, "u1", got.UserID)
		assert.True(t, got.Amount.Equal(decimal.RequireFromString("100.50")))
		assert.Equal(t, models.PaymentStatusPending, got.Status)
		assert.Nil(t, got.ProviderRequestID)
		assert.Nil(t, got.PaidAt)

		err = st.CreateIntent(ctx, newIntent("dep-a", "u2", "1", baseTime))
		assert.True(t, errors.Is(err, store.ErrDuplicateReference), "got %v", err)

		_, err = st.GetIntent(ctx, "dep-missing")
		assert.True(t, errors.Is(err, store.ErrIntentNotFound))
	})

	t.Run("update guards", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		require.NoError(t, st.CreateIntent(ctx, newIntent("dep-a", "u1", "10", baseTime)))

		applied, err := st.UpdateIntent(ctx, "dep-a", store.IntentPatch{
			ProviderRequestID: "req-1",
			ProviderPayload:   datatypes.JSON(`{"request_id":"req-1"}`),
			UpdatedAt:         baseTime.Add(time.Second),
			OnlyFrom:          []models.PaymentStatus{models.PaymentStatusPending},
		})
		require.NoError(t, err)
		assert.True(t, applied)

		got, err := st.GetIntent(ctx, "dep-a")
		require.NoError(t, err)
		assert.Equal(t, "req-1", *got.ProviderRequestID)
		assert.Equal(t, models.PaymentStatusPending, got.Status)
		assert.JSONEq(t, `{"request_id":"req-1"}`, string(got.ProviderPayload))

		_, err = st.Settle(ctx, "dep-a", markPaid(baseTime.Add(2*time.Second)))
		require.NoError(t, err)

		applied, err = st.UpdateIntent(ctx, "dep-a", store.IntentPatch{
			Status:    models.PaymentStatusFailed,
			UpdatedAt: baseTime.Add(3 * time.Second),
			NotFrom:   []models.PaymentStatus{models.PaymentStatusPaid},
		})
		require.NoError(t, err)
		assert.False(t, applied)

		applied, err = st.UpdateIntent(ctx, "dep-a", store.IntentPatch{
			Status:    models.PaymentStatusError,
			UpdatedAt: baseTime.Add(3 * time.Second),
			OnlyFrom:  []models.PaymentStatus{models.PaymentStatusPending},
		})
		require.NoError(t, err)
		assert.False(t, applied)

		got, err = st.GetIntent(ctx, "dep-a")
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusPaid, got.Status)

		_, err = st.UpdateIntent(ctx, "dep-missing", store.IntentPatch{Status: models.PaymentStatusFailed, UpdatedAt: baseTime})
		assert.True(t, errors.Is(err, store.ErrIntentNotFound))
	})

	t.Run("settle credits once", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		require.NoError(t, st.CreateIntent(ctx, newIntent("dep-a", "u1", "100", baseTime)))

		balance, err := st.GetBalance(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, balance.Amount.IsZero())

		applied, err := st.Settle(ctx, "dep-a", markPaid(baseTime.Add(time.Minute)))
		require.NoError(t, err)
		assert.True(t, applied)

		applied, err = st.Settle(ctx, "dep-a", markPaid(baseTime.Add(2*time.Minute)))
		require.NoError(t, err)
		assert.False(t, applied)

		got, err := st.GetIntent(ctx, "dep-a")
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusPaid, got.Status)
		require.NotNil(t, got.PaidAt)
		assert.True(t, got.PaidAt.Equal(baseTime.Add(time.Minute)))

		balance, err = st.GetBalance(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, balance.Amount.Equal(decimal.NewFromInt(100)), balance.Amount.String())
	})

	t.Run("settle error rolls back", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		require.NoError(t, st.CreateIntent(ctx, newIntent("dep-a", "u1", "100", baseTime)))

		boom := errors.New("boom")
		applied, err := st.Settle(ctx, "dep-a", func(models.PaymentIntent, models.BalanceEntry) (*store.Settlement, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)
		assert.False(t, applied)

		got, err := st.GetIntent(ctx, "dep-a")
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusPending, got.Status)

		_, err = st.Settle(ctx, "dep-missing", markPaid(baseTime))
		assert.True(t, errors.Is(err, store.ErrIntentNotFound))
	})

	t.Run("settle keeps identity fields", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		require.NoError(t, st.CreateIntent(ctx, newIntent("dep-a", "u1", "100", baseTime)))

		_, err := st.Settle(ctx, "dep-a", func(intent models.PaymentIntent, balance models.BalanceEntry) (*store.Settlement, error) {
			settlement, err := markPaid(baseTime.Add(time.Minute))(intent, balance)
			settlement.Intent.Amount = decimal.NewFromInt(999)
			return settlement, err
		})
		require.NoError(t, err)

		got, err := st.GetIntent(ctx, "dep-a")
		require.NoError(t, err)
		assert.True(t, got.Amount.Equal(decimal.NewFromInt(100)))
	})

	t.Run("concurrent settle of one intent", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		require.NoError(t, st.CreateIntent(ctx, newIntent("dep-a", "u1", "100", baseTime)))

		const workers = 16
		var wg sync.WaitGroup
		var mu sync.Mutex
		credited := 0
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				applied, err := st.Settle(ctx, "dep-a", markPaid(baseTime.Add(time.Minute)))
				assert.NoError(t, err)
				if applied {
					mu.Lock()
					credited++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, credited)
		balance, err := st.GetBalance(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, balance.Amount.Equal(decimal.NewFromInt(100)), balance.Amount.String())
	})

	t.Run("concurrent settle of many intents for one user", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		const intents = 10
		for i := 0; i < intents; i++ {
			require.NoError(t, st.CreateIntent(ctx, newIntent(fmt.Sprintf("dep-%d", i), "u1", "10.25", baseTime)))
		}

		var wg sync.WaitGroup
		for i := 0; i < intents; i++ {
			wg.Add(1)
			go func(ref string) {
				defer wg.Done()
				_, err := st.Settle(ctx, ref, markPaid(baseTime.Add(time.Minute)))
				assert.NoError(t, err)
			}(fmt.Sprintf("dep-%d", i))
		}
		wg.Wait()

		balance, err := st.GetBalance(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, balance.Amount.Equal(decimal.RequireFromString("102.50")), balance.Amount.String())
	})

	t.Run("list intents", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			require.NoError(t, st.CreateIntent(ctx, newIntent(fmt.Sprintf("dep-u1-%d", i), "u1", "1", baseTime.Add(time.Duration(i)*time.Minute))))
		}
		require.NoError(t, st.CreateIntent(ctx, newIntent("dep-u2-0", "u2", "1", baseTime)))
		_, err := st.Settle(ctx, "dep-u1-4", markPaid(baseTime.Add(time.Hour)))
		require.NoError(t, err)

		items, total, err := st.ListIntents(ctx, store.IntentFilter{UserID: "u1", Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		require.Len(t, items, 2)
		assert.Equal(t, "dep-u1-4", items[0].AccountReference)
		assert.Equal(t, "dep-u1-3", items[1].AccountReference)

		items, _, err = st.ListIntents(ctx, store.IntentFilter{UserID: "u1", Limit: 2, Offset: 4})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "dep-u1-0", items[0].AccountReference)

		items, total, err = st.ListIntents(ctx, store.IntentFilter{
			Status:        models.PaymentStatusPending,
			CreatedBefore: baseTime.Add(2 * time.Minute),
			OldestFirst:   true,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, items, 3)
		assert.Equal(t, "dep-u1-0", items[0].AccountReference)
		assert.Equal(t, "dep-u2-0", items[1].AccountReference)
		assert.Equal(t, "dep-u1-1", items[2].AccountReference)

		items, total, err = st.ListIntents(ctx, store.IntentFilter{UserID: "u1", Status: models.PaymentStatusPaid})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, "dep-u1-4", items[0].AccountReference)
	})
}
