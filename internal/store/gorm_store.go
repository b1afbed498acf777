package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/payhero/internal/models"
)

const settleAttempts = 3

// GormStore keeps intents and balances in Postgres through gorm.
type GormStore struct {
	db    *gorm.DB
	appID string
}

func NewGormStore(db *gorm.DB, appID string) *GormStore {
	return &GormStore{db: db, appID: appID}
}

func (s *GormStore) CreateIntent(ctx context.Context, intent *models.PaymentIntent) error {
	intent.AppID = s.appID
	if err := s.db.WithContext(ctx).Create(intent).Error; err != nil {
		if pgCode(err) == "23505" {
			return ErrDuplicateReference
		}
		return err
	}
	return nil
}

func (s *GormStore) GetIntent(ctx context.Context, accountRef string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := s.intents(s.db.WithContext(ctx), accountRef).First(&intent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIntentNotFound
		}
		return nil, err
	}
	return &intent, nil
}

func (s *GormStore) UpdateIntent(ctx context.Context, accountRef string, patch IntentPatch) (bool, error) {
	updates := map[string]any{"updated_at": patch.UpdatedAt}
	if patch.Status != "" {
		updates["status"] = string(patch.Status)
	}
	if patch.ProviderRequestID != "" {
		updates["provider_request_id"] = patch.ProviderRequestID
	}
	if patch.ProviderPayload != nil {
		updates["provider_payload"] = patch.ProviderPayload
	}

	db := s.db.WithContext(ctx)
	query := s.intents(db, accountRef)
	if len(patch.OnlyFrom) > 0 {
		query = query.Where("status IN ?", statusStrings(patch.OnlyFrom))
	}
	if len(patch.NotFrom) > 0 {
		query = query.Where("status NOT IN ?", statusStrings(patch.NotFrom))
	}

	res := query.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var count int64
	if err := s.intents(db, accountRef).Count(&count).Error; err != nil {
		return false, err
	}
	if count == 0 {
		return false, ErrIntentNotFound
	}
	return false, nil
}

// Settle locks the intent row, then the balance row, so concurrent settlements
// of the same intent serialize and the loser observes the winner's commit.
func (s *GormStore) Settle(ctx context.Context, accountRef string, fn SettleFunc) (bool, error) {
	var applied bool
	var err error
	for attempt := 1; attempt <= settleAttempts; attempt++ {
		applied, err = s.settleOnce(ctx, accountRef, fn)
		if err == nil || !isRetryable(err) {
			return applied, err
		}
	}
	return false, err
}

func (s *GormStore) settleOnce(ctx context.Context, accountRef string, fn SettleFunc) (bool, error) {
	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var intent models.PaymentIntent
		if err := s.intents(tx, accountRef).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&intent).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrIntentNotFound
			}
			return err
		}

		balance, err := s.lockBalance(tx, intent.UserID, intent.UpdatedAt)
		if err != nil {
			return err
		}

		settlement, err := fn(intent, *balance)
		if err != nil {
			return err
		}
		if settlement == nil {
			return nil
		}

		next := settlement.Intent
		if err := s.intents(tx, accountRef).Updates(map[string]any{
			"status":              string(next.Status),
			"provider_request_id": next.ProviderRequestID,
			"provider_payload":    next.ProviderPayload,
			"paid_at":             next.PaidAt,
			"updated_at":          next.UpdatedAt,
		}).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.BalanceEntry{}).
			Where("app_id = ? AND user_id = ?", s.appID, intent.UserID).
			Updates(map[string]any{
				"amount":       settlement.Balance.Amount,
				"last_updated": settlement.Balance.LastUpdated,
			}).Error; err != nil {
			return err
		}

		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// lockBalance returns the user's balance row locked for update, creating a
// zero row first when the user has never been credited.
func (s *GormStore) lockBalance(tx *gorm.DB, userID string, seenAt time.Time) (*models.BalanceEntry, error) {
	var balance models.BalanceEntry
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("app_id = ? AND user_id = ?", s.appID, userID).
		First(&balance).Error
	if err == nil {
		return &balance, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	seed := models.BalanceEntry{
		AppID:       s.appID,
		UserID:      userID,
		Amount:      decimal.Zero,
		LastUpdated: seenAt,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, err
	}

	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("app_id = ? AND user_id = ?", s.appID, userID).
		First(&balance).Error; err != nil {
		return nil, err
	}
	return &balance, nil
}

func (s *GormStore) GetBalance(ctx context.Context, userID string) (*models.BalanceEntry, error) {
	var balance models.BalanceEntry
	err := s.db.WithContext(ctx).
		Where("app_id = ? AND user_id = ?", s.appID, userID).
		First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.BalanceEntry{AppID: s.appID, UserID: userID, Amount: decimal.Zero}, nil
	}
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (s *GormStore) ListIntents(ctx context.Context, filter IntentFilter) ([]models.PaymentIntent, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.PaymentIntent{}).Where("app_id = ?", s.appID)
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if !filter.CreatedBefore.IsZero() {
		query = query.Where("created_at < ?", filter.CreatedBefore)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at desc, account_reference"
	if filter.OldestFirst {
		order = "created_at asc, account_reference"
	}
	query = query.Order(order).Offset(filter.Offset)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var intents []models.PaymentIntent
	if err := query.Find(&intents).Error; err != nil {
		return nil, 0, err
	}
	return intents, total, nil
}

func (s *GormStore) intents(db *gorm.DB, accountRef string) *gorm.DB {
	return db.Model(&models.PaymentIntent{}).
		Where("account_reference = ? AND app_id = ?", accountRef, s.appID)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// isRetryable matches serialization failures and deadlocks.
func isRetryable(err error) bool {
	switch pgCode(err) {
	case "40001", "40P01":
		return true
	}
	return false
}
