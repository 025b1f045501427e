package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/rewards-backend/internal/domain"
)

// AppendLedger inserts a ledger entry. Entries are never updated.
func AppendLedger(ctx context.Context, db *gorm.DB, accountID, amount int64, kind, description string) (*domain.LedgerEntry, error) {
	e := &domain.LedgerEntry{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Amount:      amount,
		Kind:        kind,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(e).Error; err != nil {
		return nil, err
	}
	return e, nil
}

// CountLedger returns the number of ledger entries for accountID.
func CountLedger(ctx context.Context, db *gorm.DB, accountID int64) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.LedgerEntry{}).
		Where("account_id = ?", accountID).
		Count(&n).Error
	return n, err
}

// ListLedgerPage returns a page of ledger entries for accountID, newest first.
func ListLedgerPage(ctx context.Context, db *gorm.DB, accountID int64, offset, limit int) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	err := db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at desc, id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// SumLedger returns the sum of ledger amounts for accountID.
func SumLedger(ctx context.Context, db *gorm.DB, accountID int64) (int64, error) {
	var sum int64
	err := db.WithContext(ctx).
		Model(&domain.LedgerEntry{}).
		Where("account_id = ?", accountID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}
