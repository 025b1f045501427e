package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/rewards-backend/internal/domain"
)

// ReferralExists reports whether referredID has already been referred.
func ReferralExists(ctx context.Context, db *gorm.DB, referredID int64) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Referral{}).
		Where("referred_id = ?", referredID).
		Count(&n).Error
	return n > 0, err
}

// CreateReferral inserts a referral row. A second referral of the same
// account returns ErrDuplicate.
func CreateReferral(ctx context.Context, db *gorm.DB, referrerID, referredID int64) (*domain.Referral, error) {
	r := &domain.Referral{
		ID:         uuid.NewString(),
		ReferrerID: referrerID,
		ReferredID: referredID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, mapDuplicate(err)
	}
	return r, nil
}

// CountReferrals returns how many accounts referrerID has referred.
func CountReferrals(ctx context.Context, db *gorm.DB, referrerID int64) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Referral{}).
		Where("referrer_id = ?", referrerID).
		Count(&n).Error
	return n, err
}
