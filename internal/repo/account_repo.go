// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Account
// model and the single balance write path.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When an account is not found, functions return ErrNotFound.
//   - Unique violations are reported as ErrDuplicate.
//   - Other DB errors are propagated unchanged.
//
// Balance writes go through AddBalance or SetBalance only. Both update
// accounts.balance and mirror the result into quest_states.balance using the
// same handle, so callers running inside a transaction keep the two in sync.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/rewards-backend/internal/domain"
)

// ProfileFields carries optional profile values. Nil fields are left
// unchanged.
type ProfileFields struct {
	Username  *string
	FirstName *string
	LastName  *string
	PhotoURL  *string
}

// Empty reports whether no field is set.
func (p ProfileFields) Empty() bool {
	return p.Username == nil && p.FirstName == nil && p.LastName == nil && p.PhotoURL == nil
}

func (p ProfileFields) updates() map[string]any {
	m := map[string]any{}
	if p.Username != nil {
		m["username"] = *p.Username
	}
	if p.FirstName != nil {
		m["first_name"] = *p.FirstName
	}
	if p.LastName != nil {
		m["last_name"] = *p.LastName
	}
	if p.PhotoURL != nil {
		m["photo_url"] = *p.PhotoURL
	}
	return m
}

// GetAccount fetches an account by id, or ErrNotFound.
func GetAccount(ctx context.Context, db *gorm.DB, id int64) (*domain.Account, error) {
	var a domain.Account
	if err := db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// InsertAccount inserts a with ON CONFLICT DO NOTHING and reports whether a
// row was written. false with a nil error means either the id or the
// referral code already exists; callers tell the two apart by re-reading.
func InsertAccount(ctx context.Context, db *gorm.DB, a *domain.Account) (bool, error) {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = a.CreatedAt
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(a)
	if res.Error != nil {
		return false, mapDuplicate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// UpdateProfile applies the non-nil fields of p. It returns ErrNotFound if
// the account does not exist.
func UpdateProfile(ctx context.Context, db *gorm.DB, id int64, p ProfileFields) error {
	if p.Empty() {
		_, err := GetAccount(ctx, db, id)
		return err
	}
	m := p.updates()
	m["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ?", id).
		Updates(m)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetAccountWithReferralCount returns the account together with the number
// of referrals where it is the referrer.
func GetAccountWithReferralCount(ctx context.Context, db *gorm.DB, id int64) (*domain.AccountWithReferrals, error) {
	var out domain.AccountWithReferrals
	res := db.WithContext(ctx).Raw(`
		SELECT a.*, COUNT(r.id) AS referral_count
		FROM accounts a
		LEFT JOIN referrals r ON r.referrer_id = a.id
		WHERE a.id = ?
		GROUP BY a.id`, id).Scan(&out)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return &out, nil
}

// FindAccountIDByReferralCode resolves a referral code to its owner id.
func FindAccountIDByReferralCode(ctx context.Context, db *gorm.DB, code string) (int64, error) {
	var a domain.Account
	err := db.WithContext(ctx).
		Select("id").
		Where("referral_code = ?", code).
		Take(&a).Error
	if err != nil {
		return 0, err
	}
	return a.ID, nil
}

// SetReferredBy records the referrer of id unless one is already set.
// It reports whether the row changed.
func SetReferredBy(ctx context.Context, db *gorm.DB, id, referrerID int64) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ? AND referred_by IS NULL", id).
		Updates(map[string]any{"referred_by": referrerID, "updated_at": time.Now().UTC()})
	return res.RowsAffected == 1, res.Error
}

// AddBalance adds delta to the account balance and returns the new balance.
func AddBalance(ctx context.Context, db *gorm.DB, id, delta int64) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance + ?", delta),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrNotFound
	}
	return mirrorBalance(ctx, db, id)
}

// SetBalance overwrites the account balance and returns the previous value.
func SetBalance(ctx context.Context, db *gorm.DB, id, balance int64) (int64, error) {
	cur, err := GetAccount(ctx, db, id)
	if err != nil {
		return 0, err
	}
	err = db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ?", id).
		Updates(map[string]any{"balance": balance, "updated_at": time.Now().UTC()}).Error
	if err != nil {
		return 0, err
	}
	if _, err := mirrorBalance(ctx, db, id); err != nil {
		return 0, err
	}
	return cur.Balance, nil
}

// mirrorBalance copies accounts.balance into quest_states.balance, creating
// the quest state if missing, and returns the canonical balance.
func mirrorBalance(ctx context.Context, db *gorm.DB, id int64) (int64, error) {
	a, err := GetAccount(ctx, db, id)
	if err != nil {
		return 0, err
	}
	if err := EnsureQuestState(ctx, db, id, a.Balance); err != nil {
		return 0, err
	}
	err = db.WithContext(ctx).
		Model(&domain.QuestState{}).
		Where("account_id = ?", id).
		Updates(map[string]any{"balance": a.Balance, "updated_at": time.Now().UTC()}).Error
	if err != nil {
		return 0, err
	}
	return a.Balance, nil
}
