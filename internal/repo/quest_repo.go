package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/rewards-backend/internal/domain"
)

// QuestProgress carries the caller-owned quest state fields. Nil fields are
// left unchanged. Counters, timestamps, referral_count and the balance mirror
// are owned by the claim and referral paths and cannot be set here.
type QuestProgress struct {
	CasesOpened      *int
	Level            *int
	DailyBonusReward *int64
}

// GetQuestState fetches the quest state row of an account, or ErrNotFound.
func GetQuestState(ctx context.Context, db *gorm.DB, accountID int64) (*domain.QuestState, error) {
	var qs domain.QuestState
	if err := db.WithContext(ctx).First(&qs, "account_id = ?", accountID).Error; err != nil {
		return nil, err
	}
	return &qs, nil
}

// EnsureQuestState inserts an empty quest state for accountID if none exists.
func EnsureQuestState(ctx context.Context, db *gorm.DB, accountID, balance int64) error {
	qs := &domain.QuestState{
		AccountID: accountID,
		Balance:   balance,
		Level:     1,
		UpdatedAt: time.Now().UTC(),
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(qs).Error
}

// ClaimQuest marks a claim of kind as completed at now, provided the previous
// claim is at least cooldown old (or absent). It reports whether the row was
// updated; false means the cooldown has not elapsed, including the case where
// a concurrent claim won. extra carries additional columns to write in the
// same statement.
func ClaimQuest(ctx context.Context, db *gorm.DB, accountID int64, kind domain.QuestKind, now time.Time, cooldown time.Duration, extra map[string]any) (bool, error) {
	countCol, lastCol := kind.CountColumn(), kind.LastClaimColumn()
	now = now.UTC()

	set := map[string]any{
		countCol:     gorm.Expr(countCol + " + 1"),
		lastCol:      now,
		"updated_at": now,
	}
	for k, v := range extra {
		set[k] = v
	}

	res := db.WithContext(ctx).
		Model(&domain.QuestState{}).
		Where("account_id = ?", accountID).
		Where("("+lastCol+" IS NULL OR "+lastCol+" <= ?)", now.Add(-cooldown)).
		Updates(set)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// IncrementReferralCount bumps the referral counter of accountID, creating
// its quest state if missing.
func IncrementReferralCount(ctx context.Context, db *gorm.DB, accountID int64) error {
	if err := EnsureQuestState(ctx, db, accountID, 0); err != nil {
		return err
	}
	return db.WithContext(ctx).
		Model(&domain.QuestState{}).
		Where("account_id = ?", accountID).
		Updates(map[string]any{
			"referral_count": gorm.Expr("referral_count + 1"),
			"updated_at":     time.Now().UTC(),
		}).Error
}

// SaveQuestProgress writes the non-nil fields of p, creating the quest state
// if missing.
func SaveQuestProgress(ctx context.Context, db *gorm.DB, accountID int64, p QuestProgress) error {
	a, err := GetAccount(ctx, db, accountID)
	if err != nil {
		return err
	}
	if err := EnsureQuestState(ctx, db, accountID, a.Balance); err != nil {
		return err
	}
	m := map[string]any{"updated_at": time.Now().UTC()}
	if p.CasesOpened != nil {
		m["cases_opened"] = *p.CasesOpened
	}
	if p.Level != nil {
		m["level"] = *p.Level
	}
	if p.DailyBonusReward != nil {
		m["daily_bonus_reward"] = *p.DailyBonusReward
	}
	return db.WithContext(ctx).
		Model(&domain.QuestState{}).
		Where("account_id = ?", accountID).
		Updates(m).Error
}
