// Package domain defines the persistence models for accounts, quest state,
// referrals, the reward ledger and inventory. These types are mapped with
// GORM and shared across the repository, service and HTTP layers.
//
// Tables reference accounts by value only; nothing cascades. Rows are removed
// exclusively by the administrative reset.
package domain

import "time"

// Account is a registered end user keyed by the Telegram user id.
//
// Fields:
//   - ID: externally assigned numeric id (never auto-incremented).
//   - Username / FirstName / LastName / PhotoURL: mutable, nullable profile data.
//     PhotoURL may hold a URL or an inline data URL.
//   - Balance: canonical virtual balance.
//   - ReferralCode: unique 8-character code generated once at creation.
//   - ReferredBy: id of the referring account; set at most once.
type Account struct {
	ID           int64     `json:"user_id"                 gorm:"primaryKey;autoIncrement:false"`
	Username     *string   `json:"username"                gorm:"type:varchar(255)"`
	FirstName    *string   `json:"first_name"              gorm:"type:varchar(255)"`
	LastName     *string   `json:"last_name"               gorm:"type:varchar(255)"`
	PhotoURL     *string   `json:"photo_url"               gorm:"type:text"`
	Balance      int64     `json:"balance"                 gorm:"not null;default:0"`
	ReferralCode string    `json:"referral_code"           gorm:"type:varchar(16);not null;uniqueIndex:ux_accounts_referral_code"`
	ReferredBy   *int64    `json:"referred_by,omitempty"   gorm:"index"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for Account.
func (Account) TableName() string { return "accounts" }

// AccountWithReferrals is an Account joined with the number of accounts it
// referred.
type AccountWithReferrals struct {
	Account
	ReferralCount int64 `json:"referral_count"`
}

// QuestState holds per-account quest counters and cooldown timestamps.
//
// Each quest kind owns a completion counter and a nullable last-claim
// timestamp. Timestamps are only written by a successful claim and never move
// backwards. Balance mirrors Account.Balance and is written by the same
// transaction that writes the account balance.
type QuestState struct {
	AccountID int64 `json:"user_id" gorm:"primaryKey;autoIncrement:false"`

	SubscribeCount     int        `json:"subscribe_count"      gorm:"not null;default:0"`
	SubscribeLastClaim *time.Time `json:"subscribe_last_claim"`

	BotNameCount     int        `json:"bot_name_count"      gorm:"not null;default:0"`
	BotNameLastClaim *time.Time `json:"bot_name_last_claim"`

	RefLinkCount     int        `json:"ref_link_count"      gorm:"not null;default:0"`
	RefLinkLastClaim *time.Time `json:"ref_link_last_claim"`

	DailyBonusCount     int        `json:"daily_bonus_count"      gorm:"not null;default:0"`
	DailyBonusLastClaim *time.Time `json:"daily_bonus_last_claim"`
	DailyBonusReward    int64      `json:"daily_bonus_reward"     gorm:"not null;default:0"`

	ReferralMilestoneCount     int        `json:"referral_milestone_count"      gorm:"not null;default:0"`
	ReferralMilestoneLastClaim *time.Time `json:"referral_milestone_last_claim"`

	ReferralCount int   `json:"referral_count" gorm:"not null;default:0"`
	Balance       int64 `json:"balance"        gorm:"not null;default:0"`
	CasesOpened   int   `json:"cases_opened"   gorm:"not null;default:0"`
	Level         int   `json:"level"          gorm:"not null;default:1"`

	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for QuestState.
func (QuestState) TableName() string { return "quest_states" }

// Referral links a referred account to its referrer. ReferredID is unique:
// an account can be referred at most once.
type Referral struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	ReferrerID int64     `json:"referrer_id" gorm:"not null;index:idx_referrals_referrer"`
	ReferredID int64     `json:"referred_id" gorm:"not null;uniqueIndex:ux_referrals_referred"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for Referral.
func (Referral) TableName() string { return "referrals" }

// Ledger entry kinds that are not quest kinds.
const (
	LedgerKindReferral   = "referral"
	LedgerKindGame       = "game"
	LedgerKindAdjustment = "adjustment"
)

// LedgerEntry is an immutable audit record of a balance-affecting event.
// Amount is signed. Entries are never updated.
type LedgerEntry struct {
	ID          string    `json:"id"          gorm:"type:char(36);primaryKey"`
	AccountID   int64     `json:"user_id"     gorm:"not null;index:idx_ledger_account_created,priority:1"`
	Amount      int64     `json:"amount"      gorm:"not null"`
	Kind        string    `json:"kind"        gorm:"type:varchar(32);not null"`
	Description string    `json:"description" gorm:"type:text;not null;default:''"`
	CreatedAt   time.Time `json:"created_at"  gorm:"index:idx_ledger_account_created,priority:2"`
}

// TableName returns the database table name for LedgerEntry.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// InventoryItem is an item obtained by an account. ItemPrice is opaque.
type InventoryItem struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	AccountID  int64     `json:"user_id"     gorm:"not null;index:idx_inventory_account"`
	ItemName   string    `json:"item_name"   gorm:"type:varchar(255);not null"`
	ItemPrice  string    `json:"item_price"  gorm:"type:varchar(64);not null;default:''"`
	ItemImage  string    `json:"item_image"  gorm:"type:text;not null;default:''"`
	ObtainedAt time.Time `json:"obtained_at" gorm:"not null"`
}

// TableName returns the database table name for InventoryItem.
func (InventoryItem) TableName() string { return "inventory_items" }

// Profile is the full view of an account used by the mini-app.
type Profile struct {
	User       AccountWithReferrals `json:"user"`
	QuestState QuestState           `json:"quest_state"`
	Inventory  []InventoryItem      `json:"inventory"`
}
