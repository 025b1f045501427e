package repo

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/rewards-backend/internal/domain"
)

// Migration is a single, ordered schema change.
type Migration struct {
	Version int
	Name    string
	Up      func(tx *gorm.DB) error
}

// Migrations is the ordered list of schema changes. Append only; never
// renumber an applied version.
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "core_tables",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&domain.Account{},
				&domain.QuestState{},
				&domain.Referral{},
				&domain.LedgerEntry{},
				&domain.InventoryItem{},
			)
		},
	},
	{
		Version: 2,
		Name:    "idempotency_keys",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&domain.Idempotency{})
		},
	},
	{
		Version: 3,
		Name:    "inventory_account_index",
		Up: func(tx *gorm.DB) error {
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_inventory_account_obtained
				ON inventory_items (account_id, obtained_at)`).Error
		},
	},
}

// Migrate applies every pending migration in version order, each in its own
// transaction, and returns the versions applied by this call.
func Migrate(ctx context.Context, db *gorm.DB) ([]int, error) {
	db = db.WithContext(ctx)
	if err := db.AutoMigrate(&domain.SchemaMigration{}); err != nil {
		return nil, fmt.Errorf("migrate: bookkeeping table: %w", err)
	}

	var done []int
	if err := db.Model(&domain.SchemaMigration{}).Pluck("version", &done).Error; err != nil {
		return nil, fmt.Errorf("migrate: list applied: %w", err)
	}
	seen := make(map[int]bool, len(done))
	for _, v := range done {
		seen[v] = true
	}

	pending := make([]Migration, 0, len(Migrations))
	for _, m := range Migrations {
		if !seen[m.Version] {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })

	applied := make([]int, 0, len(pending))
	for _, m := range pending {
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			return tx.Create(&domain.SchemaMigration{
				Version:   m.Version,
				Name:      m.Name,
				AppliedAt: time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return applied, fmt.Errorf("migrate: %d_%s: %w", m.Version, m.Name, err)
		}
		applied = append(applied, m.Version)
	}
	return applied, nil
}

// resetTables lists every data table cleared by ResetAll. Schema bookkeeping
// is kept.
var resetTables = []any{
	&domain.LedgerEntry{},
	&domain.InventoryItem{},
	&domain.Referral{},
	&domain.QuestState{},
	&domain.Idempotency{},
	&domain.Account{},
}

// ResetAll deletes all rows from every data table in one transaction.
func ResetAll(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range resetTables {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error; err != nil {
				return fmt.Errorf("reset %T: %w", m, err)
			}
		}
		return nil
	})
}
