package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/rewards-backend/internal/domain"
)

// AddInventoryItem inserts an item for its account. ID and ObtainedAt are
// filled when empty.
func AddInventoryItem(ctx context.Context, db *gorm.DB, item *domain.InventoryItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.ObtainedAt.IsZero() {
		item.ObtainedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(item).Error
}

// ListInventory returns all items of accountID, oldest first.
func ListInventory(ctx context.Context, db *gorm.DB, accountID int64) ([]domain.InventoryItem, error) {
	out := []domain.InventoryItem{}
	err := db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("obtained_at asc, id asc").
		Find(&out).Error
	return out, err
}
