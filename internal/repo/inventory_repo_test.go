package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/rewards-backend/internal/domain"
)

func TestInventory_AddAndList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	t0 := time.Now().UTC()
	first := &domain.InventoryItem{AccountID: 1001, ItemName: "Knife", ItemPrice: "150", ObtainedAt: t0}
	second := &domain.InventoryItem{AccountID: 1001, ItemName: "Gloves", ItemImage: "gloves.png", ObtainedAt: t0.Add(time.Second)}
	for _, it := range []*domain.InventoryItem{second, first} {
		if err := AddInventoryItem(ctx, db, it); err != nil {
			t.Fatalf("AddInventoryItem: %v", err)
		}
		if it.ID == "" {
			t.Fatalf("expected generated id")
		}
	}

	items, err := ListInventory(ctx, db, 1001)
	if err != nil || len(items) != 2 {
		t.Fatalf("ListInventory = (%v, %v)", items, err)
	}
	if items[0].ItemName != "Knife" || items[0].ItemPrice != "150" || items[1].ItemImage != "gloves.png" {
		t.Fatalf("unexpected order or fields: %+v", items)
	}

	empty, err := ListInventory(ctx, db, 2002)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice, got (%v, %v)", empty, err)
	}
}
