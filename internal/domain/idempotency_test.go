package domain

import (
	"testing"
	"time"
)

func TestIdempotency_Migration_UniqueScopeKey(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&Idempotency{}, &SchemaMigration{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	if !m.HasIndex(&Idempotency{}, "ux_idem_account_scope_key") {
		t.Fatalf("expected composite index ux_idem_account_scope_key")
	}

	now := time.Now().UTC()
	rec := &Idempotency{
		ID:        "id-1",
		AccountID: "1001",
		Scope:     "/api/user/:userId/quests/:kind/claim",
		Key:       "k1",
		Status:    200,
		Body:      []byte(`{"success":true}`),
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("insert valid: %v", err)
	}

	var got Idempotency
	if err := db.First(&got, "id = ?", "id-1").Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if string(got.Body) != `{"success":true}` || got.Status != 200 {
		t.Fatalf("unexpected row: %+v", got)
	}

	// Same key on another scope is fine.
	other := *rec
	other.ID, other.Scope = "id-2", "/api/user/:userId/balance"
	if err := db.Create(&other).Error; err != nil {
		t.Fatalf("insert other scope: %v", err)
	}

	// Same (account, scope, key) violates the unique index.
	dup := *rec
	dup.ID = "id-3"
	if err := db.Create(&dup).Error; err == nil {
		t.Fatalf("expected UNIQUE violation on (account_id, scope, key)")
	}
}
