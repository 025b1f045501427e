package domain

import "time"

// Idempotency records the response of a completed unsafe request keyed by
// (account_id, scope, key). Scope is the matched route template, so the same
// key may be reused across different endpoints. A replay within the TTL
// returns Status and Body without re-executing side effects.
type Idempotency struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	AccountID string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_idem_account_scope_key,priority:1"`
	Scope     string    `gorm:"type:varchar(255);not null;uniqueIndex:ux_idem_account_scope_key,priority:2"`
	Key       string    `gorm:"type:varchar(255);not null;uniqueIndex:ux_idem_account_scope_key,priority:3"`
	Status    int       `gorm:"not null"`
	Body      []byte    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency_keys" }

// SchemaMigration records an applied schema migration version.
type SchemaMigration struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"type:varchar(255);not null"`
	AppliedAt time.Time `gorm:"not null"`
}

// TableName implements the GORM tabler interface.
func (SchemaMigration) TableName() string { return "schema_migrations" }
