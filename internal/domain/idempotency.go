package domain

import "time"

// Idempotency represents a recorded result of a previously processed purchase
// request, keyed by (user_id, set_id, key). It enables safe retries of
// POST /sets/{id}/purchase by returning the originally produced purchase
// without charging twice.
type Idempotency struct {
	ID         string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID     uint      `gorm:"type:INTEGER NOT NULL;uniqueIndex:ux_user_set_key,priority:1"`
	SetID      uint      `gorm:"type:INTEGER NOT NULL;uniqueIndex:ux_user_set_key,priority:2"`
	Key        string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_set_key,priority:3"`
	PurchaseID uint      `gorm:"type:INTEGER NOT NULL"`
	Status     int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt  time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
