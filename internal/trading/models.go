package trading

import (
	"time"

	"gorm.io/gorm"
)

// IdempotencyRecord maps a client-supplied Idempotency-Key to the order it
// produced, so retried submissions return the original order instead of
// placing a duplicate.
type IdempotencyRecord struct {
	gorm.Model
	IdempotencyKey string    `gorm:"uniqueIndex" json:"idempotency_key"`
	OrderID        string    `json:"order_id"`
	ExpiresAt      time.Time `json:"expires_at"`
}
