package types

import (
	"time"

	"gorm.io/gorm"
)

// InitialBalance is the starting balance in dollars for new accounts.
const InitialBalance = 10000.0

type User struct {
	gorm.Model   `json:"-"`
	UserID       string    `gorm:"uniqueIndex" json:"user_id"`
	Username     string    `gorm:"uniqueIndex" json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Balance      float64   `json:"balance"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Transaction is a ledger entry for a balance change: trade debit/credit,
// settlement payout, or exact-hit refund.
type Transaction struct {
	gorm.Model    `json:"-"`
	TransactionID string    `gorm:"uniqueIndex" json:"transaction_id"`
	UserID        string    `gorm:"index" json:"user_id"`
	Type          string    `json:"type"` // trade_buy, trade_sell, settlement
	Amount        float64   `json:"amount"`
	PropID        string    `json:"prop_id,omitempty"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
