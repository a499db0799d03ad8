package settlement

import "time"

// Settlement is one user's payout record for a settled contract.
type Settlement struct {
	ID           uint      `json:"-" gorm:"primaryKey"`
	SettlementID string    `json:"settlement_id" gorm:"uniqueIndex"`
	PropID       string    `json:"prop_id" gorm:"index"`
	UserID       string    `json:"user_id" gorm:"index"`
	Quantity     int       `json:"quantity"`
	Outcome      string    `json:"outcome"`
	Payout       float64   `json:"payout"`
	CreatedAt    time.Time `json:"created_at"`
}

// Outcomes for a settled contract, decided by the actual stat against the line.
const (
	OutcomeHit      = "hit"       // actual above the line, longs collect
	OutcomeMiss     = "miss"      // actual below the line, shorts collect
	OutcomeExactHit = "exact_hit" // actual equals the line, both sides refunded
)
