package types

import (
	"time"

	"gorm.io/gorm"
)

// Trading constants for the prop exchange.
const (
	// StandardPayout is the fixed payout in dollars for a winning contract.
	StandardPayout = 100.0

	// MaxPortfolioSize is the maximum number of contracts (absolute,
	// summed across all props) a single user may hold.
	MaxPortfolioSize = 10
)

// GameStatus is the lifecycle state of the game backing a prop contract.
// Transitions are monotonic: UPCOMING -> LIVE -> FINAL.
type GameStatus string

const (
	GameUpcoming GameStatus = "UPCOMING"
	GameLive     GameStatus = "LIVE"
	GameFinal    GameStatus = "FINAL"
)

// Rank orders statuses for monotonic transition checks. Unknown statuses
// rank below UPCOMING so they are always rejected.
func (s GameStatus) Rank() int {
	switch s {
	case GameUpcoming:
		return 1
	case GameLive:
		return 2
	case GameFinal:
		return 3
	}
	return 0
}

type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

type OrderStatus string

const (
	OrderOpen      OrderStatus = "open"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
)

// Contract is a tradeable unit on one side of a player prop outcome.
// PropID is sport-prefixed, e.g. "MLB_Judge_HITS_1.5_medium".
type Contract struct {
	gorm.Model   `json:"-"`
	PropID       string     `gorm:"uniqueIndex" json:"prop_id"`
	PlayerName   string     `json:"player_name"`
	PropType     string     `json:"prop_type"`
	Line         float64    `json:"line"`
	Difficulty   string     `json:"difficulty"` // easy, medium, hard
	Sport        string     `json:"sport"`
	GameID       string     `json:"game_id"`
	CurrentPrice float64    `json:"current_price"`
	TotalVolume  int64      `json:"total_volume"`
	GameStatus   GameStatus `json:"game_status"`
	Settled      bool       `json:"settled"`
	ResultValue  *float64   `json:"result_value,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Order is a limit order resting in or crossing a contract's book.
// Remaining tracks the unfilled quantity; an order is terminal once its
// status is filled or cancelled.
type Order struct {
	gorm.Model `json:"-"`
	OrderID    string      `gorm:"uniqueIndex" json:"order_id"`
	UserID     string      `gorm:"index" json:"user_id"`
	PropID     string      `gorm:"index" json:"prop_id"`
	Side       OrderSide   `json:"side"`
	Price      float64     `json:"price"`
	Quantity   int         `json:"quantity"`
	Remaining  int         `json:"remaining"`
	Status     OrderStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Trade records one side of an executed match. Every fill produces two
// rows, one per counterparty, sharing a TradeID prefix.
type Trade struct {
	gorm.Model     `json:"-"`
	TradeID        string    `gorm:"uniqueIndex" json:"trade_id"`
	PropID         string    `gorm:"index" json:"prop_id"`
	UserID         string    `gorm:"index" json:"user_id"`
	CounterpartyID string    `json:"counterparty_id"`
	Side           OrderSide `json:"side"`
	Price          float64   `json:"price"`
	Quantity       int       `json:"quantity"`
	Total          float64   `json:"total"`
	CreatedAt      time.Time `json:"created_at"`
}

// Position is the signed net quantity a user holds in one contract.
// Positive from net buys, negative from net sells.
type Position struct {
	gorm.Model `json:"-"`
	UserID     string    `gorm:"uniqueIndex:idx_user_prop" json:"user_id"`
	PropID     string    `gorm:"uniqueIndex:idx_user_prop" json:"prop_id"`
	Quantity   int       `json:"quantity"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PriceTick is one entry in a contract's immutable price history,
// appended on every executed match.
type PriceTick struct {
	gorm.Model `json:"-"`
	PropID     string    `gorm:"index" json:"prop_id"`
	Price      float64   `json:"price"`
	Quantity   int       `json:"quantity"`
	CreatedAt  time.Time `json:"created_at"`
}
