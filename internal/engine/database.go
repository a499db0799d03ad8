package engine

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateOrder(order *types.Order) error {
	return d.db.Create(order).Error
}

func (d *Database) UpdateOrder(order *types.Order) error {
	return d.db.Save(order).Error
}

func (d *Database) GetOrder(orderID string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (d *Database) ListUserOrders(userID string) ([]types.Order, error) {
	var orders []types.Order
	if err := d.db.Where("user_id = ?", userID).
		Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// ListOpenOrders returns resting orders oldest-first so rehydrated books
// keep their original time priority.
func (d *Database) ListOpenOrders() ([]types.Order, error) {
	var orders []types.Order
	if err := d.db.Where("status = ?", types.OrderOpen).
		Order("created_at ASC, id ASC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (d *Database) ListPositions() ([]types.Position, error) {
	var positions []types.Position
	if err := d.db.Find(&positions).Error; err != nil {
		return nil, err
	}
	return positions, nil
}

func (d *Database) ListUserTrades(userID string, limit int) ([]types.Trade, error) {
	var trades []types.Trade
	q := d.db.Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}

// RecordFill persists everything one match touches in a single
// transaction: both order rows, a trade row per counterparty, both
// positions, and the cash legs on the users' balances.
func (d *Database) RecordFill(taker, maker *types.Order, trades []*types.Trade, positions map[string]int, propID string) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(taker).Error; err != nil {
			return err
		}
		if err := tx.Save(maker).Error; err != nil {
			return err
		}
		for _, trade := range trades {
			if err := tx.Create(trade).Error; err != nil {
				return err
			}
			delta := -trade.Total
			txType := "trade_buy"
			if trade.Side == types.SideSell {
				delta = trade.Total
				txType = "trade_sell"
			}
			if err := adjustBalance(tx, trade.UserID, delta); err != nil {
				return err
			}
			if err := tx.Create(&types.Transaction{
				TransactionID: trade.TradeID + "_txn",
				UserID:        trade.UserID,
				Type:          txType,
				Amount:        delta,
				PropID:        propID,
				CreatedAt:     trade.CreatedAt,
			}).Error; err != nil {
				return err
			}
		}
		for userID, qty := range positions {
			if err := savePosition(tx, userID, propID, qty); err != nil {
				return err
			}
		}
		return nil
	})
}

func savePosition(tx *gorm.DB, userID, propID string, qty int) error {
	res := tx.Model(&types.Position{}).
		Where("user_id = ? AND prop_id = ?", userID, propID).
		Updates(map[string]interface{}{"quantity": qty, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return tx.Create(&types.Position{UserID: userID, PropID: propID, Quantity: qty}).Error
	}
	return nil
}

// adjustBalance credits or debits a registered user. Unknown user IDs are
// tolerated: order flow does not require an account row.
func adjustBalance(tx *gorm.DB, userID string, delta float64) error {
	return tx.Model(&types.User{}).
		Where("user_id = ?", userID).
		Update("balance", gorm.Expr("balance + ?", delta)).Error
}
