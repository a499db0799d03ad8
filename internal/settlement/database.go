package settlement

import (
	"gorm.io/gorm"

	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// RecordPayouts persists one contract's settlement atomically: every
// payout row, its transaction ledger entry and balance credit, and the
// zeroed position rows.
func (d *Database) RecordPayouts(propID string, payouts []Settlement) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		for i := range payouts {
			p := &payouts[i]
			if err := tx.Create(p).Error; err != nil {
				return err
			}
			if p.Payout != 0 {
				if err := tx.Model(&types.User{}).
					Where("user_id = ?", p.UserID).
					Update("balance", gorm.Expr("balance + ?", p.Payout)).Error; err != nil {
					return err
				}
				if err := tx.Create(&types.Transaction{
					TransactionID: p.SettlementID + "_txn",
					UserID:        p.UserID,
					Type:          "settlement",
					Amount:        p.Payout,
					PropID:        propID,
					Description:   p.Outcome,
					CreatedAt:     p.CreatedAt,
				}).Error; err != nil {
					return err
				}
			}
			if err := tx.Model(&types.Position{}).
				Where("user_id = ? AND prop_id = ?", p.UserID, propID).
				Update("quantity", 0).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *Database) ListSettlements(propID string) ([]Settlement, error) {
	var rows []Settlement
	if err := d.db.Where("prop_id = ?", propID).
		Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (d *Database) ListUserSettlements(userID string) ([]Settlement, error) {
	var rows []Settlement
	if err := d.db.Where("user_id = ?", userID).
		Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
