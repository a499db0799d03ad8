package migrations

import (
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/types"
	"gorm.io/gorm"
)

// AddCashLedger creates the transaction ledger and its query indexes.
func AddCashLedger(db *gorm.DB) error {
	if err := db.AutoMigrate(&types.Transaction{}); err != nil {
		return err
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_transactions_user_created
		 ON transactions(user_id, created_at)`,

		`CREATE INDEX IF NOT EXISTS idx_transactions_prop
		 ON transactions(prop_id)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}
	return nil
}
