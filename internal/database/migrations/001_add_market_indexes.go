package migrations

import (
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/types"
	"gorm.io/gorm"
)

// AddMarketIndexes creates the market tables and the indexes the hot query
// paths depend on.
func AddMarketIndexes(db *gorm.DB) error {
	if err := db.AutoMigrate(&types.Order{}, &types.Trade{}, &types.Position{}, &types.PriceTick{}); err != nil {
		return err
	}

	indexes := []string{
		// Book rehydration scans open orders in time order.
		`CREATE INDEX IF NOT EXISTS idx_orders_status_created
		 ON orders(status, created_at)`,

		// Order history is queried per user, newest first.
		`CREATE INDEX IF NOT EXISTS idx_orders_user_created
		 ON orders(user_id, created_at)`,

		// Trade tape lookups per contract.
		`CREATE INDEX IF NOT EXISTS idx_trades_prop_created
		 ON trades(prop_id, created_at)`,

		// Trade history per user.
		`CREATE INDEX IF NOT EXISTS idx_trades_user_created
		 ON trades(user_id, created_at)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}
	return nil
}
