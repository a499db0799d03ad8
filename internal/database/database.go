// Package database opens the sqlite store and keeps its schema current.
package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/database/migrations"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/settlement"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/trading"
	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/types"
)

// NewDatabase opens the store at path and returns a ready GORM connection.
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := migrations.AddMarketIndexes(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := migrations.AddCashLedger(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	err = db.AutoMigrate(
		&types.Contract{},
		&types.User{},
		&settlement.Settlement{},
		&trading.IdempotencyRecord{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
