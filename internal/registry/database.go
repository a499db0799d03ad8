package registry

import (
	"errors"

	"gorm.io/gorm"

	"github.com/nihalshetty10/Daily-Fantasy-Exchange/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) ListContracts() ([]types.Contract, error) {
	var contracts []types.Contract
	if err := d.db.Order("prop_id").Find(&contracts).Error; err != nil {
		return nil, err
	}
	return contracts, nil
}

func (d *Database) GetContract(propID string) (*types.Contract, error) {
	var contract types.Contract
	if err := d.db.Where("prop_id = ?", propID).First(&contract).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &contract, nil
}

func (d *Database) CreateContract(contract *types.Contract) error {
	return d.db.Create(contract).Error
}

func (d *Database) SaveContract(contract *types.Contract) error {
	return d.db.Save(contract).Error
}

// SaveContractWithTick persists a price update and its history entry in one
// transaction so the audit log never diverges from the contract row.
func (d *Database) SaveContractWithTick(contract *types.Contract, tick *types.PriceTick) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(contract).Error; err != nil {
			return err
		}
		return tx.Create(tick).Error
	})
}

func (d *Database) ListPriceTicks(propID string, limit int) ([]types.PriceTick, error) {
	var ticks []types.PriceTick
	q := d.db.Where("prop_id = ?", propID).Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&ticks).Error; err != nil {
		return nil, err
	}
	return ticks, nil
}
