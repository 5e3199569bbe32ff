package strategy

import (
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SideParams is the stored ladder parameterization for one side of a grid.
// One row exists per (grid, side) pair that has a nonzero order count.
type SideParams struct {
	gorm.Model
	GridID     uint64          `gorm:"uniqueIndex:idx_side_params_grid_side"`
	IsAsk      bool            `gorm:"uniqueIndex:idx_side_params_grid_side"`
	Kind       string          `gorm:"index"`
	Price0     decimal.Decimal `gorm:"type:decimal(64,18)"`
	Delta      decimal.Decimal `gorm:"type:decimal(64,18)"`
	FirstIndex uint64
}

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) SaveParams(params *SideParams) error {
	return d.db.Create(params).Error
}

// GetParams returns the stored parameters for one side of a grid, or
// ErrParamsNotFound if the side was never initialized.
func (d *Database) GetParams(gridID uint64, isAsk bool, kind string) (*SideParams, error) {
	var params SideParams
	err := d.db.Where("grid_id = ? AND is_ask = ?", gridID, isAsk).First(&params).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrParamsNotFound
		}
		return nil, err
	}
	if params.Kind != kind {
		return nil, ErrParamsNotFound
	}
	return &params, nil
}
