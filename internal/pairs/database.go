package pairs

import (
	"errors"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// CreatePair assigns the next pair id and persists the pair. The id
// allocation and the insert share one transaction so concurrent creations
// cannot collide.
func (d *Database) CreatePair(pair *TradingPair) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var maxID *uint64
	if err := tx.Model(&TradingPair{}).Select("MAX(pair_id)").Scan(&maxID).Error; err != nil {
		tx.Rollback()
		return err
	}
	pair.PairID = 1
	if maxID != nil {
		pair.PairID = *maxID + 1
	}

	if err := tx.Create(pair).Error; err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

// GetPair returns the pair with the given numeric id, or nil if it does not
// exist.
func (d *Database) GetPair(pairID uint64) (*TradingPair, error) {
	var pair TradingPair
	if err := d.db.Where("pair_id = ?", pairID).First(&pair).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pair, nil
}

// GetPairBySymbols returns the pair for a base/quote symbol combination, or
// nil if it was never listed.
func (d *Database) GetPairBySymbols(baseSymbol, quoteSymbol string) (*TradingPair, error) {
	var pair TradingPair
	err := d.db.Where("base_symbol = ? AND quote_symbol = ?", baseSymbol, quoteSymbol).First(&pair).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pair, nil
}

func (d *Database) ListPairs() ([]TradingPair, error) {
	var pairs []TradingPair
	if err := d.db.Order("pair_id").Find(&pairs).Error; err != nil {
		return nil, err
	}
	return pairs, nil
}
