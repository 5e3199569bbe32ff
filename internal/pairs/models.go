package pairs

import (
	"gorm.io/gorm"
)

// TradingPair maps a numeric pair id, as carried on grids and orders, to its
// base and quote asset symbols. Pair ids are assigned sequentially and never
// reused.
type TradingPair struct {
	gorm.Model  `json:"-"`
	PairID      uint64 `gorm:"uniqueIndex" json:"pair_id"`
	ExternalID  string `gorm:"uniqueIndex" json:"external_id"`
	BaseSymbol  string `gorm:"uniqueIndex:idx_pair_symbols" json:"base_symbol"`
	QuoteSymbol string `gorm:"uniqueIndex:idx_pair_symbols" json:"quote_symbol"`
}
