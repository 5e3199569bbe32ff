package settlement

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	StatusPending = "PENDING"
	StatusSettled = "SETTLED"
)

// AccountBalance is one account's available balance in one asset.
type AccountBalance struct {
	gorm.Model `json:"-"`
	Account    string          `gorm:"uniqueIndex:idx_balance_account_asset" json:"account"`
	Asset      string          `gorm:"uniqueIndex:idx_balance_account_asset" json:"asset"`
	Available  decimal.Decimal `gorm:"type:decimal(64,18)" json:"available"`
}

// FillSettlement is the settlement record written for every fill the engine
// reports. The balance moves happen in the same transaction that creates the
// record; Status tracks the downstream confirmation performed by the
// background processor.
type FillSettlement struct {
	gorm.Model   `json:"-"`
	SettlementID string          `gorm:"uniqueIndex" json:"settlement_id"`
	PairID       uint64          `gorm:"index" json:"pair_id"`
	GridID       uint64          `gorm:"index" json:"grid_id"`
	OrderID      uint64          `json:"order_id"`
	Taker        string          `gorm:"index" json:"taker"`
	Maker        string          `json:"maker"`
	IsAskFill    bool            `json:"is_ask_fill"`
	FilledBase   decimal.Decimal `gorm:"type:decimal(64,18)" json:"filled_base"`
	FilledQuote  decimal.Decimal `gorm:"type:decimal(64,18)" json:"filled_quote"`
	MakerFee     decimal.Decimal `gorm:"type:decimal(64,18)" json:"maker_fee"`
	ProtocolFee  decimal.Decimal `gorm:"type:decimal(64,18)" json:"protocol_fee"`
	Status       string          `gorm:"index" json:"status"`
	SettledAt    *time.Time      `json:"settled_at,omitempty"`
}

// ProtocolFeeAccrual is the running total of protocol fees collected per
// asset.
type ProtocolFeeAccrual struct {
	gorm.Model `json:"-"`
	Asset      string          `gorm:"uniqueIndex" json:"asset"`
	Accrued    decimal.Decimal `gorm:"type:decimal(64,18)" json:"accrued"`
}
