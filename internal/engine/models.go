package engine

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Fee rates are expressed over gridmath.FeeDenominator: 100 is 0.01%.
const (
	MinFee = 100
	MaxFee = 100_000

	// OneshotFee is the protocol-fixed rate applied to every oneshot grid,
	// regardless of the fee the maker asked for.
	OneshotFee = 300
)

// GridStatus is the lifecycle state of a whole grid.
type GridStatus int8

const (
	GridStatusNormal   GridStatus = 0
	GridStatusCanceled GridStatus = 1
)

func (s GridStatus) String() string {
	if s == GridStatusCanceled {
		return "CANCELED"
	}
	return "NORMAL"
}

// OrderStatus is the lifecycle state of a single order slot. Done is the
// terminal state a oneshot order reaches once its forward amount is exhausted:
// unlike Canceled it was not destroyed by the maker, so its accumulated
// reverse amount is still swept up by cancellation.
type OrderStatus int8

const (
	OrderStatusNormal   OrderStatus = 0
	OrderStatusCanceled OrderStatus = 1
	OrderStatusDone     OrderStatus = 2
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusCanceled:
		return "CANCELED"
	case OrderStatusDone:
		return "DONE"
	default:
		return "NORMAL"
	}
}

// GridConfig is the persistent configuration and running state of one grid.
// A canceled grid keeps its row forever; grid ids are never reused.
type GridConfig struct {
	gorm.Model    `json:"-"`
	GridID        uint64          `gorm:"uniqueIndex" json:"grid_id"`
	Owner         string          `gorm:"index" json:"owner"`
	PairID        uint64          `gorm:"index" json:"pair_id"`
	AskStrategy   string          `json:"ask_strategy"`
	BidStrategy   string          `json:"bid_strategy"`
	Profits       decimal.Decimal `gorm:"type:decimal(64,18)" json:"profits"`
	PerOrderBase  decimal.Decimal `gorm:"type:decimal(64,18)" json:"per_order_base"`
	StartAskIndex uint64          `json:"start_ask_index"`
	StartBidIndex uint64          `json:"start_bid_index"`
	AskCount      uint32          `json:"ask_count"`
	BidCount      uint32          `json:"bid_count"`
	Fee           int64           `json:"fee"`
	Compound      bool            `json:"compound"`
	Oneshot       bool            `json:"oneshot"`
	Status        GridStatus      `json:"status"`
}

// GridOrder is the materialized state of one (grid, side, index) slot. Slots
// that have never been filled or canceled have no row; their amounts derive
// from the grid config and the strategy price.
//
// For an ask-side slot Amount is resting base and RevAmount is quote
// accumulated for the bid flip; for a bid-side slot the roles are swapped.
type GridOrder struct {
	gorm.Model `json:"-"`
	OrderID    uint64          `gorm:"uniqueIndex" json:"order_id"`
	GridID     uint64          `gorm:"index" json:"grid_id"`
	IsAsk      bool            `json:"is_ask"`
	LocalIndex uint64          `json:"local_index"`
	Amount     decimal.Decimal `gorm:"type:decimal(64,18)" json:"amount"`
	RevAmount  decimal.Decimal `gorm:"type:decimal(64,18)" json:"rev_amount"`
	Status     OrderStatus     `json:"status"`
}

// GridCounter is the singleton row holding the engine-owned monotonic
// counters: the next grid id and the next global order index per side. Ask
// and bid index spaces are disjoint so order ids never collide across grids.
type GridCounter struct {
	gorm.Model
	NextGridID   uint64
	NextAskIndex uint64
	NextBidIndex uint64
}

// IdempotencyRecord makes grid placement replay-safe: a repeated
// Idempotency-Key returns the originally created grid instead of placing a
// second one.
type IdempotencyRecord struct {
	gorm.Model
	IdempotencyKey string `gorm:"uniqueIndex"`
	GridID         uint64
	ExpiresAt      time.Time
}

// OrderFillResult reports one fill to the settlement collaborator. It is
// transient: the engine never persists it.
//
// For an ask fill the taker pays FilledQuote+MakerFee+ProtocolFee and
// receives FilledBase; for a bid fill the taker delivers FilledBase and
// receives FilledQuote-MakerFee-ProtocolFee. Profit is the quote amount
// realized into the grid's profit pool by this fill.
type OrderFillResult struct {
	PairID      uint64          `json:"pair_id"`
	GridID      uint64          `json:"grid_id"`
	Maker       string          `json:"maker"`
	OrderID     uint64          `json:"order_id"`
	IsAskFill   bool            `json:"is_ask_fill"`
	FilledBase  decimal.Decimal `json:"filled_base"`
	FilledQuote decimal.Decimal `json:"filled_quote"`
	MakerFee    decimal.Decimal `json:"maker_fee"`
	ProtocolFee decimal.Decimal `json:"protocol_fee"`
	Profit      decimal.Decimal `json:"profit"`
	Amount      decimal.Decimal `json:"amount"`
	RevAmount   decimal.Decimal `json:"rev_amount"`
}

// OrderInfo is the read-only view returned by GetOrderInfo.
type OrderInfo struct {
	OrderID      uint64          `json:"order_id"`
	GridID       uint64          `json:"grid_id"`
	PairID       uint64          `json:"pair_id"`
	LocalIndex   uint64          `json:"local_index"`
	IsAsk        bool            `json:"is_ask"`
	Compound     bool            `json:"compound"`
	Oneshot      bool            `json:"oneshot"`
	Fee          int64           `json:"fee"`
	Status       string          `json:"status"`
	Amount       decimal.Decimal `json:"amount"`
	RevAmount    decimal.Decimal `json:"rev_amount"`
	Price        decimal.Decimal `json:"price"`
	ReversePrice decimal.Decimal `json:"reverse_price"`
}
