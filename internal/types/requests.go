// Package types holds the HTTP request payloads shared by the API handlers.
package types

import "github.com/shopspring/decimal"

// SideSpec describes one side of a grid in a placement request.
type SideSpec struct {
	Strategy string          `json:"strategy"`
	Count    uint32          `json:"count"`
	Price0   decimal.Decimal `json:"price0"`
	Delta    decimal.Decimal `json:"delta"`
}

type PlaceGridRequest struct {
	PairID       uint64          `json:"pair_id" binding:"required"`
	PerOrderBase decimal.Decimal `json:"per_order_base"`
	Fee          int64           `json:"fee"`
	Compound     bool            `json:"compound"`
	Oneshot      bool            `json:"oneshot"`
	Ask          SideSpec        `json:"ask"`
	Bid          SideSpec        `json:"bid"`
}

// FillRequest fills one or more orders in sequence. MaxBase, when positive,
// caps the total base filled across the batch; MinFilled, when positive,
// fails the whole batch if it cannot be met.
type FillRequest struct {
	OrderIDs  []uint64          `json:"order_ids" binding:"required"`
	Amounts   []decimal.Decimal `json:"amounts" binding:"required"`
	MaxBase   decimal.Decimal   `json:"max_base"`
	MinFilled decimal.Decimal   `json:"min_filled"`
}

type CancelOrdersRequest struct {
	OrderIDs []uint64 `json:"order_ids" binding:"required"`
}

type ModifyFeeRequest struct {
	Fee int64 `json:"fee" binding:"required"`
}

type DepositRequest struct {
	Account string          `json:"account" binding:"required"`
	Asset   string          `json:"asset" binding:"required"`
	Amount  decimal.Decimal `json:"amount"`
}

type WithdrawRequest struct {
	Asset  string          `json:"asset" binding:"required"`
	Amount decimal.Decimal `json:"amount"`
}

type CreatePairRequest struct {
	BaseSymbol  string `json:"base_symbol" binding:"required"`
	QuoteSymbol string `json:"quote_symbol" binding:"required"`
}
