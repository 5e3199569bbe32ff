// Package engine implements the grid order state machine: placement of ask
// and bid ladders, forward and reverse fills with fee and profit accounting,
// cancellation, and fee modification. The engine owns grid and order state
// and produces structured results; moving the underlying assets is the
// settlement collaborator's job.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/gridbook/gridbook-api/internal/gridmath"
	"github.com/gridbook/gridbook-api/internal/strategy"
)

// Service is the grid order engine. A single mutex serializes every mutating
// operation: each call either fully applies or leaves no trace, and no two
// operations ever interleave.
type Service struct {
	mu         sync.Mutex
	db         *Database
	strategies *strategy.Registry
}

func NewService(gormDB *gorm.DB, strategies *strategy.Registry) *Service {
	return &Service{
		db:         NewDatabase(gormDB),
		strategies: strategies,
	}
}

// GridSideSpec describes one side of a grid at placement time.
type GridSideSpec struct {
	Strategy string
	Count    uint32
	Price0   decimal.Decimal
	Delta    decimal.Decimal
}

// PlaceParams carries everything a maker supplies to place a grid.
type PlaceParams struct {
	PairID       uint64
	PerOrderBase decimal.Decimal
	Fee          int64
	Compound     bool
	Oneshot      bool
	Ask          GridSideSpec
	Bid          GridSideSpec
}

// PlaceResult reports the created grid and the deposit the maker owes.
// Replayed marks a response rebuilt for a repeated idempotency key: the
// maker's funds were already reserved the first time.
type PlaceResult struct {
	GridID        uint64          `json:"grid_id"`
	StartAskID    uint64          `json:"start_ask_id"`
	StartBidID    uint64          `json:"start_bid_id"`
	BaseRequired  decimal.Decimal `json:"base_required"`
	QuoteRequired decimal.Decimal `json:"quote_required"`
	Replayed      bool            `json:"-"`
}

// PlaceGrid validates the ladder, reserves order indices, initializes the
// strategies, and persists the grid config. No order rows are written: order
// slots materialize lazily on their first fill or cancellation.
func (s *Service) PlaceGrid(maker string, params PlaceParams, idempotencyKey string) (*PlaceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idempotencyKey != "" {
		record, err := s.db.GetIdempotencyRecord(idempotencyKey)
		if err != nil {
			return nil, err
		}
		if record != nil && record.ExpiresAt.After(time.Now()) {
			result, err := s.placeResultFor(record.GridID)
			if err != nil {
				return nil, err
			}
			result.Replayed = true
			return result, nil
		}
	}

	if params.Ask.Count == 0 && params.Bid.Count == 0 {
		return nil, ErrZeroGridOrderCount
	}
	if !params.PerOrderBase.IsPositive() || !params.PerOrderBase.Equal(params.PerOrderBase.Floor()) {
		return nil, ErrInvalidParam
	}

	fee := params.Fee
	if params.Oneshot {
		// Oneshot fees are protocol policy, not maker choice.
		fee = OneshotFee
	} else if fee < MinFee || fee > MaxFee {
		return nil, ErrInvalidGridFee
	}

	var askStrat, bidStrat strategy.Strategy
	var err error
	if params.Ask.Count > 0 {
		if askStrat, err = s.strategies.Get(params.Ask.Strategy); err != nil {
			return nil, ErrInvalidParam
		}
		askParams := strategy.Params{Price0: params.Ask.Price0, Delta: params.Ask.Delta}
		if err = askStrat.Validate(true, params.PerOrderBase, askParams, params.Ask.Count); err != nil {
			return nil, err
		}
	}
	if params.Bid.Count > 0 {
		if bidStrat, err = s.strategies.Get(params.Bid.Strategy); err != nil {
			return nil, ErrInvalidParam
		}
		bidParams := strategy.Params{Price0: params.Bid.Price0, Delta: params.Bid.Delta}
		if err = bidStrat.Validate(false, params.PerOrderBase, bidParams, params.Bid.Count); err != nil {
			return nil, err
		}
	}

	gridID, startAsk, startBid, err := s.db.ReserveIDs(params.Ask.Count, params.Bid.Count)
	if err != nil {
		return nil, err
	}

	if params.Ask.Count > 0 {
		err = askStrat.Initialize(true, gridID, strategy.Params{
			Price0:     params.Ask.Price0,
			Delta:      params.Ask.Delta,
			FirstIndex: startAsk,
		})
		if err != nil {
			return nil, err
		}
	}
	if params.Bid.Count > 0 {
		err = bidStrat.Initialize(false, gridID, strategy.Params{
			Price0:     params.Bid.Price0,
			Delta:      params.Bid.Delta,
			FirstIndex: startBid,
		})
		if err != nil {
			return nil, err
		}
	}

	baseRequired := params.PerOrderBase.Mul(decimal.NewFromInt(int64(params.Ask.Count)))
	if baseRequired.GreaterThan(gridmath.MaxAmount) {
		return nil, ErrExceedsMaxAmount
	}

	quoteRequired := decimal.Zero
	for i := uint32(0); i < params.Bid.Count; i++ {
		price, err := bidStrat.Price(false, gridID, startBid+uint64(i))
		if err != nil {
			return nil, err
		}
		quote, err := gridmath.QuoteFromBase(params.PerOrderBase, price, false)
		if err != nil {
			return nil, fmt.Errorf("bid order %d: %w", i, err)
		}
		quoteRequired = quoteRequired.Add(quote)
		if quoteRequired.GreaterThan(gridmath.MaxAmount) {
			return nil, ErrExceedsMaxAmount
		}
	}

	grid := &GridConfig{
		GridID:        gridID,
		Owner:         maker,
		PairID:        params.PairID,
		AskStrategy:   params.Ask.Strategy,
		BidStrategy:   params.Bid.Strategy,
		Profits:       decimal.Zero,
		PerOrderBase:  params.PerOrderBase,
		StartAskIndex: startAsk,
		StartBidIndex: startBid,
		AskCount:      params.Ask.Count,
		BidCount:      params.Bid.Count,
		Fee:           fee,
		Compound:      params.Compound,
		Oneshot:       params.Oneshot,
		Status:        GridStatusNormal,
	}

	if idempotencyKey != "" {
		err = s.db.CreateGridWithIdempotency(grid, idempotencyKey)
	} else {
		err = s.db.CreateGrid(grid)
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "engine").
		Uint64("grid_id", gridID).
		Str("owner", maker).
		Uint32("ask_count", params.Ask.Count).
		Uint32("bid_count", params.Bid.Count).
		Str("base_required", baseRequired.String()).
		Str("quote_required", quoteRequired.String()).
		Msg("grid placed")

	result := &PlaceResult{
		GridID:        gridID,
		BaseRequired:  baseRequired,
		QuoteRequired: quoteRequired,
	}
	if params.Ask.Count > 0 {
		result.StartAskID = EncodeOrderID(gridID, true, startAsk)
	}
	if params.Bid.Count > 0 {
		result.StartBidID = EncodeOrderID(gridID, false, startBid)
	}
	return result, nil
}

// placeResultFor rebuilds the placement response for an already created grid,
// used when a placement request replays an idempotency key.
func (s *Service) placeResultFor(gridID uint64) (*PlaceResult, error) {
	grid, err := s.db.GetGridConfig(gridID)
	if err != nil {
		return nil, err
	}
	if grid == nil {
		return nil, ErrGridNotFound
	}

	baseRequired := grid.PerOrderBase.Mul(decimal.NewFromInt(int64(grid.AskCount)))
	quoteRequired := decimal.Zero
	if grid.BidCount > 0 {
		bidStrat, err := s.strategies.Get(grid.BidStrategy)
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < grid.BidCount; i++ {
			price, err := bidStrat.Price(false, grid.GridID, grid.StartBidIndex+uint64(i))
			if err != nil {
				return nil, err
			}
			quote, err := gridmath.QuoteFromBase(grid.PerOrderBase, price, false)
			if err != nil {
				return nil, err
			}
			quoteRequired = quoteRequired.Add(quote)
		}
	}

	result := &PlaceResult{
		GridID:        grid.GridID,
		BaseRequired:  baseRequired,
		QuoteRequired: quoteRequired,
	}
	if grid.AskCount > 0 {
		result.StartAskID = EncodeOrderID(grid.GridID, true, grid.StartAskIndex)
	}
	if grid.BidCount > 0 {
		result.StartBidID = EncodeOrderID(grid.GridID, false, grid.StartBidIndex)
	}
	return result, nil
}

// ModifyFee updates a grid's fee in place. Only future fills are affected.
func (s *Service) ModifyFee(caller string, gridID uint64, newFee int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	grid, err := s.db.GetGridConfig(gridID)
	if err != nil {
		return err
	}
	if grid == nil {
		return ErrGridNotFound
	}
	if grid.Owner != caller {
		return ErrNotGridOwner
	}
	if grid.Oneshot {
		return ErrCannotModifyOneshotFee
	}
	if newFee < MinFee || newFee > MaxFee {
		return ErrInvalidGridFee
	}

	grid.Fee = newFee
	return s.db.SaveGrid(grid)
}

// WithdrawProfits empties the grid's realized profit pool and returns the
// quote amount for settlement to credit to the owner.
func (s *Service) WithdrawProfits(caller string, gridID uint64) (pairID uint64, amount decimal.Decimal, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grid, err := s.db.GetGridConfig(gridID)
	if err != nil {
		return 0, decimal.Zero, err
	}
	if grid == nil {
		return 0, decimal.Zero, ErrGridNotFound
	}
	if grid.Owner != caller {
		return 0, decimal.Zero, ErrNotGridOwner
	}
	if grid.Status != GridStatusNormal {
		return 0, decimal.Zero, ErrOrderCanceled
	}
	if !grid.Profits.IsPositive() {
		return 0, decimal.Zero, ErrNoProfits
	}

	amount = grid.Profits
	grid.Profits = decimal.Zero
	if err := s.db.SaveGrid(grid); err != nil {
		return 0, decimal.Zero, err
	}

	log.Info().
		Str("service", "engine").
		Uint64("grid_id", gridID).
		Str("amount", amount.String()).
		Msg("profits withdrawn")

	return grid.PairID, amount, nil
}

// GetGridConfig returns the persistent configuration of a grid.
func (s *Service) GetGridConfig(gridID uint64) (*GridConfig, error) {
	grid, err := s.db.GetGridConfig(gridID)
	if err != nil {
		return nil, err
	}
	if grid == nil {
		return nil, ErrGridNotFound
	}
	return grid, nil
}

// GetOrderInfo resolves the full view of one order slot, deriving amounts for
// slots that were never materialized.
func (s *Service) GetOrderInfo(orderID uint64) (*OrderInfo, error) {
	gridID, localIndex, isAsk := DecodeOrderID(orderID)

	grid, err := s.db.GetGridConfig(gridID)
	if err != nil {
		return nil, err
	}
	if grid == nil {
		return nil, ErrGridNotFound
	}
	if !s.indexInRange(grid, isAsk, localIndex) {
		return nil, ErrOrderNotFound
	}

	strat, err := s.strategies.Get(s.sideStrategy(grid, isAsk))
	if err != nil {
		return nil, err
	}
	price, err := strat.Price(isAsk, gridID, localIndex)
	if err != nil {
		return nil, err
	}
	reversePrice, err := strat.ReversePrice(isAsk, gridID, localIndex)
	if err != nil {
		return nil, err
	}

	order, err := s.db.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		if order, err = s.deriveOrder(grid, isAsk, localIndex, price); err != nil {
			return nil, err
		}
	}

	status := order.Status.String()
	if grid.Status != GridStatusNormal {
		status = OrderStatusCanceled.String()
	}

	return &OrderInfo{
		OrderID:      orderID,
		GridID:       gridID,
		PairID:       grid.PairID,
		LocalIndex:   localIndex,
		IsAsk:        isAsk,
		Compound:     grid.Compound,
		Oneshot:      grid.Oneshot,
		Fee:          grid.Fee,
		Status:       status,
		Amount:       order.Amount,
		RevAmount:    order.RevAmount,
		Price:        price,
		ReversePrice: reversePrice,
	}, nil
}

func (s *Service) sideStrategy(grid *GridConfig, isAsk bool) string {
	if isAsk {
		return grid.AskStrategy
	}
	return grid.BidStrategy
}

func (s *Service) indexInRange(grid *GridConfig, isAsk bool, index uint64) bool {
	if isAsk {
		return grid.AskCount > 0 && index >= grid.StartAskIndex && index < grid.StartAskIndex+uint64(grid.AskCount)
	}
	return grid.BidCount > 0 && index >= grid.StartBidIndex && index < grid.StartBidIndex+uint64(grid.BidCount)
}

// deriveOrder builds the implicit state of a never-materialized slot: an ask
// slot rests one order's worth of base, a bid slot rests the quote that was
// deposited for it at its ladder price.
func (s *Service) deriveOrder(grid *GridConfig, isAsk bool, localIndex uint64, price decimal.Decimal) (*GridOrder, error) {
	order := &GridOrder{
		OrderID:    EncodeOrderID(grid.GridID, isAsk, localIndex),
		GridID:     grid.GridID,
		IsAsk:      isAsk,
		LocalIndex: localIndex,
		Amount:     decimal.Zero,
		RevAmount:  decimal.Zero,
		Status:     OrderStatusNormal,
	}
	if isAsk {
		order.Amount = grid.PerOrderBase
		return order, nil
	}
	quote, err := gridmath.QuoteFromBase(grid.PerOrderBase, price, false)
	if err != nil {
		return nil, err
	}
	order.Amount = quote
	return order, nil
}
