package engine

import (
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// CancelResult reports the refund owed to the maker after a cancellation.
type CancelResult struct {
	PairID      uint64          `json:"pair_id"`
	BaseRefund  decimal.Decimal `json:"base_refund"`
	QuoteRefund decimal.Decimal `json:"quote_refund"`
}

// CancelGrid cancels every remaining order of a grid and folds the profit
// pool into the quote refund. The sweep skips orders the maker already
// canceled individually; it is all-or-nothing.
func (s *Service) CancelGrid(caller string, gridID uint64) (*CancelResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grid, err := s.db.GetGridConfig(gridID)
	if err != nil {
		return nil, err
	}
	if grid == nil {
		return nil, ErrGridNotFound
	}
	if grid.Owner != caller {
		return nil, ErrNotGridOwner
	}
	if grid.Status != GridStatusNormal {
		return nil, ErrOrderCanceled
	}

	stored, err := s.db.GetGridOrders(gridID)
	if err != nil {
		return nil, err
	}

	baseRefund := decimal.Zero
	quoteRefund := decimal.Zero
	touched := make([]*GridOrder, 0, len(stored))

	sweep := func(isAsk bool, start uint64, count uint32) error {
		for i := uint64(0); i < uint64(count); i++ {
			index := start + i
			order, err := s.resolveSlot(grid, stored, isAsk, index)
			if err != nil {
				return err
			}
			if order.Status == OrderStatusCanceled {
				continue
			}
			base, quote := slotRefund(order)
			baseRefund = baseRefund.Add(base)
			quoteRefund = quoteRefund.Add(quote)
			if order.ID != 0 {
				// Only slots that were ever written need a tombstone; the
				// grid's Canceled status already blocks the rest.
				order.Amount = decimal.Zero
				order.RevAmount = decimal.Zero
				order.Status = OrderStatusCanceled
				touched = append(touched, order)
			}
		}
		return nil
	}

	if err := sweep(true, grid.StartAskIndex, grid.AskCount); err != nil {
		return nil, err
	}
	if err := sweep(false, grid.StartBidIndex, grid.BidCount); err != nil {
		return nil, err
	}

	quoteRefund = quoteRefund.Add(grid.Profits)
	grid.Profits = decimal.Zero
	grid.Status = GridStatusCanceled

	if err := s.db.SaveCancel(grid, touched); err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "engine").
		Uint64("grid_id", gridID).
		Str("base_refund", baseRefund.String()).
		Str("quote_refund", quoteRefund.String()).
		Msg("grid canceled")

	return &CancelResult{PairID: grid.PairID, BaseRefund: baseRefund, QuoteRefund: quoteRefund}, nil
}

// CancelOrders cancels an explicit list of the grid's orders. The call is
// strict: a list containing an already-canceled id fails as a whole, and no
// refund is applied.
func (s *Service) CancelOrders(caller string, gridID uint64, orderIDs []uint64) (*CancelResult, error) {
	if len(orderIDs) == 0 {
		return nil, ErrInvalidParam
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	grid, err := s.db.GetGridConfig(gridID)
	if err != nil {
		return nil, err
	}
	if grid == nil {
		return nil, ErrGridNotFound
	}
	if grid.Owner != caller {
		return nil, ErrNotGridOwner
	}
	if grid.Status != GridStatusNormal {
		return nil, ErrOrderCanceled
	}

	stored, err := s.db.GetGridOrders(gridID)
	if err != nil {
		return nil, err
	}

	baseRefund := decimal.Zero
	quoteRefund := decimal.Zero
	touched := make([]*GridOrder, 0, len(orderIDs))
	seen := make(map[uint64]bool, len(orderIDs))

	for _, orderID := range orderIDs {
		ownerGrid, index, isAsk := DecodeOrderID(orderID)
		if ownerGrid != gridID {
			return nil, ErrInvalidParam
		}
		if !s.indexInRange(grid, isAsk, index) {
			return nil, ErrOrderNotFound
		}
		if seen[orderID] {
			return nil, ErrOrderCanceled
		}
		seen[orderID] = true

		order, err := s.resolveSlot(grid, stored, isAsk, index)
		if err != nil {
			return nil, err
		}
		if order.Status == OrderStatusCanceled {
			return nil, ErrOrderCanceled
		}

		base, quote := slotRefund(order)
		baseRefund = baseRefund.Add(base)
		quoteRefund = quoteRefund.Add(quote)
		order.Amount = decimal.Zero
		order.RevAmount = decimal.Zero
		order.Status = OrderStatusCanceled
		// Individually canceled slots are always materialized so later
		// fills and repeat cancellations see the tombstone.
		touched = append(touched, order)
	}

	if err := s.db.SaveCancel(grid, touched); err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "engine").
		Uint64("grid_id", gridID).
		Int("orders", len(orderIDs)).
		Str("base_refund", baseRefund.String()).
		Str("quote_refund", quoteRefund.String()).
		Msg("orders canceled")

	return &CancelResult{PairID: grid.PairID, BaseRefund: baseRefund, QuoteRefund: quoteRefund}, nil
}

// resolveSlot returns the stored order for a slot or derives its implicit
// state when it was never materialized.
func (s *Service) resolveSlot(grid *GridConfig, stored map[uint64]*GridOrder, isAsk bool, index uint64) (*GridOrder, error) {
	orderID := EncodeOrderID(grid.GridID, isAsk, index)
	if order, ok := stored[orderID]; ok {
		return order, nil
	}
	price := decimal.Zero
	if !isAsk {
		strat, err := s.strategies.Get(grid.BidStrategy)
		if err != nil {
			return nil, err
		}
		if price, err = strat.Price(false, grid.GridID, index); err != nil {
			return nil, err
		}
	}
	order, err := s.deriveOrder(grid, isAsk, index, price)
	if err != nil {
		return nil, err
	}
	stored[orderID] = order
	return order, nil
}

// slotRefund splits an order's two legs into base and quote refund parts
// according to its side.
func slotRefund(order *GridOrder) (base, quote decimal.Decimal) {
	if order.IsAsk {
		return order.Amount, order.RevAmount
	}
	return order.RevAmount, order.Amount
}
