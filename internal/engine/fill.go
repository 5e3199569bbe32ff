package engine

import (
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/gridbook/gridbook-api/internal/gridmath"
)

// fillState caches the grids and order slots touched by one fill operation so
// a batch sees its own earlier fills, and collects everything that must be
// written back in a single transaction at the end.
type fillState struct {
	s      *Service
	grids  map[uint64]*GridConfig
	orders map[uint64]*GridOrder
}

func (s *Service) newFillState() *fillState {
	return &fillState{
		s:      s,
		grids:  make(map[uint64]*GridConfig),
		orders: make(map[uint64]*GridOrder),
	}
}

func (st *fillState) grid(gridID uint64) (*GridConfig, error) {
	if grid, ok := st.grids[gridID]; ok {
		return grid, nil
	}
	grid, err := st.s.db.GetGridConfig(gridID)
	if err != nil {
		return nil, err
	}
	if grid == nil {
		return nil, ErrGridNotFound
	}
	st.grids[gridID] = grid
	return grid, nil
}

func (st *fillState) order(grid *GridConfig, isAsk bool, localIndex uint64, forwardPrice decimal.Decimal) (*GridOrder, error) {
	orderID := EncodeOrderID(grid.GridID, isAsk, localIndex)
	if order, ok := st.orders[orderID]; ok {
		return order, nil
	}
	order, err := st.s.db.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		if order, err = st.s.deriveOrder(grid, isAsk, localIndex, forwardPrice); err != nil {
			return nil, err
		}
	}
	st.orders[orderID] = order
	return order, nil
}

func (st *fillState) persist() error {
	orders := make([]*GridOrder, 0, len(st.orders))
	for _, order := range st.orders {
		orders = append(orders, order)
	}
	grids := make([]*GridConfig, 0, len(st.grids))
	for _, grid := range st.grids {
		grids = append(grids, grid)
	}
	return st.s.db.SaveFills(orders, grids)
}

// FillAsk fills base out of an order's ask leg: the forward leg of an
// ask-side order, or the flipped leg of a bid-side order that has accumulated
// base. The taker pays FilledQuote plus both fees and receives FilledBase.
func (s *Service) FillAsk(orderID uint64, requestedBase decimal.Decimal) (*OrderFillResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.newFillState()
	result, err := s.fillAsk(st, orderID, requestedBase)
	if err != nil {
		return nil, err
	}
	if err := st.persist(); err != nil {
		return nil, err
	}
	return result, nil
}

// FillBid fills an order's bid leg: the taker delivers FilledBase and
// receives FilledQuote net of both fees.
func (s *Service) FillBid(orderID uint64, requestedBase decimal.Decimal) (*OrderFillResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.newFillState()
	result, err := s.fillBid(st, orderID, requestedBase)
	if err != nil {
		return nil, err
	}
	if err := st.persist(); err != nil {
		return nil, err
	}
	return result, nil
}

// FillAskBatch runs a sequence of ask fills with running accumulators. A
// positive maxBase truncates the last fill once the cap is reached; earlier
// fills in the batch stand. If the batch fills less than minFilled in total
// the whole call fails and nothing is applied.
func (s *Service) FillAskBatch(orderIDs []uint64, amounts []decimal.Decimal, maxBase, minFilled decimal.Decimal) ([]OrderFillResult, error) {
	return s.fillBatch(orderIDs, amounts, maxBase, minFilled, (*Service).fillAsk)
}

// FillBidBatch is the bid-side counterpart of FillAskBatch.
func (s *Service) FillBidBatch(orderIDs []uint64, amounts []decimal.Decimal, maxBase, minFilled decimal.Decimal) ([]OrderFillResult, error) {
	return s.fillBatch(orderIDs, amounts, maxBase, minFilled, (*Service).fillBid)
}

func (s *Service) fillBatch(
	orderIDs []uint64,
	amounts []decimal.Decimal,
	maxBase, minFilled decimal.Decimal,
	fill func(*Service, *fillState, uint64, decimal.Decimal) (*OrderFillResult, error),
) ([]OrderFillResult, error) {
	if len(orderIDs) == 0 || len(orderIDs) != len(amounts) {
		return nil, ErrInvalidParam
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.newFillState()
	results := make([]OrderFillResult, 0, len(orderIDs))
	totalFilled := decimal.Zero

	for i, orderID := range orderIDs {
		amount := amounts[i]
		if maxBase.IsPositive() {
			remaining := maxBase.Sub(totalFilled)
			if !remaining.IsPositive() {
				break
			}
			amount = decimal.Min(amount, remaining)
		}
		result, err := fill(s, st, orderID, amount)
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
		totalFilled = totalFilled.Add(result.FilledBase)
	}

	if minFilled.IsPositive() && totalFilled.LessThan(minFilled) {
		return nil, ErrNotEnoughToFill
	}
	if err := st.persist(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) fillAsk(st *fillState, orderID uint64, requestedBase decimal.Decimal) (*OrderFillResult, error) {
	if !requestedBase.IsPositive() {
		return nil, ErrInvalidParam
	}

	gridID, localIndex, slotIsAsk := DecodeOrderID(orderID)
	grid, err := st.grid(gridID)
	if err != nil {
		return nil, err
	}
	if grid.Status != GridStatusNormal {
		return nil, ErrOrderCanceled
	}
	if !s.indexInRange(grid, slotIsAsk, localIndex) {
		return nil, ErrOrderNotFound
	}
	// Filling the ask leg of a bid-side order is a reverse fill.
	if !slotIsAsk && grid.Oneshot {
		return nil, ErrReversedOneshotOrderFill
	}

	strat, err := s.strategies.Get(s.sideStrategy(grid, slotIsAsk))
	if err != nil {
		return nil, err
	}
	forwardPrice, err := strat.Price(slotIsAsk, gridID, localIndex)
	if err != nil {
		return nil, err
	}

	order, err := st.order(grid, slotIsAsk, localIndex, forwardPrice)
	if err != nil {
		return nil, err
	}
	if order.Status != OrderStatusNormal {
		return nil, ErrOrderCanceled
	}

	// The sell price of an ask-side slot is its ladder price; a bid-side
	// slot sells its accumulated base at the reverse price it flipped to.
	sellPrice := forwardPrice
	if !slotIsAsk {
		if sellPrice, err = strat.ReversePrice(false, gridID, localIndex); err != nil {
			return nil, err
		}
	}

	available := order.Amount
	if !slotIsAsk {
		available = order.RevAmount
	}
	if !available.IsPositive() {
		return nil, ErrNotEnoughToFill
	}
	filledBase := decimal.Min(requestedBase, available)

	quoteVol, err := gridmath.QuoteFromBase(filledBase, sellPrice, true)
	if err != nil {
		return nil, err
	}
	makerFee, protocolFee := gridmath.SplitFee(quoteVol, grid.Fee, grid.Oneshot)
	proceeds := quoteVol.Add(makerFee)

	// The quota price is the price at which the proceeds would buy back one
	// order's worth of base on the opposite leg.
	var profit decimal.Decimal
	if slotIsAsk {
		quotaPrice, err := strat.ReversePrice(true, gridID, localIndex)
		if err != nil {
			return nil, err
		}
		order.Amount = order.Amount.Sub(filledBase)
		order.RevAmount, profit, err = s.fundQuoteLeg(grid, order.RevAmount, proceeds, quotaPrice)
		if err != nil {
			return nil, err
		}
	} else {
		order.RevAmount = order.RevAmount.Sub(filledBase)
		order.Amount, profit, err = s.fundQuoteLeg(grid, order.Amount, proceeds, forwardPrice)
		if err != nil {
			return nil, err
		}
	}
	grid.Profits = grid.Profits.Add(profit)

	if grid.Oneshot && slotIsAsk && order.Amount.IsZero() {
		order.Status = OrderStatusDone
	}

	log.Debug().
		Str("service", "engine").
		Uint64("order_id", orderID).
		Str("filled_base", filledBase.String()).
		Str("quote_vol", quoteVol.String()).
		Str("profit", profit.String()).
		Msg("ask leg filled")

	return &OrderFillResult{
		PairID:      grid.PairID,
		GridID:      gridID,
		Maker:       grid.Owner,
		OrderID:     orderID,
		IsAskFill:   true,
		FilledBase:  filledBase,
		FilledQuote: quoteVol,
		MakerFee:    makerFee,
		ProtocolFee: protocolFee,
		Profit:      profit,
		Amount:      order.Amount,
		RevAmount:   order.RevAmount,
	}, nil
}

func (s *Service) fillBid(st *fillState, orderID uint64, requestedBase decimal.Decimal) (*OrderFillResult, error) {
	if !requestedBase.IsPositive() {
		return nil, ErrInvalidParam
	}

	gridID, localIndex, slotIsAsk := DecodeOrderID(orderID)
	grid, err := st.grid(gridID)
	if err != nil {
		return nil, err
	}
	if grid.Status != GridStatusNormal {
		return nil, ErrOrderCanceled
	}
	if !s.indexInRange(grid, slotIsAsk, localIndex) {
		return nil, ErrOrderNotFound
	}
	// Filling the bid leg of an ask-side order is a reverse fill.
	if slotIsAsk && grid.Oneshot {
		return nil, ErrReversedOneshotOrderFill
	}

	strat, err := s.strategies.Get(s.sideStrategy(grid, slotIsAsk))
	if err != nil {
		return nil, err
	}
	forwardPrice, err := strat.Price(slotIsAsk, gridID, localIndex)
	if err != nil {
		return nil, err
	}

	order, err := st.order(grid, slotIsAsk, localIndex, forwardPrice)
	if err != nil {
		return nil, err
	}
	if order.Status != OrderStatusNormal {
		return nil, ErrOrderCanceled
	}

	// A bid-side slot buys at its ladder price; an ask-side slot's
	// accumulated quote buys at the reverse price it flipped to.
	buyPrice := forwardPrice
	if slotIsAsk {
		if buyPrice, err = strat.ReversePrice(true, gridID, localIndex); err != nil {
			return nil, err
		}
	}

	quoteReserve := order.Amount
	if slotIsAsk {
		quoteReserve = order.RevAmount
	}
	if !quoteReserve.IsPositive() {
		return nil, ErrNotEnoughToFill
	}

	filledBase := requestedBase
	quoteVol, err := gridmath.QuoteFromBase(filledBase, buyPrice, false)
	if err != nil {
		return nil, err
	}
	if quoteVol.GreaterThan(quoteReserve) {
		// The reserve cannot cover the request: reduce the base fill so the
		// order is never overdrawn.
		if filledBase, err = gridmath.BaseFromQuote(quoteReserve, buyPrice, true); err != nil {
			return nil, err
		}
		quoteVol = quoteReserve
	}

	makerFee, protocolFee := gridmath.SplitFee(quoteVol, grid.Fee, grid.Oneshot)

	var profit decimal.Decimal
	newReserve := quoteReserve.Sub(quoteVol)
	if grid.Compound {
		newReserve = newReserve.Add(makerFee)
	} else {
		profit = makerFee
		grid.Profits = grid.Profits.Add(makerFee)
	}

	if slotIsAsk {
		order.RevAmount = newReserve
		order.Amount = order.Amount.Add(filledBase)
	} else {
		order.Amount = newReserve
		order.RevAmount = order.RevAmount.Add(filledBase)
	}

	if grid.Oneshot && !slotIsAsk && order.Amount.IsZero() {
		order.Status = OrderStatusDone
	}

	log.Debug().
		Str("service", "engine").
		Uint64("order_id", orderID).
		Str("filled_base", filledBase.String()).
		Str("quote_vol", quoteVol.String()).
		Str("profit", profit.String()).
		Msg("bid leg filled")

	return &OrderFillResult{
		PairID:      grid.PairID,
		GridID:      gridID,
		Maker:       grid.Owner,
		OrderID:     orderID,
		IsAskFill:   false,
		FilledBase:  filledBase,
		FilledQuote: quoteVol,
		MakerFee:    makerFee,
		ProtocolFee: protocolFee,
		Profit:      profit,
		Amount:      order.Amount,
		RevAmount:   order.RevAmount,
	}, nil
}

// fundQuoteLeg routes sale proceeds into an order's quote leg. Compounding
// grids reinvest everything; otherwise the leg is capped at the quota needed
// to buy back one order's worth of base at the quota price, and the excess is
// realized as profit.
func (s *Service) fundQuoteLeg(grid *GridConfig, leg, proceeds, quotaPrice decimal.Decimal) (newLeg, profit decimal.Decimal, err error) {
	if grid.Compound {
		return leg.Add(proceeds), decimal.Zero, nil
	}
	quota, err := gridmath.QuoteFromBase(grid.PerOrderBase, quotaPrice, false)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if leg.GreaterThanOrEqual(quota) {
		return leg, proceeds, nil
	}
	newLeg = leg.Add(proceeds)
	if newLeg.GreaterThan(quota) {
		return quota, newLeg.Sub(quota), nil
	}
	return newLeg, decimal.Zero, nil
}
