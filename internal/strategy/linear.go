package strategy

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/gridbook/gridbook-api/internal/gridmath"
)

const KindLinear = "linear"

// Linear prices a ladder with a constant gap between adjacent orders: asks
// ascend from Price0 by Delta per index, bids descend. The reverse price sits
// one gap inside the forward price on either side.
type Linear struct {
	db *Database
}

func NewLinear(gormDB *gorm.DB) *Linear {
	return &Linear{db: NewDatabase(gormDB)}
}

func (l *Linear) Name() string { return KindLinear }

func (l *Linear) Validate(isAsk bool, perOrderBase decimal.Decimal, params Params, count uint32) error {
	if count == 0 {
		return nil
	}
	if !params.Price0.IsPositive() || !params.Delta.IsPositive() {
		return ErrInvalidGridPrice
	}
	span := params.Delta.Mul(decimal.NewFromInt(int64(count - 1)))
	if isAsk {
		if params.Price0.Add(span).GreaterThan(MaxPrice) {
			return ErrInvalidGridPrice
		}
		// The first ask's reverse price must stay positive.
		if !params.Price0.Sub(params.Delta).IsPositive() {
			return ErrInvalidGridPrice
		}
		return nil
	}
	lowest := params.Price0.Sub(span)
	if !lowest.IsPositive() {
		return ErrInvalidGridPrice
	}
	// The first bid's reverse price must fit the price width.
	if params.Price0.Add(params.Delta).GreaterThan(MaxPrice) {
		return ErrInvalidGridPrice
	}
	// One order's worth of base must not truncate to zero quote at the
	// cheapest rung.
	if _, err := gridmath.QuoteFromBase(perOrderBase, lowest, false); err != nil {
		return ErrInvalidGridPrice
	}
	return nil
}

func (l *Linear) Initialize(isAsk bool, gridID uint64, params Params) error {
	return l.db.SaveParams(&SideParams{
		GridID:     gridID,
		IsAsk:      isAsk,
		Kind:       KindLinear,
		Price0:     params.Price0,
		Delta:      params.Delta,
		FirstIndex: params.FirstIndex,
	})
}

func (l *Linear) Price(isAsk bool, gridID uint64, index uint64) (decimal.Decimal, error) {
	params, err := l.db.GetParams(gridID, isAsk, KindLinear)
	if err != nil {
		return decimal.Zero, err
	}
	return linearPrice(params, isAsk, index)
}

func (l *Linear) ReversePrice(isAsk bool, gridID uint64, index uint64) (decimal.Decimal, error) {
	params, err := l.db.GetParams(gridID, isAsk, KindLinear)
	if err != nil {
		return decimal.Zero, err
	}
	price, err := linearPrice(params, isAsk, index)
	if err != nil {
		return decimal.Zero, err
	}
	if isAsk {
		return price.Sub(params.Delta), nil
	}
	return price.Add(params.Delta), nil
}

func linearPrice(params *SideParams, isAsk bool, index uint64) (decimal.Decimal, error) {
	if index < params.FirstIndex {
		return decimal.Zero, ErrInvalidGridPrice
	}
	step := params.Delta.Mul(decimal.NewFromInt(int64(index - params.FirstIndex)))
	if isAsk {
		return params.Price0.Add(step), nil
	}
	return params.Price0.Sub(step), nil
}
