package strategy

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/gridbook/gridbook-api/internal/gridmath"
)

const KindGeometric = "geometric"

var decimalOne = decimal.NewFromInt(1)

// Geometric prices a ladder with a constant ratio between adjacent orders:
// asks multiply Price0 by Delta (> 1) per index, bids by Delta (< 1). The
// reverse price is one ratio step inside the forward price.
type Geometric struct {
	db *Database
}

func NewGeometric(gormDB *gorm.DB) *Geometric {
	return &Geometric{db: NewDatabase(gormDB)}
}

func (g *Geometric) Name() string { return KindGeometric }

func (g *Geometric) Validate(isAsk bool, perOrderBase decimal.Decimal, params Params, count uint32) error {
	if count == 0 {
		return nil
	}
	if !params.Price0.IsPositive() || !params.Delta.IsPositive() {
		return ErrInvalidGridPrice
	}
	if isAsk {
		if params.Delta.LessThanOrEqual(decimalOne) {
			return ErrInvalidGridPrice
		}
		top := params.Price0.Mul(powInt(params.Delta, uint64(count-1)))
		if top.GreaterThan(MaxPrice) {
			return ErrInvalidGridPrice
		}
		return nil
	}
	if params.Delta.GreaterThanOrEqual(decimalOne) {
		return ErrInvalidGridPrice
	}
	// Bid reverse prices climb one ratio step above Price0.
	if params.Price0.Div(params.Delta).GreaterThan(MaxPrice) {
		return ErrInvalidGridPrice
	}
	lowest := params.Price0.Mul(powInt(params.Delta, uint64(count-1)))
	if _, err := gridmath.QuoteFromBase(perOrderBase, lowest, false); err != nil {
		return ErrInvalidGridPrice
	}
	return nil
}

func (g *Geometric) Initialize(isAsk bool, gridID uint64, params Params) error {
	return g.db.SaveParams(&SideParams{
		GridID:     gridID,
		IsAsk:      isAsk,
		Kind:       KindGeometric,
		Price0:     params.Price0,
		Delta:      params.Delta,
		FirstIndex: params.FirstIndex,
	})
}

func (g *Geometric) Price(isAsk bool, gridID uint64, index uint64) (decimal.Decimal, error) {
	params, err := g.db.GetParams(gridID, isAsk, KindGeometric)
	if err != nil {
		return decimal.Zero, err
	}
	return geometricPrice(params, index)
}

func (g *Geometric) ReversePrice(isAsk bool, gridID uint64, index uint64) (decimal.Decimal, error) {
	params, err := g.db.GetParams(gridID, isAsk, KindGeometric)
	if err != nil {
		return decimal.Zero, err
	}
	price, err := geometricPrice(params, index)
	if err != nil {
		return decimal.Zero, err
	}
	// One ratio step back toward the opposite side, for asks and bids alike.
	return price.Div(params.Delta), nil
}

func geometricPrice(params *SideParams, index uint64) (decimal.Decimal, error) {
	if index < params.FirstIndex {
		return decimal.Zero, ErrInvalidGridPrice
	}
	return params.Price0.Mul(powInt(params.Delta, index-params.FirstIndex)), nil
}
