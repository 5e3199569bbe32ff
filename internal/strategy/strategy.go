// Package strategy provides the pluggable pricing capability consumed by the
// grid order engine. A strategy turns (side, grid, order index) into a forward
// price and the reverse price the order flips to once filled. The engine
// treats every returned price as untrusted input and re-derives all amounts
// through the checked conversions in gridmath.
package strategy

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidGridPrice = errors.New("grid price ladder is non-monotonic or out of range")
	ErrUnknownStrategy  = errors.New("unknown price strategy")
	ErrParamsNotFound   = errors.New("strategy parameters not found for grid")
)

// MaxPrice is the largest valid ladder price (2^96 - 1).
var MaxPrice = decimal.NewFromBigInt(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(1)), 0)

// Params carries the ladder parameterization for one side of a grid. Price0
// and Delta come from the maker; FirstIndex is assigned by the engine when it
// reserves the side's index range.
type Params struct {
	Price0     decimal.Decimal
	Delta      decimal.Decimal
	FirstIndex uint64
}

// Strategy prices a ladder of grid orders. Implementations must return stable
// prices per (side, grid, index) for the life of the grid: the engine's
// non-compounding quota accounting depends on reverse prices not drifting.
type Strategy interface {
	Name() string

	// Validate rejects ladders that would be non-monotonic, underflow on the
	// bid side, overflow MaxPrice on the ask side, or price an order so low
	// that one order's worth of base truncates to zero quote.
	Validate(isAsk bool, perOrderBase decimal.Decimal, params Params, count uint32) error

	// Initialize persists the side's parameters keyed by grid.
	Initialize(isAsk bool, gridID uint64, params Params) error

	Price(isAsk bool, gridID uint64, index uint64) (decimal.Decimal, error)
	ReversePrice(isAsk bool, gridID uint64, index uint64) (decimal.Decimal, error)
}

// Registry resolves strategy names stored on a grid config to implementations.
type Registry struct {
	strategies map[string]Strategy
}

func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	for _, s := range strategies {
		r.strategies[s.Name()] = s
	}
	return r
}

func (r *Registry) Get(name string) (Strategy, error) {
	s, ok := r.strategies[name]
	if !ok {
		return nil, ErrUnknownStrategy
	}
	return s, nil
}

// powInt computes d^n by repeated multiplication so the result stays exact for
// integer exponents.
func powInt(d decimal.Decimal, n uint64) decimal.Decimal {
	result := decimal.NewFromInt(1)
	for i := uint64(0); i < n; i++ {
		result = result.Mul(d)
	}
	return result
}
