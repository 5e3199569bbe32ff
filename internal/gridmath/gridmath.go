// Package gridmath implements the fixed-point price and fee arithmetic used by
// the grid order engine. All amounts are integer-valued decimals; conversions
// between base and quote are exact up to the requested rounding direction and
// every result is bounds-checked against MaxAmount.
package gridmath

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	ErrZeroQuoteAmount     = errors.New("quote amount truncates to zero")
	ErrQuoteAmountOverflow = errors.New("quote amount exceeds maximum width")
	ErrZeroBaseAmount      = errors.New("base amount truncates to zero")
	ErrBaseAmountOverflow  = errors.New("base amount exceeds maximum width")
)

// FeeDenominator is the denominator for fee rates: a fee of 100 is 0.01%.
const FeeDenominator = 1_000_000

var (
	// MaxAmount is the largest representable base or quote amount (2^128 - 1).
	MaxAmount = decimal.NewFromBigInt(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1)), 0)

	feeDenominator = decimal.NewFromInt(FeeDenominator)
	four           = decimal.NewFromInt(4)
	one            = decimal.NewFromInt(1)
)

// QuoteFromBase converts a base amount to its quote value at the given price.
// Taker-pays volumes round up, taker-receives volumes round down; the caller
// picks the direction via roundUp.
func QuoteFromBase(baseAmt, price decimal.Decimal, roundUp bool) (decimal.Decimal, error) {
	quote := baseAmt.Mul(price)
	if roundUp {
		quote = quote.Ceil()
	} else {
		quote = quote.Floor()
	}
	if !quote.IsPositive() {
		return decimal.Zero, ErrZeroQuoteAmount
	}
	if quote.GreaterThan(MaxAmount) {
		return decimal.Zero, ErrQuoteAmountOverflow
	}
	return quote, nil
}

// BaseFromQuote converts a quote amount back to base at the given price. The
// division is performed exactly via quotient/remainder so no precision is lost
// before rounding.
func BaseFromQuote(quoteAmt, price decimal.Decimal, roundUp bool) (decimal.Decimal, error) {
	if !price.IsPositive() {
		return decimal.Zero, ErrZeroBaseAmount
	}
	q, r := quoteAmt.QuoRem(price, 0)
	if roundUp && !r.IsZero() {
		q = q.Add(one)
	}
	if !q.IsPositive() {
		return decimal.Zero, ErrZeroBaseAmount
	}
	if q.GreaterThan(MaxAmount) {
		return decimal.Zero, ErrBaseAmountOverflow
	}
	return q, nil
}

// SplitFee computes the total trading fee on a quote volume and splits it into
// the maker and protocol portions. Standard orders direct 25% of the fee to the
// protocol; oneshot orders invert the split so the protocol takes the bulk.
func SplitFee(volume decimal.Decimal, feeBps int64, oneshot bool) (makerFee, protocolFee decimal.Decimal) {
	fee, _ := volume.Mul(decimal.NewFromInt(feeBps)).QuoRem(feeDenominator, 0)
	quarter, _ := fee.QuoRem(four, 0)
	if oneshot {
		makerFee = quarter
		protocolFee = fee.Sub(quarter)
		return makerFee, protocolFee
	}
	protocolFee = quarter
	makerFee = fee.Sub(quarter)
	return makerFee, protocolFee
}
