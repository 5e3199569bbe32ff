package gridmath

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestQuoteFromBase(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		price   string
		roundUp bool
		want    string
		wantErr error
	}{
		{"exact product", "400", "100", true, "40000", nil},
		{"round up fractional", "3", "0.5", true, "2", nil},
		{"round down fractional", "3", "0.5", false, "1", nil},
		{"round up sub-unit", "1", "0.001", true, "1", nil},
		{"round down truncates to zero", "1", "0.001", false, "", ErrZeroQuoteAmount},
		{"zero base", "0", "100", true, "", ErrZeroQuoteAmount},
		{"overflow", MaxAmount.String(), "2", false, "", ErrQuoteAmountOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := QuoteFromBase(dec(tt.base), dec(tt.price), tt.roundUp)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(dec(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestBaseFromQuote(t *testing.T) {
	tests := []struct {
		name    string
		quote   string
		price   string
		roundUp bool
		want    string
		wantErr error
	}{
		{"exact division", "40000", "100", false, "400", nil},
		{"round down remainder", "1001", "10", false, "100", nil},
		{"round up remainder", "1001", "10", true, "101", nil},
		{"fractional price", "100", "0.25", false, "400", nil},
		{"truncates to zero", "1", "10", false, "", ErrZeroBaseAmount},
		{"zero price", "100", "0", false, "", ErrZeroBaseAmount},
		{"overflow", MaxAmount.String(), "0.5", false, "", ErrBaseAmountOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BaseFromQuote(dec(tt.quote), dec(tt.price), tt.roundUp)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(dec(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

// Round-up must never produce less than round-down for the same inputs.
func TestRoundingMonotonic(t *testing.T) {
	bases := []string{"1", "3", "7", "999", "1000000001"}
	prices := []string{"0.001", "0.5", "1", "99.99", "12345"}

	for _, b := range bases {
		for _, p := range prices {
			up, errUp := QuoteFromBase(dec(b), dec(p), true)
			down, errDown := QuoteFromBase(dec(b), dec(p), false)
			if errUp != nil || errDown != nil {
				continue
			}
			assert.True(t, up.GreaterThanOrEqual(down), "base=%s price=%s", b, p)
		}
	}
}

func TestSplitFee(t *testing.T) {
	tests := []struct {
		name         string
		volume       string
		feeBps       int64
		oneshot      bool
		wantMaker    string
		wantProtocol string
	}{
		{"standard split", "40000", 100, false, "3", "1"},
		{"oneshot inverted split", "40000", 100, true, "1", "3"},
		{"fee floors", "399", 100, false, "0", "0"},
		{"uneven quarter", "70000", 100, false, "6", "1"},
		{"zero volume", "0", 500, false, "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			maker, protocol := SplitFee(dec(tt.volume), tt.feeBps, tt.oneshot)
			assert.True(t, maker.Equal(dec(tt.wantMaker)), "maker got %s want %s", maker, tt.wantMaker)
			assert.True(t, protocol.Equal(dec(tt.wantProtocol)), "protocol got %s want %s", protocol, tt.wantProtocol)
		})
	}
}

// The maker and protocol portions must always recompose to the full fee.
func TestSplitFeeConservation(t *testing.T) {
	volumes := []string{"1", "1000", "40000", "987654321"}
	rates := []int64{100, 300, 5000, 100000}

	for _, v := range volumes {
		for _, r := range rates {
			for _, oneshot := range []bool{false, true} {
				maker, protocol := SplitFee(dec(v), r, oneshot)
				fee, _ := dec(v).Mul(decimal.NewFromInt(r)).QuoRem(feeDenominator, 0)
				assert.True(t, maker.Add(protocol).Equal(fee), "volume=%s rate=%d oneshot=%v", v, r, oneshot)
			}
		}
	}
}
