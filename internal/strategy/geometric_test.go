package strategy

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeometricPrices(t *testing.T) {
	db := newTestDB(t)
	geometric := NewGeometric(db)

	require.NoError(t, geometric.Initialize(true, 1, Params{
		Price0: d("100"), Delta: d("2"), FirstIndex: 0,
	}))
	require.NoError(t, geometric.Initialize(false, 1, Params{
		Price0: d("100"), Delta: d("0.5"), FirstIndex: 3,
	}))

	tests := []struct {
		isAsk   bool
		index   uint64
		price   string
		reverse string
	}{
		{true, 0, "100", "50"},
		{true, 1, "200", "100"},
		{true, 3, "800", "400"},
		{false, 3, "100", "200"},
		{false, 4, "50", "100"},
		{false, 5, "25", "50"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("ask=%v index=%d", tt.isAsk, tt.index), func(t *testing.T) {
			price, err := geometric.Price(tt.isAsk, 1, tt.index)
			require.NoError(t, err)
			assert.True(t, price.Equal(d(tt.price)), "price: %s", price)

			reverse, err := geometric.ReversePrice(tt.isAsk, 1, tt.index)
			require.NoError(t, err)
			assert.True(t, reverse.Equal(d(tt.reverse)), "reverse: %s", reverse)
		})
	}

	_, err := geometric.Price(false, 1, 2)
	assert.ErrorIs(t, err, ErrInvalidGridPrice)
}

func TestGeometricPricesStayExact(t *testing.T) {
	db := newTestDB(t)
	geometric := NewGeometric(db)

	// A ratio with a finite decimal expansion must not accumulate error over
	// many rungs: prices are derived by exact multiplication, never floats.
	require.NoError(t, geometric.Initialize(true, 1, Params{
		Price0: d("1000"), Delta: d("1.1"), FirstIndex: 0,
	}))

	price, err := geometric.Price(true, 1, 3)
	require.NoError(t, err)
	assert.True(t, price.Equal(d("1331")), "price: %s", price)

	reverse, err := geometric.ReversePrice(true, 1, 3)
	require.NoError(t, err)
	assert.True(t, reverse.Equal(d("1210")), "reverse: %s", reverse)
}

func TestGeometricValidate(t *testing.T) {
	db := newTestDB(t)
	geometric := NewGeometric(db)
	base := decimal.NewFromInt(1000)

	tests := []struct {
		name    string
		isAsk   bool
		params  Params
		count   uint32
		wantErr bool
	}{
		{"valid asks", true, Params{Price0: d("100"), Delta: d("1.1")}, 10, false},
		{"valid bids", false, Params{Price0: d("100"), Delta: d("0.9")}, 10, false},
		{"zero count is vacuous", false, Params{}, 0, false},
		{"ask ratio must exceed one", true, Params{Price0: d("100"), Delta: d("1")}, 2, true},
		{"bid ratio must be below one", false, Params{Price0: d("100"), Delta: d("1")}, 2, true},
		{"zero delta", false, Params{Price0: d("100"), Delta: d("0")}, 2, true},
		{"ask ladder overflows", true, Params{Price0: MaxPrice, Delta: d("2")}, 2, true},
		{"bid reverse overflows", false, Params{Price0: MaxPrice, Delta: d("0.5")}, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := geometric.Validate(tt.isAsk, base, tt.params, tt.count)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidGridPrice)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
