package strategy

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&SideParams{}))
	return db
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestLinearPrices(t *testing.T) {
	db := newTestDB(t)
	linear := NewLinear(db)

	require.NoError(t, linear.Initialize(true, 1, Params{
		Price0: d("100"), Delta: d("10"), FirstIndex: 5,
	}))
	require.NoError(t, linear.Initialize(false, 1, Params{
		Price0: d("90"), Delta: d("10"), FirstIndex: 7,
	}))

	tests := []struct {
		isAsk       bool
		index       uint64
		price       string
		reverse     string
	}{
		{true, 5, "100", "90"},
		{true, 6, "110", "100"},
		{true, 9, "140", "130"},
		{false, 7, "90", "100"},
		{false, 8, "80", "90"},
		{false, 10, "60", "70"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("ask=%v index=%d", tt.isAsk, tt.index), func(t *testing.T) {
			price, err := linear.Price(tt.isAsk, 1, tt.index)
			require.NoError(t, err)
			assert.True(t, price.Equal(d(tt.price)), "price: %s", price)

			reverse, err := linear.ReversePrice(tt.isAsk, 1, tt.index)
			require.NoError(t, err)
			assert.True(t, reverse.Equal(d(tt.reverse)), "reverse: %s", reverse)
		})
	}

	// Indices below the side's range have no price.
	_, err := linear.Price(true, 1, 4)
	assert.ErrorIs(t, err, ErrInvalidGridPrice)

	// Unknown grids have no parameters.
	_, err = linear.Price(true, 2, 5)
	assert.ErrorIs(t, err, ErrParamsNotFound)
}

func TestLinearValidate(t *testing.T) {
	db := newTestDB(t)
	linear := NewLinear(db)
	base := decimal.NewFromInt(1000)

	tests := []struct {
		name    string
		isAsk   bool
		params  Params
		count   uint32
		wantErr bool
	}{
		{"valid asks", true, Params{Price0: d("100"), Delta: d("10")}, 5, false},
		{"valid bids", false, Params{Price0: d("90"), Delta: d("10")}, 5, false},
		{"zero count is vacuous", true, Params{}, 0, false},
		{"zero price0", true, Params{Price0: d("0"), Delta: d("10")}, 2, true},
		{"zero delta", true, Params{Price0: d("100"), Delta: d("0")}, 2, true},
		{"ask reverse underflows", true, Params{Price0: d("10"), Delta: d("10")}, 2, true},
		{"bid ladder underflows", false, Params{Price0: d("20"), Delta: d("10")}, 3, true},
		{"ask ladder overflows", true, Params{Price0: MaxPrice, Delta: d("1")}, 2, true},
		{"bid reverse overflows", false, Params{Price0: MaxPrice, Delta: d("1")}, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := linear.Validate(tt.isAsk, base, tt.params, tt.count)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidGridPrice)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	db := newTestDB(t)
	registry := NewRegistry(NewLinear(db), NewGeometric(db))

	linear, err := registry.Get(KindLinear)
	require.NoError(t, err)
	assert.Equal(t, KindLinear, linear.Name())

	geometric, err := registry.Get(KindGeometric)
	require.NoError(t, err)
	assert.Equal(t, KindGeometric, geometric.Name())

	_, err = registry.Get("fibonacci")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}
