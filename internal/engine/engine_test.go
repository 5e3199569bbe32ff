package engine

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gridbook/gridbook-api/internal/strategy"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&GridConfig{},
		&GridOrder{},
		&GridCounter{},
		&IdempotencyRecord{},
		&strategy.SideParams{},
	))

	registry := strategy.NewRegistry(strategy.NewLinear(db), strategy.NewGeometric(db))
	return NewService(db, registry)
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// placeLinearGrid places a grid with 1000 base per order, fee 100, asks
// ascending from 100 by 10 and bids descending from 90 by 10.
func placeLinearGrid(t *testing.T, s *Service, owner string, askCount, bidCount uint32, opts ...func(*PlaceParams)) *PlaceResult {
	t.Helper()

	params := PlaceParams{
		PairID:       1,
		PerOrderBase: dec(1000),
		Fee:          100,
		Ask:          GridSideSpec{Strategy: strategy.KindLinear, Count: askCount, Price0: dec(100), Delta: dec(10)},
		Bid:          GridSideSpec{Strategy: strategy.KindLinear, Count: bidCount, Price0: dec(90), Delta: dec(10)},
	}
	for _, opt := range opts {
		opt(&params)
	}

	result, err := s.PlaceGrid(owner, params, "")
	require.NoError(t, err)
	return result
}

func TestPlaceGridDeposits(t *testing.T) {
	s := newTestService(t)

	// Asks only: the deposit is base, one order's worth per rung.
	askOnly := placeLinearGrid(t, s, "maker-1", 3, 0)
	assert.True(t, askOnly.BaseRequired.Equal(dec(3000)), "base: %s", askOnly.BaseRequired)
	assert.True(t, askOnly.QuoteRequired.IsZero(), "quote: %s", askOnly.QuoteRequired)
	assert.NotZero(t, askOnly.StartAskID)
	assert.Zero(t, askOnly.StartBidID)

	// Bids price at 90 and 80: the quote deposit is priced per rung.
	both := placeLinearGrid(t, s, "maker-1", 3, 2)
	assert.True(t, both.BaseRequired.Equal(dec(3000)))
	assert.True(t, both.QuoteRequired.Equal(dec(170000)), "quote: %s", both.QuoteRequired)
	assert.NotEqual(t, askOnly.GridID, both.GridID)
}

func TestPlaceGridRejectsBadParams(t *testing.T) {
	s := newTestService(t)

	base := PlaceParams{
		PairID:       1,
		PerOrderBase: dec(1000),
		Fee:          100,
		Ask:          GridSideSpec{Strategy: strategy.KindLinear, Count: 2, Price0: dec(100), Delta: dec(10)},
	}

	tests := []struct {
		name    string
		mutate  func(*PlaceParams)
		wantErr error
	}{
		{
			name:    "no orders on either side",
			mutate:  func(p *PlaceParams) { p.Ask.Count = 0 },
			wantErr: ErrZeroGridOrderCount,
		},
		{
			name:    "fee below minimum",
			mutate:  func(p *PlaceParams) { p.Fee = MinFee - 1 },
			wantErr: ErrInvalidGridFee,
		},
		{
			name:    "fee above maximum",
			mutate:  func(p *PlaceParams) { p.Fee = MaxFee + 1 },
			wantErr: ErrInvalidGridFee,
		},
		{
			name:    "zero per-order base",
			mutate:  func(p *PlaceParams) { p.PerOrderBase = decimal.Zero },
			wantErr: ErrInvalidParam,
		},
		{
			name:    "fractional per-order base",
			mutate:  func(p *PlaceParams) { p.PerOrderBase = decimal.RequireFromString("10.5") },
			wantErr: ErrInvalidParam,
		},
		{
			name:    "unknown strategy",
			mutate:  func(p *PlaceParams) { p.Ask.Strategy = "fibonacci" },
			wantErr: ErrInvalidParam,
		},
		{
			name: "bid ladder underflows zero",
			mutate: func(p *PlaceParams) {
				p.Bid = GridSideSpec{Strategy: strategy.KindLinear, Count: 3, Price0: dec(20), Delta: dec(10)}
			},
			wantErr: strategy.ErrInvalidGridPrice,
		},
		{
			name: "first ask reverse price not positive",
			mutate: func(p *PlaceParams) {
				p.Ask = GridSideSpec{Strategy: strategy.KindLinear, Count: 2, Price0: dec(10), Delta: dec(10)}
			},
			wantErr: strategy.ErrInvalidGridPrice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := base
			tt.mutate(&params)
			_, err := s.PlaceGrid("maker-1", params, "")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPlaceGridIdempotency(t *testing.T) {
	s := newTestService(t)

	params := PlaceParams{
		PairID:       1,
		PerOrderBase: dec(1000),
		Fee:          100,
		Ask:          GridSideSpec{Strategy: strategy.KindLinear, Count: 2, Price0: dec(100), Delta: dec(10)},
	}

	first, err := s.PlaceGrid("maker-1", params, "key-1")
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	replay, err := s.PlaceGrid("maker-1", params, "key-1")
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Equal(t, first.GridID, replay.GridID)
	assert.Equal(t, first.StartAskID, replay.StartAskID)
	assert.True(t, first.BaseRequired.Equal(replay.BaseRequired))

	fresh, err := s.PlaceGrid("maker-1", params, "key-2")
	require.NoError(t, err)
	assert.False(t, fresh.Replayed)
	assert.NotEqual(t, first.GridID, fresh.GridID)
}

func TestOrderIndicesAreGloballyUnique(t *testing.T) {
	s := newTestService(t)

	first := placeLinearGrid(t, s, "maker-1", 2, 2)
	second := placeLinearGrid(t, s, "maker-2", 2, 2)

	_, firstAskStart, _ := DecodeOrderID(first.StartAskID)
	_, secondAskStart, _ := DecodeOrderID(second.StartAskID)
	assert.Equal(t, firstAskStart+2, secondAskStart)

	_, firstBidStart, _ := DecodeOrderID(first.StartBidID)
	_, secondBidStart, _ := DecodeOrderID(second.StartBidID)
	assert.Equal(t, firstBidStart+2, secondBidStart)
}

func TestModifyFee(t *testing.T) {
	s := newTestService(t)
	placed := placeLinearGrid(t, s, "maker-1", 2, 0)

	require.NoError(t, s.ModifyFee("maker-1", placed.GridID, 500))
	grid, err := s.GetGridConfig(placed.GridID)
	require.NoError(t, err)
	assert.EqualValues(t, 500, grid.Fee)

	assert.ErrorIs(t, s.ModifyFee("intruder", placed.GridID, 500), ErrNotGridOwner)
	assert.ErrorIs(t, s.ModifyFee("maker-1", placed.GridID, MinFee-1), ErrInvalidGridFee)
	assert.ErrorIs(t, s.ModifyFee("maker-1", 9999, 500), ErrGridNotFound)
}

func TestOneshotFeeForcedAndLocked(t *testing.T) {
	s := newTestService(t)

	// The requested fee would be rejected on a normal grid; oneshot grids get
	// the protocol rate instead.
	placed := placeLinearGrid(t, s, "maker-1", 1, 0, func(p *PlaceParams) {
		p.Oneshot = true
		p.Fee = 5
	})

	grid, err := s.GetGridConfig(placed.GridID)
	require.NoError(t, err)
	assert.EqualValues(t, OneshotFee, grid.Fee)
	assert.ErrorIs(t, s.ModifyFee("maker-1", placed.GridID, 500), ErrCannotModifyOneshotFee)
}

func TestWithdrawProfits(t *testing.T) {
	s := newTestService(t)
	placed := placeLinearGrid(t, s, "maker-1", 0, 1)

	_, _, err := s.WithdrawProfits("maker-1", placed.GridID)
	assert.ErrorIs(t, err, ErrNoProfits)

	// A non-compounding bid fill realizes the maker fee into the pool:
	// 400 base at 90 is 36000 quote, fee 3, all of it maker share.
	fill, err := s.FillBid(placed.StartBidID, dec(400))
	require.NoError(t, err)
	require.True(t, fill.Profit.Equal(dec(3)), "profit: %s", fill.Profit)

	_, _, err = s.WithdrawProfits("intruder", placed.GridID)
	assert.ErrorIs(t, err, ErrNotGridOwner)

	pairID, amount, err := s.WithdrawProfits("maker-1", placed.GridID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pairID)
	assert.True(t, amount.Equal(dec(3)), "amount: %s", amount)

	// The pool is empty after withdrawal.
	_, _, err = s.WithdrawProfits("maker-1", placed.GridID)
	assert.ErrorIs(t, err, ErrNoProfits)
}

func TestGetOrderInfoDerivesUnmaterializedSlots(t *testing.T) {
	s := newTestService(t)
	placed := placeLinearGrid(t, s, "maker-1", 2, 1)

	ask, err := s.GetOrderInfo(placed.StartAskID)
	require.NoError(t, err)
	assert.True(t, ask.IsAsk)
	assert.True(t, ask.Amount.Equal(dec(1000)))
	assert.True(t, ask.RevAmount.IsZero())
	assert.True(t, ask.Price.Equal(dec(100)))
	assert.True(t, ask.ReversePrice.Equal(dec(90)))
	assert.Equal(t, "NORMAL", ask.Status)

	gridID, askStart, _ := DecodeOrderID(placed.StartAskID)
	second, err := s.GetOrderInfo(EncodeOrderID(gridID, true, askStart+1))
	require.NoError(t, err)
	assert.True(t, second.Price.Equal(dec(110)))
	assert.True(t, second.ReversePrice.Equal(dec(100)))

	// A bid slot rests the quote priced at its rung.
	bid, err := s.GetOrderInfo(placed.StartBidID)
	require.NoError(t, err)
	assert.False(t, bid.IsAsk)
	assert.True(t, bid.Amount.Equal(dec(90000)), "amount: %s", bid.Amount)
	assert.True(t, bid.Price.Equal(dec(90)))
	assert.True(t, bid.ReversePrice.Equal(dec(100)))

	_, err = s.GetOrderInfo(EncodeOrderID(gridID, true, askStart+2))
	assert.ErrorIs(t, err, ErrOrderNotFound)
	_, err = s.GetOrderInfo(EncodeOrderID(9999, true, 0))
	assert.ErrorIs(t, err, ErrGridNotFound)
}

func TestGetOrderInfoReflectsGridCancellation(t *testing.T) {
	s := newTestService(t)
	placed := placeLinearGrid(t, s, "maker-1", 1, 0)

	_, err := s.CancelGrid("maker-1", placed.GridID)
	require.NoError(t, err)

	info, err := s.GetOrderInfo(placed.StartAskID)
	require.NoError(t, err)
	assert.Equal(t, "CANCELED", info.Status)
}
