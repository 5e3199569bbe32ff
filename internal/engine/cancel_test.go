package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelGridRefundsBothLegs(t *testing.T) {
	s := newTestService(t)
	placed := placeLinearGrid(t, s, "maker-1", 2, 1)

	// Partially work both sides so the refund has to gather resting amounts,
	// flip legs, and the profit pool.
	_, err := s.FillAsk(placed.StartAskID, dec(400))
	require.NoError(t, err)
	_, err = s.FillBid(placed.StartBidID, dec(400))
	require.NoError(t, err)

	result, err := s.CancelGrid("maker-1", placed.GridID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, result.PairID)
	// Base: 600 left on the filled ask, 1000 on the untouched ask, 400 bought
	// by the bid. Quote: 40003 on the ask flip leg, 54000 left on the bid,
	// plus the 3 in the profit pool.
	assert.True(t, result.BaseRefund.Equal(dec(2000)), "base: %s", result.BaseRefund)
	assert.True(t, result.QuoteRefund.Equal(dec(94006)), "quote: %s", result.QuoteRefund)

	_, err = s.CancelGrid("maker-1", placed.GridID)
	assert.ErrorIs(t, err, ErrOrderCanceled)
}

func TestCancelGridUntouchedRefundsDeposit(t *testing.T) {
	s := newTestService(t)
	placed := placeLinearGrid(t, s, "maker-1", 3, 2)

	result, err := s.CancelGrid("maker-1", placed.GridID)
	require.NoError(t, err)
	assert.True(t, result.BaseRefund.Equal(placed.BaseRequired))
	assert.True(t, result.QuoteRefund.Equal(placed.QuoteRequired))
}

func TestCancelGridOwnerOnly(t *testing.T) {
	s := newTestService(t)
	placed := placeLinearGrid(t, s, "maker-1", 1, 0)

	_, err := s.CancelGrid("intruder", placed.GridID)
	assert.ErrorIs(t, err, ErrNotGridOwner)
	_, err = s.CancelGrid("maker-1", 9999)
	assert.ErrorIs(t, err, ErrGridNotFound)
}

func TestCancelOrders(t *testing.T) {
	s := newTestService(t)
	placed := placeLinearGrid(t, s, "maker-1", 2, 0)
	gridID, askStart, _ := DecodeOrderID(placed.StartAskID)
	second := EncodeOrderID(gridID, true, askStart+1)

	result, err := s.CancelOrders("maker-1", gridID, []uint64{second})
	require.NoError(t, err)
	assert.True(t, result.BaseRefund.Equal(dec(1000)))
	assert.True(t, result.QuoteRefund.IsZero())

	// The tombstone blocks fills and repeat cancellations.
	_, err = s.FillAsk(second, dec(100))
	assert.ErrorIs(t, err, ErrOrderCanceled)
	_, err = s.CancelOrders("maker-1", gridID, []uint64{second})
	assert.ErrorIs(t, err, ErrOrderCanceled)

	// The later grid cancel sweeps only what is still alive.
	gridResult, err := s.CancelGrid("maker-1", gridID)
	require.NoError(t, err)
	assert.True(t, gridResult.BaseRefund.Equal(dec(1000)))
}

func TestCancelOrdersIsStrict(t *testing.T) {
	s := newTestService(t)
	placed := placeLinearGrid(t, s, "maker-1", 2, 0)
	other := placeLinearGrid(t, s, "maker-1", 1, 0)
	gridID, _, _ := DecodeOrderID(placed.StartAskID)

	_, err := s.CancelOrders("maker-1", gridID, nil)
	assert.ErrorIs(t, err, ErrInvalidParam)

	// An id from another grid invalidates the whole list.
	_, err = s.CancelOrders("maker-1", gridID, []uint64{other.StartAskID})
	assert.ErrorIs(t, err, ErrInvalidParam)

	// A duplicate id counts as canceling an already canceled order, and the
	// failed call must leave the slot untouched.
	_, err = s.CancelOrders("maker-1", gridID, []uint64{placed.StartAskID, placed.StartAskID})
	assert.ErrorIs(t, err, ErrOrderCanceled)

	info, err := s.GetOrderInfo(placed.StartAskID)
	require.NoError(t, err)
	assert.Equal(t, "NORMAL", info.Status)
	assert.True(t, info.Amount.Equal(dec(1000)))
}

func TestCancelGridSweepsFinishedOneshot(t *testing.T) {
	s := newTestService(t)
	placed := placeLinearGrid(t, s, "maker-1", 1, 0, func(p *PlaceParams) {
		p.Oneshot = true
	})

	// Exhaust the order: it finishes as DONE but its flip leg still belongs
	// to the maker.
	fill, err := s.FillAsk(placed.StartAskID, dec(1000))
	require.NoError(t, err)
	require.True(t, fill.Amount.IsZero())

	result, err := s.CancelGrid("maker-1", placed.GridID)
	require.NoError(t, err)
	assert.True(t, result.BaseRefund.IsZero())
	// The entire proceeds come back as quote: the capped flip leg plus the
	// realized excess.
	assert.True(t, result.QuoteRefund.Equal(fill.RevAmount.Add(fill.Profit)), "quote: %s", result.QuoteRefund)
}
