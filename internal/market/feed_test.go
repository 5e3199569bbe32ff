package market

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFeedStepsByOneTick(t *testing.T) {
	feed := NewFeed(decimal.NewFromInt(100), decimal.NewFromInt(10), 1)

	previous := feed.Price()
	for i := 0; i < 50; i++ {
		next := feed.Step()
		move := next.Sub(previous).Abs()
		// Every move is exactly one tick, except when pinned at the floor.
		if !move.Equal(decimal.NewFromInt(10)) {
			assert.True(t, next.Equal(decimal.NewFromInt(10)), "price: %s", next)
		}
		previous = next
	}
}

func TestFeedNeverGoesBelowOneTick(t *testing.T) {
	feed := NewFeed(decimal.NewFromInt(10), decimal.NewFromInt(10), 2)

	for i := 0; i < 200; i++ {
		price := feed.Step()
		assert.True(t, price.GreaterThanOrEqual(decimal.NewFromInt(10)), "price: %s", price)
	}
}
