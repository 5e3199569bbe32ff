// Package market provides a simulated mid-price feed: a bounded random walk
// used by the simulation binary to decide which grid rungs the market crosses.
package market

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Feed is a random-walk mid price. Each step moves the price up or down by
// one tick; the price never drops below one tick.
type Feed struct {
	mu    sync.RWMutex
	price decimal.Decimal
	tick  decimal.Decimal
	rng   *rand.Rand
}

func NewFeed(start, tick decimal.Decimal, seed int64) *Feed {
	return &Feed{
		price: start,
		tick:  tick,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Price returns the current mid price.
func (f *Feed) Price() decimal.Decimal {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.price
}

// Step advances the walk by one tick and returns the new price.
func (f *Feed) Step() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.rng.Intn(2) == 0 {
		f.price = f.price.Add(f.tick)
	} else {
		next := f.price.Sub(f.tick)
		if next.LessThan(f.tick) {
			next = f.tick
		}
		f.price = next
	}
	return f.price
}

// Run steps the walk on a fixed interval until the context is canceled.
func (f *Feed) Run(ctx context.Context, interval time.Duration) {
	logger := log.With().Str("component", "market_feed").Logger()
	logger.Info().Str("price", f.Price().String()).Msg("starting market feed")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down market feed")
			return
		case <-ticker.C:
			price := f.Step()
			logger.Debug().Str("price", price.String()).Msg("price moved")
		}
	}
}
