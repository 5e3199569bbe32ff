package main

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gridbook/gridbook-api/internal/database"
	"github.com/gridbook/gridbook-api/internal/engine"
	"github.com/gridbook/gridbook-api/internal/market"
	"github.com/gridbook/gridbook-api/internal/pairs"
	"github.com/gridbook/gridbook-api/internal/settlement"
	"github.com/gridbook/gridbook-api/internal/strategy"
)

const (
	numSteps     = 500
	makerAccount = "sim-maker"
	takerAccount = "sim-taker"
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	// Configure pretty logging
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// opStats tracks performance statistics for one engine operation
type opStats struct {
	name      string
	durations []time.Duration
	failures  int
}

// addDuration records a new duration measurement for the operation
func (st *opStats) addDuration(d time.Duration) {
	st.durations = append(st.durations, d)
}

// calculate computes min, max, mean, median, and 95th percentile durations
func (st *opStats) calculate() (min, max, mean, median, p95 time.Duration) {
	if len(st.durations) == 0 {
		return 0, 0, 0, 0, 0
	}

	sort.Slice(st.durations, func(i, j int) bool {
		return st.durations[i] < st.durations[j]
	})

	min = st.durations[0]
	max = st.durations[len(st.durations)-1]

	var sum time.Duration
	for _, d := range st.durations {
		sum += d
	}
	mean = sum / time.Duration(len(st.durations))
	median = st.durations[len(st.durations)/2]

	p95idx := int(math.Ceil(float64(len(st.durations))*0.95)) - 1
	p95 = st.durations[p95idx]

	return
}

// simulation drives the engine directly: the market feed walks the mid
// price, and on every step the taker fills whichever rungs the price
// crossed.
type simulation struct {
	engine     *engine.Service
	settlement *settlement.Service
	feed       *market.Feed
	pairID     uint64
	grids      []*gridUnderTest
	stats      map[string]*opStats

	fills       int
	baseVolume  decimal.Decimal
	quoteVolume decimal.Decimal
}

// gridUnderTest is one placed grid and the order id ranges the simulation
// sweeps.
type gridUnderTest struct {
	gridID uint64
	askIDs []uint64
	bidIDs []uint64
}

func main() {
	db, err := gorm.Open(sqlite.Open("file:simulation?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	pairsService := pairs.NewService(db)
	pair, err := pairsService.CreatePair("BTC", "USD")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to list pair")
	}

	registry := strategy.NewRegistry(strategy.NewLinear(db), strategy.NewGeometric(db))
	sim := &simulation{
		engine:     engine.NewService(db, registry),
		settlement: settlement.NewService(db, pairsService.Database()),
		feed:       market.NewFeed(decimal.NewFromInt(100), decimal.NewFromInt(1), time.Now().UnixNano()),
		pairID:     pair.PairID,
		stats: map[string]*opStats{
			"place":    {name: "Place Grid"},
			"fill_ask": {name: "Fill Ask"},
			"fill_bid": {name: "Fill Bid"},
			"cancel":   {name: "Cancel Grid"},
		},
		baseVolume:  decimal.Zero,
		quoteVolume: decimal.Zero,
	}

	sim.fund()
	sim.placeGrids()

	log.Info().Int("steps", numSteps).Msg("starting market simulation")
	for i := 0; i < numSteps; i++ {
		price := sim.feed.Step()
		sim.crossRungs(price)
	}

	sim.teardown()
	sim.report()
}

// fund seeds the maker and taker with enough of both assets for the run.
func (s *simulation) fund() {
	deposits := []struct {
		account string
		asset   string
		amount  int64
	}{
		{makerAccount, "BTC", 100_000},
		{makerAccount, "USD", 10_000_000},
		{takerAccount, "BTC", 100_000},
		{takerAccount, "USD", 10_000_000},
	}
	for _, d := range deposits {
		if err := s.settlement.Deposit(d.account, d.asset, decimal.NewFromInt(d.amount)); err != nil {
			log.Fatal().Err(err).Msg("failed to fund account")
		}
	}
}

// placeGrids places a mix of grid shapes: a plain linear grid, a
// compounding one, a geometric grid, and a oneshot ask ladder.
func (s *simulation) placeGrids() {
	linearSide := func(isAsk bool, count uint32) engine.GridSideSpec {
		price0 := decimal.NewFromInt(105)
		if !isAsk {
			price0 = decimal.NewFromInt(95)
		}
		return engine.GridSideSpec{
			Strategy: strategy.KindLinear,
			Count:    count,
			Price0:   price0,
			Delta:    decimal.NewFromInt(5),
		}
	}

	placements := []engine.PlaceParams{
		{
			PairID:       s.pairID,
			PerOrderBase: decimal.NewFromInt(100),
			Fee:          1000,
			Ask:          linearSide(true, 5),
			Bid:          linearSide(false, 5),
		},
		{
			PairID:       s.pairID,
			PerOrderBase: decimal.NewFromInt(100),
			Fee:          1000,
			Compound:     true,
			Ask:          linearSide(true, 3),
			Bid:          linearSide(false, 3),
		},
		{
			PairID:       s.pairID,
			PerOrderBase: decimal.NewFromInt(100),
			Fee:          5000,
			Ask: engine.GridSideSpec{
				Strategy: strategy.KindGeometric,
				Count:    4,
				Price0:   decimal.NewFromInt(110),
				Delta:    decimal.RequireFromString("1.05"),
			},
			Bid: engine.GridSideSpec{
				Strategy: strategy.KindGeometric,
				Count:    4,
				Price0:   decimal.NewFromInt(90),
				Delta:    decimal.RequireFromString("0.95"),
			},
		},
		{
			PairID:       s.pairID,
			PerOrderBase: decimal.NewFromInt(100),
			Oneshot:      true,
			Ask:          linearSide(true, 3),
		},
	}

	for i, params := range placements {
		start := time.Now()
		result, err := s.engine.PlaceGrid(makerAccount, params, fmt.Sprintf("sim-grid-%d", i))
		s.stats["place"].addDuration(time.Since(start))
		if err != nil {
			log.Fatal().Err(err).Int("grid", i).Msg("failed to place grid")
		}

		if err := s.settlement.ReservePlacement(makerAccount, s.pairID, result.BaseRequired, result.QuoteRequired); err != nil {
			log.Fatal().Err(err).Msg("failed to reserve placement")
		}

		grid := &gridUnderTest{gridID: result.GridID}
		_, askStart, _ := engine.DecodeOrderID(result.StartAskID)
		for j := uint32(0); j < params.Ask.Count; j++ {
			grid.askIDs = append(grid.askIDs, engine.EncodeOrderID(result.GridID, true, askStart+uint64(j)))
		}
		_, bidStart, _ := engine.DecodeOrderID(result.StartBidID)
		for j := uint32(0); j < params.Bid.Count; j++ {
			grid.bidIDs = append(grid.bidIDs, engine.EncodeOrderID(result.GridID, false, bidStart+uint64(j)))
		}
		s.grids = append(s.grids, grid)

		log.Info().
			Uint64("grid_id", result.GridID).
			Str("base_required", result.BaseRequired.String()).
			Str("quote_required", result.QuoteRequired.String()).
			Msg("grid placed")
	}
}

// crossRungs fills every rung the current price crossed: asks priced at or
// below the mid sell to the taker, bids priced at or above it buy from the
// taker.
func (s *simulation) crossRungs(price decimal.Decimal) {
	for _, grid := range s.grids {
		for _, orderID := range grid.askIDs {
			s.tryFill(orderID, price, true)
		}
		for _, orderID := range grid.bidIDs {
			s.tryFill(orderID, price, false)
		}
	}
}

func (s *simulation) tryFill(orderID uint64, price decimal.Decimal, ask bool) {
	info, err := s.engine.GetOrderInfo(orderID)
	if err != nil {
		return
	}
	if info.Status != "NORMAL" {
		return
	}

	// Forward legs trade at the rung price, flipped legs at the reverse
	// price the order moved to.
	legPrice := info.Price
	available := info.Amount
	if ask != info.IsAsk {
		legPrice = info.ReversePrice
		available = info.RevAmount
	}

	// An ask leg is crossed when the mid reaches it from below, a bid leg
	// from above.
	if ask && legPrice.GreaterThan(price) {
		return
	}
	if !ask && legPrice.LessThan(price) {
		return
	}

	statsKey := "fill_ask"
	fill := s.engine.FillAsk
	if !ask {
		statsKey = "fill_bid"
		fill = s.engine.FillBid
		// Bid legs rest quote; request the base it can buy.
		available = available.Div(legPrice).Floor()
	}
	if !available.IsPositive() {
		return
	}

	start := time.Now()
	result, err := fill(orderID, available)
	s.stats[statsKey].addDuration(time.Since(start))
	if err != nil {
		if !errors.Is(err, engine.ErrNotEnoughToFill) && !errors.Is(err, engine.ErrReversedOneshotOrderFill) {
			s.stats[statsKey].failures++
		}
		return
	}

	if err := s.settlement.ApplyFills(takerAccount, []engine.OrderFillResult{*result}); err != nil {
		log.Fatal().Err(err).Msg("settlement rejected a fill")
	}

	s.fills++
	s.baseVolume = s.baseVolume.Add(result.FilledBase)
	s.quoteVolume = s.quoteVolume.Add(result.FilledQuote)
}

// teardown withdraws profits and cancels every grid, returning all escrowed
// funds to the maker.
func (s *simulation) teardown() {
	for _, grid := range s.grids {
		if _, amount, err := s.engine.WithdrawProfits(makerAccount, grid.gridID); err == nil {
			if err := s.settlement.CreditQuote(makerAccount, s.pairID, amount); err != nil {
				log.Fatal().Err(err).Msg("failed to credit withdrawn profits")
			}
			log.Info().
				Uint64("grid_id", grid.gridID).
				Str("amount", amount.String()).
				Msg("profits withdrawn")
		}

		start := time.Now()
		result, err := s.engine.CancelGrid(makerAccount, grid.gridID)
		s.stats["cancel"].addDuration(time.Since(start))
		if err != nil {
			log.Fatal().Err(err).Uint64("grid_id", grid.gridID).Msg("failed to cancel grid")
		}
		if err := s.settlement.ApplyCancel(makerAccount, s.pairID, result.BaseRefund, result.QuoteRefund); err != nil {
			log.Fatal().Err(err).Msg("failed to refund cancellation")
		}
	}
}

// report prints fill totals, final balances, and per-operation latency
// statistics.
func (s *simulation) report() {
	log.Info().
		Int("fills", s.fills).
		Str("base_volume", s.baseVolume.String()).
		Str("quote_volume", s.quoteVolume.String()).
		Str("final_price", s.feed.Price().String()).
		Msg("simulation complete")

	for _, account := range []string{makerAccount, takerAccount} {
		balances, err := s.settlement.GetBalances(account)
		if err != nil {
			log.Error().Err(err).Msg("failed to read balances")
			continue
		}
		for _, balance := range balances {
			log.Info().
				Str("account", account).
				Str("asset", balance.Asset).
				Str("available", balance.Available.String()).
				Msg("final balance")
		}
	}

	fees, err := s.settlement.GetProtocolFees()
	if err == nil {
		for _, fee := range fees {
			log.Info().
				Str("asset", fee.Asset).
				Str("accrued", fee.Accrued.String()).
				Msg("protocol fees collected")
		}
	}

	fmt.Println("\nOperation latency:")
	for _, key := range []string{"place", "fill_ask", "fill_bid", "cancel"} {
		st := s.stats[key]
		if len(st.durations) == 0 {
			continue
		}
		min, max, mean, median, p95 := st.calculate()
		fmt.Printf("  %-12s calls=%-5d failures=%-3d min=%-10s max=%-10s mean=%-10s median=%-10s p95=%s\n",
			st.name, len(st.durations), st.failures, min, max, mean, median, p95)
	}
}
