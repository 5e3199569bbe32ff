package settlement

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Processor confirms pending fill settlements in the background. Balance
// moves already happened when the settlement record was written; the
// processor models the downstream confirmation step that finalizes them.
type Processor struct {
	db           *Database
	processDelay time.Duration
	confirmAfter time.Duration
}

func NewProcessor(db *Database) *Processor {
	return &Processor{
		db:           db,
		processDelay: 30 * time.Second,
		confirmAfter: time.Minute,
	}
}

// Start begins the confirmation loop and runs until the context is canceled.
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "settlement_processor").Logger()
	logger.Info().Msg("starting settlement processor")

	ticker := time.NewTicker(p.processDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down settlement processor")
			return
		case <-ticker.C:
			if err := p.confirmPendingSettlements(); err != nil {
				logger.Error().Err(err).Msg("failed to confirm pending settlements")
			}
		}
	}
}

func (p *Processor) confirmPendingSettlements() error {
	logger := log.With().Str("component", "settlement_processor").Logger()

	settlements, err := p.db.GetPendingSettlements()
	if err != nil {
		return err
	}
	if len(settlements) == 0 {
		return nil
	}

	logger.Info().Int("pending_count", len(settlements)).Msg("confirming pending settlements")

	now := time.Now()
	for i := range settlements {
		settlement := &settlements[i]
		if now.Sub(settlement.CreatedAt) < p.confirmAfter {
			continue
		}

		settlement.Status = StatusSettled
		settledAt := now
		settlement.SettledAt = &settledAt

		if err := p.db.UpdateFillSettlement(settlement); err != nil {
			logger.Error().
				Err(err).
				Str("settlement_id", settlement.SettlementID).
				Msg("failed to update settlement status")
			continue
		}

		logger.Debug().
			Str("settlement_id", settlement.SettlementID).
			Msg("settlement confirmed")
	}

	return nil
}
