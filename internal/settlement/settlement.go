// Package settlement owns custody: account balances per asset, the balance
// moves behind every engine result, and the per-asset protocol fee accruals.
// It trusts the amounts the engine reports and enforces only that no balance
// ever goes negative.
package settlement

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/gridbook/gridbook-api/internal/engine"
	"github.com/gridbook/gridbook-api/internal/pairs"
	"github.com/gridbook/gridbook-api/internal/types"
	"github.com/gridbook/gridbook-api/pkg/response"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrUnknownPair         = errors.New("unknown trading pair")
	ErrSettlementNotFound  = errors.New("settlement not found")
)

func init() {
	response.RegisterError(ErrInsufficientBalance, http.StatusBadRequest, response.ErrCodeBadRequest)
	response.RegisterError(ErrInvalidAmount, http.StatusBadRequest, response.ErrCodeBadRequest)
	response.RegisterError(ErrUnknownPair, http.StatusNotFound, response.ErrCodeNotFound)
	response.RegisterError(ErrSettlementNotFound, http.StatusNotFound, response.ErrCodeNotFound)
}

// Service applies balance moves for deposits, placements, fills, and
// refunds. Every multi-balance move is one transaction.
type Service struct {
	mu     sync.Mutex
	gormDB *gorm.DB
	db     *Database
	pairs  *pairs.Database
}

func NewService(gormDB *gorm.DB, pairsDB *pairs.Database) *Service {
	return &Service{
		gormDB: gormDB,
		db:     NewDatabase(gormDB),
		pairs:  pairsDB,
	}
}

// Deposit credits an account with external funds.
func (s *Service) Deposit(account, asset string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.inTx(func(tx *gorm.DB) error {
		return s.db.credit(tx, account, asset, amount)
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("service", "settlement").
		Str("account", account).
		Str("asset", asset).
		Str("amount", amount.String()).
		Msg("deposit credited")
	return nil
}

// Withdraw debits an account for an external withdrawal.
func (s *Service) Withdraw(account, asset string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(func(tx *gorm.DB) error {
		return s.db.debit(tx, account, asset, amount)
	})
}

// ReservePlacement escrows the maker's grid deposit: the base for the asks
// and the quote for the bids leave the maker's balances together or not at
// all.
func (s *Service) ReservePlacement(maker string, pairID uint64, baseAmt, quoteAmt decimal.Decimal) error {
	pair, err := s.resolvePair(pairID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(func(tx *gorm.DB) error {
		if baseAmt.IsPositive() {
			if err := s.db.debit(tx, maker, pair.BaseSymbol, baseAmt); err != nil {
				return err
			}
		}
		if quoteAmt.IsPositive() {
			if err := s.db.debit(tx, maker, pair.QuoteSymbol, quoteAmt); err != nil {
				return err
			}
		}
		return nil
	})
}

// ApplyFills settles a batch of engine fill results against the taker. An
// ask fill has the taker pay the quote volume plus both fees for the base; a
// bid fill has the taker deliver base for the quote volume net of both fees.
// The maker's side stays escrowed inside the grid; protocol fees accrue per
// asset. One settlement record is written per fill.
func (s *Service) ApplyFills(taker string, results []engine.OrderFillResult) error {
	if len(results) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.inTx(func(tx *gorm.DB) error {
		for i := range results {
			result := &results[i]
			pair, err := s.resolvePair(result.PairID)
			if err != nil {
				return err
			}

			if result.IsAskFill {
				takerPays := result.FilledQuote.Add(result.MakerFee).Add(result.ProtocolFee)
				if err := s.db.debit(tx, taker, pair.QuoteSymbol, takerPays); err != nil {
					return err
				}
				if err := s.db.credit(tx, taker, pair.BaseSymbol, result.FilledBase); err != nil {
					return err
				}
			} else {
				takerGets := result.FilledQuote.Sub(result.MakerFee).Sub(result.ProtocolFee)
				if err := s.db.debit(tx, taker, pair.BaseSymbol, result.FilledBase); err != nil {
					return err
				}
				if err := s.db.credit(tx, taker, pair.QuoteSymbol, takerGets); err != nil {
					return err
				}
			}

			if err := s.db.accrueProtocolFee(tx, pair.QuoteSymbol, result.ProtocolFee); err != nil {
				return err
			}

			record := &FillSettlement{
				SettlementID: "STL_" + uuid.New().String(),
				PairID:       result.PairID,
				GridID:       result.GridID,
				OrderID:      result.OrderID,
				Taker:        taker,
				Maker:        result.Maker,
				IsAskFill:    result.IsAskFill,
				FilledBase:   result.FilledBase,
				FilledQuote:  result.FilledQuote,
				MakerFee:     result.MakerFee,
				ProtocolFee:  result.ProtocolFee,
				Status:       StatusPending,
			}
			if err := tx.Create(record).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("service", "settlement").
		Str("taker", taker).
		Int("fills", len(results)).
		Msg("fills settled")
	return nil
}

// ApplyCancel returns a cancellation refund to the maker.
func (s *Service) ApplyCancel(maker string, pairID uint64, baseAmt, quoteAmt decimal.Decimal) error {
	pair, err := s.resolvePair(pairID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(func(tx *gorm.DB) error {
		if baseAmt.IsPositive() {
			if err := s.db.credit(tx, maker, pair.BaseSymbol, baseAmt); err != nil {
				return err
			}
		}
		if quoteAmt.IsPositive() {
			if err := s.db.credit(tx, maker, pair.QuoteSymbol, quoteAmt); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreditQuote credits an account in a pair's quote asset, used for profit
// withdrawals.
func (s *Service) CreditQuote(account string, pairID uint64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	pair, err := s.resolvePair(pairID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(func(tx *gorm.DB) error {
		return s.db.credit(tx, account, pair.QuoteSymbol, amount)
	})
}

func (s *Service) GetBalances(account string) ([]AccountBalance, error) {
	return s.db.GetBalances(account)
}

func (s *Service) GetBalance(account, asset string) (decimal.Decimal, error) {
	return s.db.GetBalance(account, asset)
}

func (s *Service) GetSettlement(settlementID string) (*FillSettlement, error) {
	settlement, err := s.db.GetFillSettlement(settlementID)
	if err != nil {
		return nil, err
	}
	if settlement == nil {
		return nil, ErrSettlementNotFound
	}
	return settlement, nil
}

func (s *Service) GetAccountSettlements(account string) ([]FillSettlement, error) {
	return s.db.GetAccountSettlements(account)
}

func (s *Service) GetProtocolFees() ([]ProtocolFeeAccrual, error) {
	return s.db.GetProtocolFees()
}

// Database exposes the settlement store to the background processor.
func (s *Service) Database() *Database {
	return s.db
}

func (s *Service) resolvePair(pairID uint64) (*pairs.TradingPair, error) {
	pair, err := s.pairs.GetPair(pairID)
	if err != nil {
		return nil, err
	}
	if pair == nil {
		return nil, ErrUnknownPair
	}
	return pair, nil
}

func (s *Service) inTx(fn func(tx *gorm.DB) error) error {
	tx := s.gormDB.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

// GinHandlers contains the HTTP handlers for balance and settlement
// endpoints.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// DepositHandler handles POST requests crediting external funds to an
// account.
func (h *GinHandlers) DepositHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.DepositRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		if err := h.service.Deposit(req.Account, req.Asset, req.Amount); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"account": req.Account, "asset": req.Asset, "amount": req.Amount})
	}
}

// WithdrawHandler handles POST requests withdrawing an account's funds. The
// account comes from the caller's token.
func (h *GinHandlers) WithdrawHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		account := c.GetString("clientID")
		if account == "" {
			response.Unauthorized(c, "Invalid client ID in token")
			return
		}
		var req types.WithdrawRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		if err := h.service.Withdraw(account, req.Asset, req.Amount); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"account": account, "asset": req.Asset, "amount": req.Amount})
	}
}

// GetBalancesHandler returns the caller's balances across all assets.
func (h *GinHandlers) GetBalancesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		account := c.GetString("clientID")
		if account == "" {
			response.Unauthorized(c, "Invalid client ID in token")
			return
		}
		balances, err := h.service.GetBalances(account)
		response.Handle(c, balances, err)
	}
}

func (h *GinHandlers) GetSettlementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		settlement, err := h.service.GetSettlement(c.Param("settlement_id"))
		response.Handle(c, settlement, err)
	}
}

// GetAccountSettlementsHandler returns every settlement the caller took part
// in, on either side.
func (h *GinHandlers) GetAccountSettlementsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		account := c.GetString("clientID")
		if account == "" {
			response.Unauthorized(c, "Invalid client ID in token")
			return
		}
		settlements, err := h.service.GetAccountSettlements(account)
		response.Handle(c, settlements, err)
	}
}

func (h *GinHandlers) GetProtocolFeesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		fees, err := h.service.GetProtocolFees()
		response.Handle(c, fees, err)
	}
}
