// Package pairs manages the trading pair listing: the mapping between the
// numeric pair ids grids are placed against and the asset symbols settlement
// moves.
package pairs

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/gridbook/gridbook-api/internal/types"
	"github.com/gridbook/gridbook-api/pkg/response"
)

var (
	ErrInvalidSymbol = errors.New("invalid asset symbol")
	ErrPairExists    = errors.New("trading pair already listed")
	ErrPairNotFound  = errors.New("trading pair not found")
)

func init() {
	response.RegisterError(ErrInvalidSymbol, http.StatusBadRequest, response.ErrCodeBadRequest)
	response.RegisterError(ErrPairExists, http.StatusConflict, response.ErrCodeDuplicateResource)
	response.RegisterError(ErrPairNotFound, http.StatusNotFound, response.ErrCodeNotFound)
}

type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{db: NewDatabase(gormDB)}
}

// Database exposes the pair lookup store to collaborating services.
func (s *Service) Database() *Database {
	return s.db
}

// CreatePair lists a new base/quote pair and assigns its numeric id.
func (s *Service) CreatePair(baseSymbol, quoteSymbol string) (*TradingPair, error) {
	baseSymbol = strings.ToUpper(strings.TrimSpace(baseSymbol))
	quoteSymbol = strings.ToUpper(strings.TrimSpace(quoteSymbol))
	if baseSymbol == "" || quoteSymbol == "" || baseSymbol == quoteSymbol {
		return nil, ErrInvalidSymbol
	}

	existing, err := s.db.GetPairBySymbols(baseSymbol, quoteSymbol)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrPairExists
	}

	pair := &TradingPair{
		ExternalID:  "PAIR_" + uuid.New().String(),
		BaseSymbol:  baseSymbol,
		QuoteSymbol: quoteSymbol,
	}
	if err := s.db.CreatePair(pair); err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "pairs").
		Uint64("pair_id", pair.PairID).
		Str("base", baseSymbol).
		Str("quote", quoteSymbol).
		Msg("trading pair listed")

	return pair, nil
}

func (s *Service) GetPair(pairID uint64) (*TradingPair, error) {
	pair, err := s.db.GetPair(pairID)
	if err != nil {
		return nil, err
	}
	if pair == nil {
		return nil, ErrPairNotFound
	}
	return pair, nil
}

func (s *Service) ListPairs() ([]TradingPair, error) {
	return s.db.ListPairs()
}

// GinHandlers contains the HTTP handlers for pair endpoints.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

func (h *GinHandlers) CreatePairHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.CreatePairRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		pair, err := h.service.CreatePair(req.BaseSymbol, req.QuoteSymbol)
		response.Handle(c, pair, err)
	}
}

func (h *GinHandlers) GetPairHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		pairID, err := strconv.ParseUint(c.Param("pair_id"), 10, 64)
		if err != nil {
			response.BadRequest(c, "pair_id must be a positive integer")
			return
		}
		pair, err := h.service.GetPair(pairID)
		response.Handle(c, pair, err)
	}
}

func (h *GinHandlers) ListPairsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		pairs, err := h.service.ListPairs()
		response.Handle(c, pairs, err)
	}
}
