package engine

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/gridbook/gridbook-api/internal/auth"
	"github.com/gridbook/gridbook-api/internal/types"
	"github.com/gridbook/gridbook-api/pkg/response"
)

// Settler is the settlement/custody collaborator: it moves the assets the
// engine's structured results describe. The engine itself never touches
// balances.
type Settler interface {
	// ReservePlacement escrows the maker's deposit for a newly placed grid.
	ReservePlacement(maker string, pairID uint64, baseAmt, quoteAmt decimal.Decimal) error
	// ApplyFills settles a batch of fills against the taker's balances and
	// accrues the protocol fees.
	ApplyFills(taker string, results []OrderFillResult) error
	// ApplyCancel credits a cancellation refund back to the maker.
	ApplyCancel(maker string, pairID uint64, baseAmt, quoteAmt decimal.Decimal) error
	// CreditQuote credits withdrawn grid profits to the owner.
	CreditQuote(account string, pairID uint64, amount decimal.Decimal) error
}

// GinHandlers contains the HTTP handlers for grid and fill endpoints.
type GinHandlers struct {
	service *Service
	settler Settler
}

func NewGinHandlers(service *Service, settler Settler) *GinHandlers {
	return &GinHandlers{service: service, settler: settler}
}

// PlaceGridHandler handles POST requests to place a grid. Requires a valid
// JWT and an idempotency key; the maker's deposit is reserved on success.
func (h *GinHandlers) PlaceGridHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		idempotencyKey := c.GetHeader("Idempotency-Key")
		if idempotencyKey == "" {
			response.BadRequest(c, "Idempotency-Key header is required")
			return
		}
		maker := clientID(c)
		if maker == "" {
			response.Unauthorized(c, "Invalid client ID in token")
			return
		}

		var req types.PlaceGridRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		result, err := h.service.PlaceGrid(maker, PlaceParams{
			PairID:       req.PairID,
			PerOrderBase: req.PerOrderBase,
			Fee:          req.Fee,
			Compound:     req.Compound,
			Oneshot:      req.Oneshot,
			Ask:          GridSideSpec(req.Ask),
			Bid:          GridSideSpec(req.Bid),
		}, idempotencyKey)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		if !result.Replayed {
			if err := h.settler.ReservePlacement(maker, req.PairID, result.BaseRequired, result.QuoteRequired); err != nil {
				// The deposit could not be escrowed: unwind the placement.
				if _, cancelErr := h.service.CancelGrid(maker, result.GridID); cancelErr != nil {
					log.Error().Err(cancelErr).
						Uint64("grid_id", result.GridID).
						Msg("failed to unwind grid after reservation failure")
				}
				response.Handle(c, nil, err)
				return
			}
		}
		response.Success(c, result)
	}
}

// GetGridHandler handles GET requests for a grid's configuration.
func (h *GinHandlers) GetGridHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		gridID, ok := uintParam(c, "grid_id")
		if !ok {
			return
		}
		grid, err := h.service.GetGridConfig(gridID)
		response.Handle(c, grid, err)
	}
}

// GetOrderHandler handles GET requests for a single order slot's state.
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, ok := uintParam(c, "order_id")
		if !ok {
			return
		}
		info, err := h.service.GetOrderInfo(orderID)
		response.Handle(c, info, err)
	}
}

// CancelGridHandler handles POST requests to cancel a whole grid and refund
// the maker.
func (h *GinHandlers) CancelGridHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		gridID, ok := uintParam(c, "grid_id")
		if !ok {
			return
		}
		caller := clientID(c)

		result, err := h.service.CancelGrid(caller, gridID)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		if err := h.settler.ApplyCancel(caller, result.PairID, result.BaseRefund, result.QuoteRefund); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, result)
	}
}

// CancelOrdersHandler handles POST requests to cancel an explicit list of a
// grid's orders.
func (h *GinHandlers) CancelOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		gridID, ok := uintParam(c, "grid_id")
		if !ok {
			return
		}
		caller := clientID(c)

		var req types.CancelOrdersRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		result, err := h.service.CancelOrders(caller, gridID, req.OrderIDs)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		if err := h.settler.ApplyCancel(caller, result.PairID, result.BaseRefund, result.QuoteRefund); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, result)
	}
}

// ModifyFeeHandler handles PUT requests to change a grid's fee.
func (h *GinHandlers) ModifyFeeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		gridID, ok := uintParam(c, "grid_id")
		if !ok {
			return
		}

		var req types.ModifyFeeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.service.ModifyFee(clientID(c), gridID, req.Fee); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"grid_id": gridID, "fee": req.Fee})
	}
}

// WithdrawProfitsHandler handles POST requests to withdraw a grid's realized
// profits.
func (h *GinHandlers) WithdrawProfitsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		gridID, ok := uintParam(c, "grid_id")
		if !ok {
			return
		}
		caller := clientID(c)

		pairID, amount, err := h.service.WithdrawProfits(caller, gridID)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		if err := h.settler.CreditQuote(caller, pairID, amount); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"grid_id": gridID, "amount": amount})
	}
}

// FillAskHandler handles POST requests from takers buying base out of ask
// legs. Accepts a batch; a single fill is a batch of one.
func (h *GinHandlers) FillAskHandler() gin.HandlerFunc {
	return h.fillHandler(func(req *types.FillRequest) ([]OrderFillResult, error) {
		return h.service.FillAskBatch(req.OrderIDs, req.Amounts, req.MaxBase, req.MinFilled)
	})
}

// FillBidHandler handles POST requests from takers selling base into bid
// legs.
func (h *GinHandlers) FillBidHandler() gin.HandlerFunc {
	return h.fillHandler(func(req *types.FillRequest) ([]OrderFillResult, error) {
		return h.service.FillBidBatch(req.OrderIDs, req.Amounts, req.MaxBase, req.MinFilled)
	})
}

func (h *GinHandlers) fillHandler(fill func(*types.FillRequest) ([]OrderFillResult, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		taker := c.GetString("clientID")
		if taker == "" {
			response.Unauthorized(c, "Invalid client ID in token")
			return
		}

		var req types.FillRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		results, err := fill(&req)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		if err := h.settler.ApplyFills(taker, results); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, results)
	}
}

func clientID(c *gin.Context) string {
	if id := c.GetString("clientID"); id != "" {
		return id
	}
	claims, exists := c.Get("claims")
	if !exists {
		return ""
	}
	return auth.GetClientID(claims)
}

func uintParam(c *gin.Context, name string) (uint64, bool) {
	value, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		response.BadRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return value, true
}
