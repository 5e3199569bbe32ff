package engine

import (
	"errors"
	"net/http"

	"github.com/gridbook/gridbook-api/internal/strategy"
	"github.com/gridbook/gridbook-api/pkg/response"
)

var (
	ErrInvalidParam            = errors.New("invalid grid parameters")
	ErrInvalidGridFee          = errors.New("grid fee outside allowed bounds")
	ErrZeroGridOrderCount      = errors.New("grid must have at least one order")
	ErrExceedsMaxAmount        = errors.New("required amount exceeds maximum width")
	ErrNotGridOwner            = errors.New("caller is not the grid owner")
	ErrGridNotFound            = errors.New("grid not found")
	ErrOrderNotFound           = errors.New("order not found")
	ErrOrderCanceled           = errors.New("order or grid is canceled")
	ErrReversedOneshotOrderFill = errors.New("oneshot order cannot be filled from the reverse side")
	ErrCannotModifyOneshotFee  = errors.New("oneshot grid fee cannot be modified")
	ErrNoProfits               = errors.New("grid has no profits to withdraw")
	ErrNotEnoughToFill         = errors.New("fill amount below requested minimum")
)

func init() {
	response.RegisterError(ErrInvalidParam, http.StatusBadRequest, response.ErrCodeBadRequest)
	response.RegisterError(ErrInvalidGridFee, http.StatusBadRequest, response.ErrCodeBadRequest)
	response.RegisterError(ErrZeroGridOrderCount, http.StatusBadRequest, response.ErrCodeBadRequest)
	response.RegisterError(ErrExceedsMaxAmount, http.StatusBadRequest, response.ErrCodeBadRequest)
	response.RegisterError(ErrNotGridOwner, http.StatusForbidden, response.ErrCodeForbidden)
	response.RegisterError(ErrGridNotFound, http.StatusNotFound, response.ErrCodeNotFound)
	response.RegisterError(ErrOrderNotFound, http.StatusNotFound, response.ErrCodeNotFound)
	response.RegisterError(ErrOrderCanceled, http.StatusConflict, response.ErrCodeDuplicateResource)
	response.RegisterError(ErrReversedOneshotOrderFill, http.StatusBadRequest, response.ErrCodeBadRequest)
	response.RegisterError(ErrCannotModifyOneshotFee, http.StatusBadRequest, response.ErrCodeBadRequest)
	response.RegisterError(ErrNoProfits, http.StatusBadRequest, response.ErrCodeBadRequest)
	response.RegisterError(ErrNotEnoughToFill, http.StatusBadRequest, response.ErrCodeBadRequest)
	response.RegisterError(strategy.ErrInvalidGridPrice, http.StatusBadRequest, response.ErrCodeValidationFailed)
	response.RegisterError(strategy.ErrUnknownStrategy, http.StatusBadRequest, response.ErrCodeBadRequest)
}
