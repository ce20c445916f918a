package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/tailor-backend/internal/middleware"
	"github.com/shinyyama/tailor-backend/internal/policy"
	"github.com/shinyyama/tailor-backend/internal/repository"
	"github.com/shinyyama/tailor-backend/internal/service"
	"go.uber.org/zap"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error errorPayload `json:"error"`
}

func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{
		Error: errorPayload{
			Code:    code,
			Message: message,
		},
	}
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorTable is checked in order; the first errors.Is match wins.
var errorTable = []errorMapping{
	{service.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{service.ErrOrderNotCancellable, http.StatusBadRequest, "order_not_cancellable"},
	{service.ErrEscrowNotHeld, http.StatusConflict, "escrow_not_held"},
	{service.ErrAlreadyHeld, http.StatusConflict, "already_held"},
	{service.ErrOrderNotDelivered, http.StatusConflict, "order_not_delivered"},
	{service.ErrPricingUnavailable, http.StatusBadRequest, "pricing_unavailable"},
	{service.ErrDeliveryExhausted, http.StatusConflict, "delivery_exhausted"},
	{service.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{service.ErrNotFound, http.StatusNotFound, "not_found"},
	{service.ErrAlreadyReviewed, http.StatusConflict, "already_reviewed"},
	{service.ErrNotReviewable, http.StatusConflict, "order_not_completed"},
	{service.ErrValidation, http.StatusBadRequest, "bad_request"},
	{repository.ErrDBNotReady, http.StatusServiceUnavailable, "db_not_ready"},
}

// writeError maps a service error to its stable status and code. Unknown
// errors are logged and reported as internal_error.
func writeError(c echo.Context, logger *zap.Logger, err error) error {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return c.JSON(m.status, NewErrorResponse(m.code, err.Error()))
		}
	}
	logger.Error("unhandled error",
		zap.String("method", c.Request().Method),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "internal error"))
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", msg))
}

// actorOf returns the caller set by the auth middleware, or writes a 401.
func actorOf(c echo.Context) (policy.Actor, bool) {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		_ = c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthenticated", "missing credentials"))
	}
	return a, ok
}

func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		_ = badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func parseLimit(c echo.Context, def int) int {
	if s := c.QueryParam("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}
