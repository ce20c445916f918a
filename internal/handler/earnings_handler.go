package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/tailor-backend/internal/repository"
	"github.com/shinyyama/tailor-backend/internal/service"
	"go.uber.org/zap"
)

type EarningsHandler struct {
	svc    service.EscrowService
	logger *zap.Logger
}

func NewEarningsHandler(svc service.EscrowService, logger *zap.Logger) *EarningsHandler {
	return &EarningsHandler{svc: svc, logger: logger}
}

func (h *EarningsHandler) Get(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return nil
	}
	e, err := h.svc.Earnings(c.Request().Context(), actor, c.Param("uid"))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"shopUid":      e.ShopUID,
		"releasedFils": e.ReleasedFils,
		"orderCount":   e.OrderCount,
	})
}

// Revenue reports settled orders for admins, grouped by day, month or year.
func (h *EarningsHandler) Revenue(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return nil
	}
	q := repository.RevenueQuery{GroupBy: repository.RevenueGrouping(c.QueryParam("groupBy"))}
	var err error
	if q.From, err = parseDate(c.QueryParam("startDate"), false); err != nil {
		return badRequest(c, "invalid startDate")
	}
	if q.To, err = parseDate(c.QueryParam("endDate"), true); err != nil {
		return badRequest(c, "invalid endDate")
	}
	rows, err := h.svc.Revenue(c.Request().Context(), actor, q)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	if q.GroupBy == "" {
		q.GroupBy = repository.GroupByMonth
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"groupBy": q.GroupBy,
		"rows":    rows,
	})
}

// parseDate accepts RFC3339 or a bare date. A bare end date covers the whole day.
func parseDate(v string, end bool) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, err
	}
	if end {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
