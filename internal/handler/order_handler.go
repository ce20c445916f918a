package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/tailor-backend/internal/model"
	"github.com/shinyyama/tailor-backend/internal/service"
	"github.com/shinyyama/tailor-backend/internal/view"
	"go.uber.org/zap"
)

type OrderHandler struct {
	svc    service.OrderService
	notify service.NotificationService
	logger *zap.Logger
}

func NewOrderHandler(svc service.OrderService, notify service.NotificationService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{svc: svc, notify: notify, logger: logger}
}

type placeOrderRequest struct {
	DesignID            uint64             `json:"designId"`
	Customizations      []string           `json:"customizations"`
	Measurements        map[string]float64 `json:"measurements"`
	DeliveryAddress     model.Address      `json:"deliveryAddress"`
	DeliveryZone        string             `json:"deliveryZone"`
	ItemCount           int                `json:"itemCount"`
	Urgency             string             `json:"urgency"`
	SpecialInstructions string             `json:"specialInstructions"`
}

func (h *OrderHandler) Create(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return nil
	}
	var body placeOrderRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid body")
	}
	if body.DesignID == 0 {
		return badRequest(c, "designId is required")
	}
	o, err := h.svc.PlaceOrder(c.Request().Context(), actor, service.PlaceOrderInput{
		DesignID:            body.DesignID,
		OptionIDs:           body.Customizations,
		Measurements:        body.Measurements,
		DeliveryAddress:     body.DeliveryAddress,
		DeliveryZone:        body.DeliveryZone,
		ItemCount:           body.ItemCount,
		Urgency:             body.Urgency,
		SpecialInstructions: body.SpecialInstructions,
	})
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusCreated, view.Order(actor, o))
}

func (h *OrderHandler) List(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return nil
	}
	status := model.OrderStatus(c.QueryParam("status"))
	if status != "" && !status.Valid() {
		return badRequest(c, "unknown status")
	}
	list, err := h.svc.List(c.Request().Context(), actor, status, parseLimit(c, 50))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"orders": view.Orders(actor, list)})
}

func (h *OrderHandler) Get(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return nil
	}
	id, ok := parseID(c, "id")
	if !ok {
		return nil
	}
	o, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	if h.notify != nil {
		_ = h.notify.MarkByOrder(c.Request().Context(), actor.ID, o.ID)
	}
	return c.JSON(http.StatusOK, view.Order(actor, o))
}

func (h *OrderHandler) UpdateStatus(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return nil
	}
	id, ok := parseID(c, "id")
	if !ok {
		return nil
	}
	var body struct {
		Status string `json:"status"`
		Note   string `json:"note"`
	}
	if err := c.Bind(&body); err != nil || body.Status == "" {
		return badRequest(c, "status is required")
	}
	o, err := h.svc.UpdateStatus(c.Request().Context(), actor, id, model.OrderStatus(body.Status), body.Note)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, view.Order(actor, o))
}

func (h *OrderHandler) Cancel(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return nil
	}
	id, ok := parseID(c, "id")
	if !ok {
		return nil
	}
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.Bind(&body)
	o, err := h.svc.Cancel(c.Request().Context(), actor, id, body.Reason)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, view.Order(actor, o))
}

// Edit applies an allow-listed partial update. Keys outside the patchable set
// are rejected rather than ignored.
func (h *OrderHandler) Edit(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return nil
	}
	id, ok := parseID(c, "id")
	if !ok {
		return nil
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, 64<<10))
	if err != nil {
		return badRequest(c, "unreadable body")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return badRequest(c, "invalid body")
	}
	var patch service.OrderPatch
	for key, val := range fields {
		var err error
		switch key {
		case "specialInstructions":
			patch.SpecialInstructions = new(string)
			err = json.Unmarshal(val, patch.SpecialInstructions)
		case "deliveryAddress":
			patch.DeliveryAddress = new(model.Address)
			err = json.Unmarshal(val, patch.DeliveryAddress)
		case "shopNotes":
			patch.ShopNotes = new(string)
			err = json.Unmarshal(val, patch.ShopNotes)
		case "estimatedCompletion":
			patch.EstimatedCompletion = new(time.Time)
			err = json.Unmarshal(val, patch.EstimatedCompletion)
		default:
			return badRequest(c, "field "+key+" cannot be edited")
		}
		if err != nil {
			return badRequest(c, "invalid value for "+key)
		}
	}
	o, err := h.svc.Edit(c.Request().Context(), actor, id, patch)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, view.Order(actor, o))
}

func (h *OrderHandler) Review(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return nil
	}
	id, ok := parseID(c, "id")
	if !ok {
		return nil
	}
	var body struct {
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid body")
	}
	o, err := h.svc.Review(c.Request().Context(), actor, id, body.Rating, body.Comment)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, view.Order(actor, o))
}
