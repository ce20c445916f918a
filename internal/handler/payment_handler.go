package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/tailor-backend/internal/payment"
	"github.com/shinyyama/tailor-backend/internal/service"
	"github.com/shinyyama/tailor-backend/internal/view"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	payments service.PaymentService
	escrow   service.EscrowService
	logger   *zap.Logger
}

func NewPaymentHandler(payments service.PaymentService, escrow service.EscrowService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, escrow: escrow, logger: logger}
}

func (h *PaymentHandler) Initiate(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return nil
	}
	id, ok := parseID(c, "id")
	if !ok {
		return nil
	}
	o, err := h.payments.Initiate(c.Request().Context(), actor, id)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"paymentRef":  o.Payment.Ref,
		"checkoutUrl": o.Payment.CheckoutURL,
		"amount":      o.Pricing.Total,
		"currency":    o.Pricing.Currency,
	})
}

func (h *PaymentHandler) Get(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return nil
	}
	id, ok := parseID(c, "id")
	if !ok {
		return nil
	}
	o, err := h.escrow.Payment(c.Request().Context(), actor, id)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, view.Payment(actor, o.Payment))
}

// Webhook is mounted behind the signature middleware, not user auth.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	var ev payment.WebhookEvent
	if err := c.Bind(&ev); err != nil {
		return badRequest(c, "invalid body")
	}
	res, err := h.payments.HandleWebhook(c.Request().Context(), ev)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      string(res.Order.Status),
		"orderNumber": res.Order.Number,
		"duplicate":   res.Duplicate,
	})
}

func (h *PaymentHandler) Release(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return nil
	}
	id, ok := parseID(c, "orderId")
	if !ok {
		return nil
	}
	o, amount, err := h.escrow.Release(c.Request().Context(), actor, id)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"order":          view.Order(actor, o),
		"releasedAmount": amount,
	})
}

func (h *PaymentHandler) Refund(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return nil
	}
	id, ok := parseID(c, "orderId")
	if !ok {
		return nil
	}
	o, amount, err := h.escrow.Refund(c.Request().Context(), actor, id)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"order":          view.Order(actor, o),
		"refundedAmount": amount,
	})
}
