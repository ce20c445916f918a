package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/tailor-backend/internal/model"
	"github.com/shinyyama/tailor-backend/internal/service"
	"github.com/shinyyama/tailor-backend/internal/view"
	"go.uber.org/zap"
)

const maxProofBytes = 10 << 20

type DeliveryHandler struct {
	svc    service.DeliveryService
	logger *zap.Logger
}

func NewDeliveryHandler(svc service.DeliveryService, logger *zap.Logger) *DeliveryHandler {
	return &DeliveryHandler{svc: svc, logger: logger}
}

type callbackRequest struct {
	CallbackID string `json:"callbackId" form:"callbackId"`
	Note       string `json:"note" form:"note"`
	Reason     string `json:"reason" form:"reason"`
	PartnerUID string `json:"partnerUid" form:"partnerUid"`
}

func (r callbackRequest) callback() service.Callback {
	note := r.Note
	if note == "" {
		note = r.Reason
	}
	return service.Callback{CallbackID: r.CallbackID, Note: note}
}

func (h *DeliveryHandler) List(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return nil
	}
	list, err := h.svc.List(c.Request().Context(), actor, model.DeliveryJobStatus(c.QueryParam("status")), parseLimit(c, 50))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"jobs": view.DeliveryJobs(actor, list)})
}

func (h *DeliveryHandler) Get(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return nil
	}
	id, ok := parseID(c, "id")
	if !ok {
		return nil
	}
	j, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, view.DeliveryJob(actor, j))
}

func (h *DeliveryHandler) ForOrder(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return nil
	}
	id, ok := parseID(c, "id")
	if !ok {
		return nil
	}
	list, err := h.svc.ForOrder(c.Request().Context(), actor, id)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"jobs": view.DeliveryJobs(actor, list)})
}

func (h *DeliveryHandler) Assign(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return nil
	}
	id, ok := parseID(c, "id")
	if !ok {
		return nil
	}
	var body callbackRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid body")
	}
	j, err := h.svc.Assign(c.Request().Context(), actor, id, body.PartnerUID)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, view.DeliveryJob(actor, j))
}

func (h *DeliveryHandler) Pickup(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return nil
	}
	id, ok := parseID(c, "id")
	if !ok {
		return nil
	}
	var body callbackRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid body")
	}
	j, err := h.svc.Pickup(c.Request().Context(), actor, id, body.callback())
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, view.DeliveryJob(actor, j))
}

// Deliver accepts JSON or a multipart form with an optional "proof" photo.
func (h *DeliveryHandler) Deliver(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return nil
	}
	id, ok := parseID(c, "id")
	if !ok {
		return nil
	}
	var body callbackRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid body")
	}
	var proof *service.Proof
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, err := c.FormFile("proof")
		if err != nil && err != http.ErrMissingFile {
			return badRequest(c, "invalid proof upload")
		}
		if fh != nil {
			if fh.Size > maxProofBytes {
				return badRequest(c, "proof photo too large")
			}
			f, err := fh.Open()
			if err != nil {
				return badRequest(c, "invalid proof upload")
			}
			defer f.Close()
			proof = &service.Proof{ContentType: fh.Header.Get(echo.HeaderContentType), Body: f}
		}
	}
	j, err := h.svc.Deliver(c.Request().Context(), actor, id, body.callback(), proof)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, view.DeliveryJob(actor, j))
}

func (h *DeliveryHandler) Fail(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return nil
	}
	id, ok := parseID(c, "id")
	if !ok {
		return nil
	}
	var body callbackRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid body")
	}
	j, err := h.svc.Fail(c.Request().Context(), actor, id, body.callback())
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, view.DeliveryJob(actor, j))
}
