package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/tailor-backend/internal/model"
	"github.com/shinyyama/tailor-backend/internal/service"
	"go.uber.org/zap"
)

type NotificationHandler struct {
	svc    service.NotificationService
	logger *zap.Logger
}

func NewNotificationHandler(svc service.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, logger: logger}
}

type NotificationResponse struct {
	ID        uint64  `json:"id"`
	Type      string  `json:"type"`
	Title     string  `json:"title"`
	Body      string  `json:"body"`
	OrderID   *uint64 `json:"orderId,omitempty"`
	Read      bool    `json:"read"`
	CreatedAt string  `json:"createdAt"`
}

func toNotificationResponse(n model.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Body:      n.Body,
		OrderID:   n.OrderID,
		Read:      n.ReadAt != nil,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
	}
}

func (h *NotificationHandler) List(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return nil
	}
	unreadOnly := c.QueryParam("unread_only") != "false"
	list, unreadCount, err := h.svc.List(c.Request().Context(), actor.ID, unreadOnly, parseLimit(c, 20))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	resp := make([]NotificationResponse, 0, len(list))
	for _, n := range list {
		resp = append(resp, toNotificationResponse(n))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"notifications": resp,
		"unreadCount":   unreadCount,
	})
}

func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return nil
	}
	if err := h.svc.MarkAllRead(c.Request().Context(), actor.ID); err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *NotificationHandler) MarkOrderRead(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return nil
	}
	id, ok := parseID(c, "id")
	if !ok {
		return nil
	}
	if err := h.svc.MarkByOrder(c.Request().Context(), actor.ID, id); err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
