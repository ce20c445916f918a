package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/tailor-backend/internal/payment"
)

const maxWebhookBody = 1 << 20

// RequireSignature rejects payment webhooks whose X-Signature does not match
// the HMAC of the raw body. The body is restored for the handler.
func RequireSignature(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
			if err != nil {
				return c.JSON(http.StatusBadRequest, errorBody("bad_request", "unreadable body"))
			}
			if !payment.Verify(secret, body, c.Request().Header.Get(payment.SignatureHeader)) {
				return unauthenticated(c, "invalid signature")
			}
			c.Request().Body = io.NopCloser(bytes.NewReader(body))
			return next(c)
		}
	}
}
