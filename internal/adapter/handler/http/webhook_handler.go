package http

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/bursar/internal/usecase"
)

const (
	// StripeSignatureHeader carries the signature of gateway-format webhooks.
	StripeSignatureHeader = "Stripe-Signature"
	// NotifySignatureHeader carries the hex HMAC of a posted notification.
	NotifySignatureHeader = "X-Bursar-Signature"

	maxWebhookBody = 1 << 20
)

type WebhookHandler struct {
	webhooks *usecase.WebhookService
	logger   *zap.Logger
}

func NewWebhookHandler(webhooks *usecase.WebhookService, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, logger: logger}
}

// HandleGateway handles POST /webhook/:gateway
func (h *WebhookHandler) HandleGateway(c echo.Context) error {
	body, err := h.readBody(c)
	if err != nil {
		return err
	}

	key := c.Param("gateway")
	res, err := h.webhooks.HandleGateway(c.Request().Context(), key, body, c.Request().Header.Get(StripeSignatureHeader))
	if err != nil {
		return err
	}

	resp := echo.Map{"received": true}
	if res != nil {
		resp["message"] = res.Message
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleNotify handles POST /webhook/notify/:gateway
func (h *WebhookHandler) HandleNotify(c echo.Context) error {
	body, err := h.readBody(c)
	if err != nil {
		return err
	}

	key := c.Param("gateway")
	res, err := h.webhooks.HandleNotify(c.Request().Context(), key, body, c.Request().Header.Get(NotifySignatureHeader))
	if err != nil {
		return err
	}

	resp := echo.Map{"received": true}
	if res != nil {
		resp["success"] = res.Success
		resp["message"] = res.Message
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *WebhookHandler) readBody(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("Error reading request body", zap.Error(err))
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Error reading request body")
	}
	return body, nil
}
