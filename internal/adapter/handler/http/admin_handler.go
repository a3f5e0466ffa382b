package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/bursar/internal/usecase"
)

// AdminHandler serves the back office payment operations
type AdminHandler struct {
	registry  *usecase.ProcessorRegistry
	recurring *usecase.RecurringService
	logger    *zap.Logger
}

func NewAdminHandler(registry *usecase.ProcessorRegistry, recurring *usecase.RecurringService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		registry:  registry,
		recurring: recurring,
		logger:    logger,
	}
}

type GatewayAmountRequest struct {
	Gateway string              `json:"gateway" validate:"required"`
	Amount  decimal.NullDecimal `json:"amount"`
}

// CaptureAll handles POST /api/v1/admin/purchases/:id/capture-all
func (h *AdminHandler) CaptureAll(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req ProcessRequest
	if ok, err := bindAndValidate(c, h.logger, &req); !ok {
		return err
	}

	proc, err := h.registry.Get(req.Gateway)
	if err != nil {
		return err
	}

	results, err := proc.CaptureAllAuthorized(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"results": results})
}

// CaptureAuthorization handles POST /api/v1/admin/purchases/:id/authorizations/:authId/capture
func (h *AdminHandler) CaptureAuthorization(c echo.Context) error {
	return h.withAuthorization(c, func(proc *usecase.Processor, purchaseID, authID int64, req GatewayAmountRequest) error {
		res, err := proc.CaptureAuthorizedPayment(c.Request().Context(), purchaseID, authID, req.Amount)
		if err != nil {
			return err
		}
		return respondResult(c, res)
	})
}

// ReleaseAuthorization handles POST /api/v1/admin/purchases/:id/authorizations/:authId/release
func (h *AdminHandler) ReleaseAuthorization(c echo.Context) error {
	return h.withAuthorization(c, func(proc *usecase.Processor, purchaseID, authID int64, _ GatewayAmountRequest) error {
		res, err := proc.ReleaseAuthorizedPayment(c.Request().Context(), purchaseID, authID)
		if err != nil {
			return err
		}
		return respondResult(c, res)
	})
}

// VerifyCard handles POST /api/v1/admin/purchases/:id/verify
func (h *AdminHandler) VerifyCard(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req GatewayAmountRequest
	if ok, err := bindAndValidate(c, h.logger, &req); !ok {
		return err
	}

	proc, err := h.registry.Get(req.Gateway)
	if err != nil {
		return err
	}

	res, err := proc.AuthorizeAndRelease(c.Request().Context(), id, req.Amount)
	if err != nil {
		return err
	}
	return respondResult(c, res)
}

type ScheduleRequest struct {
	TemplatePurchaseID int64           `json:"template_purchase_id" validate:"required,gt=0"`
	Gateway            string          `json:"gateway" validate:"required"`
	Amount             decimal.Decimal `json:"amount"`
	IntervalDays       int             `json:"interval_days" validate:"required,min=1"`
	Occurrences        *int            `json:"occurrences" validate:"omitempty,min=1"`
	StartAt            *time.Time      `json:"start_at"`
}

// ScheduleRecurring handles POST /api/v1/admin/recurring
func (h *AdminHandler) ScheduleRecurring(c echo.Context) error {
	var req ScheduleRequest
	if ok, err := bindAndValidate(c, h.logger, &req); !ok {
		return err
	}

	in := usecase.ScheduleInput{
		TemplatePurchaseID: req.TemplatePurchaseID,
		Gateway:            req.Gateway,
		Amount:             req.Amount,
		IntervalDays:       req.IntervalDays,
		Occurrences:        req.Occurrences,
	}
	if req.StartAt != nil {
		in.StartAt = *req.StartAt
	}

	charge, err := h.recurring.Schedule(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, charge)
}

// CancelRecurring handles DELETE /api/v1/admin/recurring/:id
func (h *AdminHandler) CancelRecurring(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	charge, err := h.recurring.Cancel(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, charge)
}

func (h *AdminHandler) withAuthorization(c echo.Context, fn func(proc *usecase.Processor, purchaseID, authID int64, req GatewayAmountRequest) error) error {
	purchaseID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	authID, err := paramID(c, "authId")
	if err != nil {
		return err
	}

	var req GatewayAmountRequest
	if ok, err := bindAndValidate(c, h.logger, &req); !ok {
		return err
	}

	proc, err := h.registry.Get(req.Gateway)
	if err != nil {
		return err
	}

	h.logger.Info("Admin authorization operation",
		zap.String("path", c.Path()),
		zap.Int64("purchase_id", purchaseID),
		zap.Int64("authorization_id", authID),
		zap.Any("user_id", c.Get("user_id")))

	return fn(proc, purchaseID, authID, req)
}
