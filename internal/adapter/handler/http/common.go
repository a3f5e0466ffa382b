package http

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/bursar/internal/domain/gateway"
	apperrors "github.com/wekeepgrowing/bursar/pkg/errors"
)

// RequestValidator plugs go-playground/validator into echo's c.Validate.
type RequestValidator struct {
	validate *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

func (v *RequestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

// bindAndValidate writes the 400 response itself and reports whether the
// handler should continue.
func bindAndValidate(c echo.Context, logger *zap.Logger, req interface{}) (bool, error) {
	if err := c.Bind(req); err != nil {
		logger.Warn("Failed to bind request", zap.Error(err))
		return false, c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Invalid request format",
			"code":  "INVALID_REQUEST",
		})
	}

	if err := c.Validate(req); err != nil {
		logger.Warn("Failed to validate request", zap.Error(err))
		return false, c.JSON(http.StatusBadRequest, echo.Map{
			"error":   "Validation failed",
			"code":    "VALIDATION_FAILED",
			"details": err.Error(),
		})
	}

	return true, nil
}

func paramID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// respondResult maps an unsuccessful result onto the status of its error.
func respondResult(c echo.Context, res gateway.Result) error {
	status := http.StatusOK
	if !res.Success {
		status = apperrors.ToHTTPStatus(apperrors.CodeOf(res.Err))
	}
	return c.JSON(status, res)
}
