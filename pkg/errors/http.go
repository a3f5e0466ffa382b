package errors

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ToHTTPError는 에러를 Echo HTTP 에러로 변환합니다.
// 5xx 응답에는 내부 메시지 대신 상태 텍스트만 담습니다.
func ToHTTPError(err error) *echo.HTTPError {
	if err == nil {
		return nil
	}

	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		return echoErr
	}

	status := ToHTTPStatus(CodeOf(err))
	if status >= http.StatusInternalServerError {
		return echo.NewHTTPError(status, http.StatusText(status))
	}
	return echo.NewHTTPError(status, err.Error())
}
