package errors

import (
	"go.uber.org/zap"
)

// LogError는 에러를 코드와 함께 기록합니다.
// 원장 불일치(CONSISTENCY)는 스택을 남깁니다.
func LogError(logger *zap.Logger, err error, msg string, fields ...zap.Field) {
	if err == nil {
		return
	}

	code := CodeOf(err)
	all := append([]zap.Field{zap.Error(err), zap.String("error_code", code)}, fields...)
	if rules[code].withStack {
		all = append(all, zap.Stack("stack"))
	}

	logger.Error(msg, all...)
}
