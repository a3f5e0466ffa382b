// Package errors는 서비스 공통 에러 코드와 HTTP 변환을 제공합니다.
package errors

import (
	"errors"
	"net/http"
)

// 에러 코드
const (
	ErrInternal = "INTERNAL"
	ErrNotFound = "NOT_FOUND"

	// 결제 원장 에러 코드
	ErrValidation     = "VALIDATION"
	ErrGatewayFailure = "GATEWAY_FAILURE"
	ErrConfiguration  = "CONFIGURATION"
	ErrConsistency    = "CONSISTENCY"
)

// codeRule은 코드별 응답 상태와 로그 처리 방식을 정의합니다.
type codeRule struct {
	status int
	// 스택과 함께 기록할지 여부
	withStack bool
}

var rules = map[string]codeRule{
	ErrInternal:       {status: http.StatusInternalServerError},
	ErrNotFound:       {status: http.StatusNotFound},
	ErrValidation:     {status: http.StatusUnprocessableEntity},
	ErrGatewayFailure: {status: http.StatusPaymentRequired},
	ErrConfiguration:  {status: http.StatusServiceUnavailable},
	ErrConsistency:    {status: http.StatusInternalServerError, withStack: true},
}

// Coded는 에러 코드를 가진 에러입니다.
type Coded interface {
	error
	Code() string
}

// CodeOf는 에러 체인에서 첫 번째 코드를 찾습니다. 없으면 INTERNAL입니다.
func CodeOf(err error) string {
	var coded Coded
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return ErrInternal
}

// ToHTTPStatus는 에러 코드를 HTTP 상태 코드로 변환합니다
func ToHTTPStatus(code string) int {
	if rule, ok := rules[code]; ok {
		return rule.status
	}
	return http.StatusInternalServerError
}
