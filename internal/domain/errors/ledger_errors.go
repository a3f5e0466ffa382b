package errors

import (
	"errors"
	"fmt"

	apperrors "github.com/wekeepgrowing/bursar/pkg/errors"
)

// Kind classifies a LedgerError.
type Kind string

const (
	// KindValidation is a request inconsistent with the ledger. Nothing was written.
	KindValidation Kind = "VALIDATION"
	// KindGatewayFailure is a gateway call that did not succeed. Always recorded.
	KindGatewayFailure Kind = "GATEWAY_FAILURE"
	// KindConfiguration is a gateway that cannot be built from its settings.
	KindConfiguration Kind = "CONFIGURATION"
	// KindConsistency is a broken ledger invariant. Never repaired silently.
	KindConsistency Kind = "CONSISTENCY"
)

var (
	ErrPurchaseNotFound      = errors.New("purchase not found")
	ErrAuthorizationNotFound = errors.New("authorization not found")
	ErrAuthorizationComplete = errors.New("authorization already complete")
	ErrWrongPurchase         = errors.New("authorization belongs to another purchase")
	ErrWrongGateway          = errors.New("authorization was made through another gateway")
	ErrInvalidAmount         = errors.New("amount must be greater than zero")
	ErrUnsupported           = errors.New("operation not supported by gateway")
	ErrHeadless              = errors.New("gateway is headless")
	ErrUnknownGateway        = errors.New("unknown gateway")
	ErrMissingTransactionID  = errors.New("transaction id is required")
	ErrMissingCapture        = errors.New("linked capture payment does not exist")
	ErrInvalidSignature      = errors.New("webhook signature is invalid")
)

// LedgerError is the error type of the ledger and its gateways.
type LedgerError struct {
	Kind       Kind
	Message    string
	PurchaseID int64
	Gateway    string
	Cause      error
}

func (e *LedgerError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Gateway != "" {
		msg += fmt.Sprintf(" (gateway: %s)", e.Gateway)
	}
	if e.PurchaseID != 0 {
		msg += fmt.Sprintf(" (purchase: %d)", e.PurchaseID)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" - %v", e.Cause)
	}
	return msg
}

func (e *LedgerError) Unwrap() error {
	return e.Cause
}

// Code maps the kind onto the shared error codes.
func (e *LedgerError) Code() string {
	switch e.Kind {
	case KindValidation:
		if errors.Is(e.Cause, ErrPurchaseNotFound) || errors.Is(e.Cause, ErrAuthorizationNotFound) || errors.Is(e.Cause, ErrUnknownGateway) {
			return apperrors.ErrNotFound
		}
		return apperrors.ErrValidation
	case KindGatewayFailure:
		return apperrors.ErrGatewayFailure
	case KindConfiguration:
		return apperrors.ErrConfiguration
	default:
		return apperrors.ErrConsistency
	}
}

// NewValidationError creates a validation error wrapping one of the
// sentinel errors above (or any cause).
func NewValidationError(purchaseID int64, gateway string, cause error) *LedgerError {
	return &LedgerError{
		Kind:       KindValidation,
		Message:    "invalid request",
		PurchaseID: purchaseID,
		Gateway:    gateway,
		Cause:      cause,
	}
}

// NewGatewayFailure creates a gateway failure. message is the gateway's
// own text and must not reach customers.
func NewGatewayFailure(purchaseID int64, gateway, message string, cause error) *LedgerError {
	return &LedgerError{
		Kind:       KindGatewayFailure,
		Message:    message,
		PurchaseID: purchaseID,
		Gateway:    gateway,
		Cause:      cause,
	}
}

// NewConfigurationError creates a configuration error for a gateway.
func NewConfigurationError(gateway, message string) *LedgerError {
	return &LedgerError{
		Kind:    KindConfiguration,
		Message: message,
		Gateway: gateway,
	}
}

// NewConsistencyError creates a consistency error.
func NewConsistencyError(purchaseID int64, message string, cause error) *LedgerError {
	return &LedgerError{
		Kind:       KindConsistency,
		Message:    message,
		PurchaseID: purchaseID,
		Cause:      cause,
	}
}

// IsKind reports whether err is a LedgerError of kind k.
func IsKind(err error, k Kind) bool {
	var le *LedgerError
	return errors.As(err, &le) && le.Kind == k
}
