package errors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	domainErrors "github.com/wekeepgrowing/bursar/internal/domain/errors"
	apperrors "github.com/wekeepgrowing/bursar/pkg/errors"
)

func TestLedgerErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"validation", domainErrors.NewValidationError(1, "dummy", domainErrors.ErrWrongPurchase), apperrors.ErrValidation},
		{"not found", domainErrors.NewValidationError(1, "", domainErrors.ErrPurchaseNotFound), apperrors.ErrNotFound},
		{"gateway", domainErrors.NewGatewayFailure(1, "dummy", "declined", nil), apperrors.ErrGatewayFailure},
		{"configuration", domainErrors.NewConfigurationError("stripe", "secret key not configured"), apperrors.ErrConfiguration},
		{"consistency", domainErrors.NewConsistencyError(1, "capture missing", domainErrors.ErrMissingCapture), apperrors.ErrConsistency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("failed to process: %w", tt.err)
			assert.Equal(t, tt.want, apperrors.CodeOf(wrapped))
		})
	}
}

func TestLedgerErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("capture: %w", domainErrors.NewValidationError(7, "dummy", domainErrors.ErrAuthorizationComplete))

	assert.True(t, errors.Is(err, domainErrors.ErrAuthorizationComplete))
	assert.True(t, domainErrors.IsKind(err, domainErrors.KindValidation))
	assert.False(t, domainErrors.IsKind(err, domainErrors.KindConsistency))
	assert.Contains(t, err.Error(), "purchase: 7")
}
