package bootstrap_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/bursar/internal/bootstrap"
	"github.com/wekeepgrowing/bursar/internal/config"
	domainErrors "github.com/wekeepgrowing/bursar/internal/domain/errors"
	"github.com/wekeepgrowing/bursar/internal/domain/event"
	"github.com/wekeepgrowing/bursar/internal/infrastructure/database"
	"github.com/wekeepgrowing/bursar/internal/testutil"
)

func parseConfig(t *testing.T, yaml, key string) *config.Config {
	t.Helper()
	t.Setenv("BURSAR_ENCRYPTION_KEY", key)
	t.Setenv("BURSAR_STRIPE_SECRET_KEY", "")
	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)
	return cfg
}

func TestNewUseCases(t *testing.T) {
	validKey := strings.Repeat("ab", 32)
	repos := database.NewRepositories(testutil.NewDB(t), zap.NewNop())

	t.Run("builds enabled gateways", func(t *testing.T) {
		cfg := parseConfig(t, "gateways:\n  dummy:\n    enabled: true\n  cod:\n    enabled: true\n", validKey)

		uc, err := bootstrap.NewUseCases(cfg, repos, event.NopPublisher{}, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, []string{"cod", "dummy"}, uc.Registry.Keys())
		assert.NotNil(t, uc.Webhooks)
		assert.NotNil(t, uc.Recurring)
	})

	tests := []struct {
		name string
		yaml string
		key  string
	}{
		{"bad encryption key", "gateways:\n  dummy:\n    enabled: true\n", "short"},
		{"nothing enabled", "gateways:\n  dummy:\n    enabled: false\n", validKey},
		{"stripe without secret", "gateways:\n  card:\n    kind: stripe\n    enabled: true\n", validKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := parseConfig(t, tt.yaml, tt.key)

			_, err := bootstrap.NewUseCases(cfg, repos, event.NopPublisher{}, zap.NewNop())
			assert.True(t, domainErrors.IsKind(err, domainErrors.KindConfiguration), "got %v", err)
		})
	}
}

func TestNewPublisher_WithoutRedis(t *testing.T) {
	cfg := parseConfig(t, "gateways:\n  dummy:\n    enabled: true\n", strings.Repeat("ab", 32))

	publisher, cleanup, err := bootstrap.NewPublisher(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, publisher)

	publisher.PublishPaymentCompleted(context.Background(), event.PaymentCompleted{PurchaseID: 1})
	cleanup()
}
