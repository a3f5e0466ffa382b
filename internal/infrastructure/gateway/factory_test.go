package gateway_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/bursar/internal/config"
	domainErrors "github.com/wekeepgrowing/bursar/internal/domain/errors"
	domainGateway "github.com/wekeepgrowing/bursar/internal/domain/gateway"
	"github.com/wekeepgrowing/bursar/internal/infrastructure/gateway"
)

func parse(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)
	return cfg
}

func TestFactory_Registrations(t *testing.T) {
	cfg := parse(t, `
gateways:
  dummy:
    enabled: true
    capture_immediately: true
  cod:
    enabled: true
    label: Cash on delivery
  banktransfer:
    enabled: true
    credentials:
      notify_secret: s3cret
  purchaseorder:
    enabled: false
  card:
    enabled: true
    kind: stripe
    credentials:
      secret_key: sk_test_abc
      webhook_secret: whsec_abc
`)

	regs, err := gateway.NewFactory(cfg, zap.NewNop()).Registrations()
	require.NoError(t, err)
	require.Len(t, regs, 4)

	byKey := make(map[string]domainGateway.Registration)
	for _, reg := range regs {
		byKey[reg.Adapter.Key()] = reg
	}

	assert.Contains(t, byKey, "dummy")
	assert.True(t, byKey["dummy"].Settings.CaptureImmediately)
	assert.Equal(t, "Cash on delivery", byKey["cod"].Settings.Label)
	assert.True(t, byKey["banktransfer"].Adapter.Capabilities().Headless)
	assert.NotContains(t, byKey, "purchaseorder")

	card := byKey["card"]
	require.NotNil(t, card.Adapter)
	assert.True(t, card.Adapter.Capabilities().Authorize)
	_, ok := card.Adapter.(domainGateway.NotificationParser)
	assert.True(t, ok)
	assert.Equal(t, "USD", card.Settings.Currency)
}

func TestFactory_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "stripe without secret key",
			yaml: "gateways:\n  stripe:\n    enabled: true\n",
		},
		{
			name: "braintree without keys",
			yaml: "gateways:\n  braintree:\n    enabled: true\n    credentials:\n      merchant_id: m\n",
		},
		{
			name: "live dummy",
			yaml: "gateways:\n  dummy:\n    enabled: true\n    live: true\n",
		},
		{
			name: "unknown kind",
			yaml: "gateways:\n  paypal:\n    enabled: true\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("BURSAR_STRIPE_SECRET_KEY", "")
			t.Setenv("BURSAR_BRAINTREE_PUBLIC_KEY", "")
			t.Setenv("BURSAR_BRAINTREE_PRIVATE_KEY", "")

			_, err := gateway.NewFactory(parse(t, tt.yaml), zap.NewNop()).Registrations()
			require.Error(t, err)
			assert.True(t, domainErrors.IsKind(err, domainErrors.KindConfiguration))
		})
	}
}

func TestFactory_NotifySecrets(t *testing.T) {
	t.Setenv("BURSAR_NOTIFY_SECRET", "")
	cfg := parse(t, `
gateways:
  banktransfer:
    enabled: true
    credentials:
      notify_secret: s3cret
  cod:
    enabled: true
`)

	secrets := gateway.NewFactory(cfg, zap.NewNop()).NotifySecrets()
	assert.Equal(t, map[string]string{"banktransfer": "s3cret"}, secrets)
}
