package config

import (
	"sort"
	"time"
)

// GatewayConfig configures one payment gateway. The map key in
// Config.Gateways is the gateway key; Kind selects the adapter and
// defaults to the key.
type GatewayConfig struct {
	Enabled            bool               `yaml:"enabled"`
	Kind               string             `yaml:"kind"`
	Label              string             `yaml:"label"`
	Live               bool               `yaml:"live"`
	CaptureImmediately bool               `yaml:"capture_immediately"`
	ExtraLogging       bool               `yaml:"extra_logging"`
	Timeout            time.Duration      `yaml:"timeout"`
	Credentials        GatewayCredentials `yaml:"credentials"`

	key string
}

// GatewayCredentials may be set in the file for local development; in
// deployments they come from Secrets.
type GatewayCredentials struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
	MerchantID    string `yaml:"merchant_id"`
	PublicKey     string `yaml:"public_key"`
	PrivateKey    string `yaml:"private_key"`
	NotifySecret  string `yaml:"notify_secret"`
}

// Type returns the adapter kind.
func (g GatewayConfig) Type() string {
	if g.Kind != "" {
		return g.Kind
	}
	return g.key
}

// Gateway returns the named gateway config with its key attached.
func (c *Config) Gateway(key string) (GatewayConfig, bool) {
	gw, ok := c.Gateways[key]
	if !ok {
		return GatewayConfig{}, false
	}
	gw.key = key
	return gw, true
}

// GatewayKeys returns the configured gateway keys in order.
func (c *Config) GatewayKeys() []string {
	keys := make([]string, 0, len(c.Gateways))
	for key := range c.Gateways {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
