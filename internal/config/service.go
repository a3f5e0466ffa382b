package config

import "time"

type ServiceConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	// Currency is used for purchases created without one.
	Currency string `yaml:"currency"`
}

type AuthConfig struct {
	// AdminRoles may call the admin endpoints.
	AdminRoles []string `yaml:"admin_roles"`
	JWTSecret  string   `yaml:"-"`
}

type EncryptionConfig struct {
	// Key is 32 bytes hex encoded; normally supplied as BURSAR_ENCRYPTION_KEY.
	Key string `yaml:"-"`
}

type NotificationConfig struct {
	BufferSize int         `yaml:"buffer_size"`
	Channel    string      `yaml:"channel"`
	Redis      RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Addr        string        `yaml:"addr"`
	DB          int           `yaml:"db"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	Password    string        `yaml:"-"`
}

type RecurringConfig struct {
	BatchSize   int           `yaml:"batch_size"`
	MaxAttempts int           `yaml:"max_attempts"`
	ClaimTTL    time.Duration `yaml:"claim_ttl"`
}

// Secrets come from BURSAR_* environment variables.
type Secrets struct {
	JWTSecret     string `env:"JWT_SECRET"`
	EncryptionKey string `env:"ENCRYPTION_KEY"`
	DBPassword    string `env:"DB_PASSWORD"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`

	BraintreeMerchantID string `env:"BRAINTREE_MERCHANT_ID"`
	BraintreePublicKey  string `env:"BRAINTREE_PUBLIC_KEY"`
	BraintreePrivateKey string `env:"BRAINTREE_PRIVATE_KEY"`

	// NotifySecret signs notifications posted to /webhook/notify.
	NotifySecret string `env:"NOTIFY_SECRET"`
}

func (c *Config) applySecrets() {
	s := c.Secrets
	c.Auth.JWTSecret = s.JWTSecret
	c.Encryption.Key = s.EncryptionKey
	if s.DBPassword != "" {
		c.Database.Password = s.DBPassword
	}
	c.Notification.Redis.Password = s.RedisPassword

	for key, gw := range c.Gateways {
		gw.key = key
		switch gw.Type() {
		case "stripe":
			gw.Credentials.SecretKey = firstNonEmpty(gw.Credentials.SecretKey, s.StripeSecretKey)
			gw.Credentials.WebhookSecret = firstNonEmpty(gw.Credentials.WebhookSecret, s.StripeWebhookSecret)
		case "braintree":
			gw.Credentials.MerchantID = firstNonEmpty(gw.Credentials.MerchantID, s.BraintreeMerchantID)
			gw.Credentials.PublicKey = firstNonEmpty(gw.Credentials.PublicKey, s.BraintreePublicKey)
			gw.Credentials.PrivateKey = firstNonEmpty(gw.Credentials.PrivateKey, s.BraintreePrivateKey)
		}
		gw.Credentials.NotifySecret = firstNonEmpty(gw.Credentials.NotifySecret, s.NotifySecret)
		c.Gateways[key] = gw
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
