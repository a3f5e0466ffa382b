package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"

	"github.com/wekeepgrowing/bursar/pkg/logger"
)

type Config struct {
	Service      ServiceConfig            `yaml:"service"`
	Database     DatabaseConfig           `yaml:"database"`
	Server       ServerConfig             `yaml:"server"`
	Log          logger.Config            `yaml:"log"`
	Auth         AuthConfig               `yaml:"auth"`
	Encryption   EncryptionConfig         `yaml:"encryption"`
	Notification NotificationConfig       `yaml:"notification"`
	Recurring    RecurringConfig          `yaml:"recurring"`
	Gateways     map[string]GatewayConfig `yaml:"gateways"`

	// Secrets are read from the environment only.
	Secrets Secrets `yaml:"-"`
}

// LoadConfig reads the YAML file named by CONFIG_PATH and overlays the
// BURSAR_* environment variables.
func LoadConfig() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/bursar.yaml"
	}

	// Ensure absolute path
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse builds a Config from YAML and the environment.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := env.ParseWithOptions(&cfg.Secrets, env.Options{Prefix: "BURSAR_"}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.applySecrets()
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "bursar"
	}
	if c.Service.Currency == "" {
		c.Service.Currency = "USD"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.Server.HTTP.Port == 0 {
		c.Server.HTTP.Port = 8080
	}
	if c.Notification.Channel == "" {
		c.Notification.Channel = "bursar.payment.completed"
	}
	if c.Notification.BufferSize <= 0 {
		c.Notification.BufferSize = 256
	}
	if c.Recurring.BatchSize <= 0 {
		c.Recurring.BatchSize = 100
	}
	if c.Recurring.MaxAttempts <= 0 {
		c.Recurring.MaxAttempts = 4
	}
	if c.Recurring.ClaimTTL <= 0 {
		c.Recurring.ClaimTTL = 10 * time.Minute
	}
	c.Log.Service = c.Service.Name
}
