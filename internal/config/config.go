// Package config loads service configuration from an optional YAML file and
// PSP_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	pspctx "github.com/yourorg/psp-multisafepay/internal/context"
)

// EnvPrefix is prepended to every environment variable, e.g. PSP_HTTP_PORT.
const EnvPrefix = "PSP"

type Config struct {
	Environment string         `mapstructure:"environment"`
	HTTP        HTTPConfig     `mapstructure:"http"`
	Log         LogConfig      `mapstructure:"log"`
	Postgres    PostgresConfig `mapstructure:"postgres"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Kafka       KafkaConfig    `mapstructure:"kafka"`
	Gateway     GatewayConfig  `mapstructure:"gateway"`
	Provider    ProviderConfig `mapstructure:"provider"`
}

type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// PostgresConfig enables the settings store and the audit table when DSN is set.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// RedisConfig enables the settings cache when Addr is set.
type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	SettingsTTL time.Duration `mapstructure:"settings_ttl"`
}

// KafkaConfig enables audit publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers    []string `mapstructure:"brokers"`
	AuditTopic string   `mapstructure:"audit_topic"`
}

type GatewayConfig struct {
	Timeout              time.Duration `mapstructure:"timeout"`
	BreakerEnabled       bool          `mapstructure:"breaker_enabled"`
	FailureThreshold     int           `mapstructure:"failure_threshold"`
	ResetTimeout         time.Duration `mapstructure:"reset_timeout"`
	SettlementExpression string        `mapstructure:"settlement_expression"`
}

// ProviderConfig describes the provider record the HTTP surface pays with.
// The API keys are only used to seed the in-memory store when Postgres is off.
type ProviderConfig struct {
	ID         uint64 `mapstructure:"id"`
	Title      string `mapstructure:"title"`
	Currency   string `mapstructure:"currency"`
	WebhookURL string `mapstructure:"webhook_url"`
	SuccessURL string `mapstructure:"success_url"`
	PendingURL string `mapstructure:"pending_url"`
	FailURL    string `mapstructure:"fail_url"`
	APIKeyLive string `mapstructure:"api_key_live"`
	APIKeyTest string `mapstructure:"api_key_test"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", pspctx.Development.String())
	v.SetDefault("http.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.settings_ttl", 5*time.Minute)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.audit_topic", "psp.audit")
	v.SetDefault("gateway.timeout", 30*time.Second)
	v.SetDefault("gateway.breaker_enabled", true)
	v.SetDefault("gateway.failure_threshold", 5)
	v.SetDefault("gateway.reset_timeout", 30*time.Second)
	v.SetDefault("gateway.settlement_expression", "")
	v.SetDefault("provider.id", 1)
	v.SetDefault("provider.title", "MultiSafepay")
	v.SetDefault("provider.currency", "EUR")
	v.SetDefault("provider.webhook_url", "")
	v.SetDefault("provider.success_url", "")
	v.SetDefault("provider.pending_url", "")
	v.SetDefault("provider.fail_url", "")
	v.SetDefault("provider.api_key_live", "")
	v.SetDefault("provider.api_key_test", "")
}

// Load reads configuration. path may be empty, in which case only defaults
// and environment variables are used.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if _, err := pspctx.ParseEnvironment(c.Environment); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("config: invalid http port %d", c.HTTP.Port)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.AuditTopic == "" {
		return fmt.Errorf("config: kafka.audit_topic is required when brokers are set")
	}
	return nil
}

// DeploymentEnvironment returns the parsed environment. Call after Validate.
func (c *Config) DeploymentEnvironment() pspctx.Environment {
	env, _ := pspctx.ParseEnvironment(c.Environment)
	return env
}

// ProviderSettings returns the base settings for the configured provider.
// The API key is filled in later by the settings resolver.
func (c *Config) ProviderSettings() pspctx.ProviderSettings {
	return pspctx.ProviderSettings{
		ID:         c.Provider.ID,
		Title:      c.Provider.Title,
		Kind:       pspctx.ProviderMultiSafepay,
		WebhookURL: c.Provider.WebhookURL,
		SuccessURL: c.Provider.SuccessURL,
		PendingURL: c.Provider.PendingURL,
		FailURL:    c.Provider.FailURL,
		Currency:   c.Provider.Currency,
	}
}
