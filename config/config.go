package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the runtime configuration for the payment service. Values come
// from an optional TOML file overridden by GIGPAY_* environment variables;
// secrets are expected from the environment in deployed setups.
type Config struct {
	Port        string `toml:"port"`
	Environment string `toml:"environment"`
	DatabaseURL string `toml:"database_url"`

	Fees      FeeConfig       `toml:"fees"`
	Auth      AuthConfig      `toml:"auth"`
	Khalti    KhaltiConfig    `toml:"khalti"`
	Esewa     EsewaConfig     `toml:"esewa"`
	Webhook   WebhookConfig   `toml:"webhook"`
	Log       LogConfig       `toml:"log"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// FeeConfig overrides the platform fee rates. Zero keeps the defaults.
type FeeConfig struct {
	ClientRate     float64 `toml:"client_rate"`
	FreelancerRate float64 `toml:"freelancer_rate"`
}

// AuthConfig controls bearer token verification. An empty secret enables the
// unsigned development token format and must never be used in production.
type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
	Issuer    string `toml:"issuer"`
	Audience  string `toml:"audience"`
}

// KhaltiConfig holds the Khalti ePayment credentials.
type KhaltiConfig struct {
	BaseURL   string `toml:"base_url"`
	SecretKey string `toml:"secret_key"`
	ReturnURL string `toml:"return_url"`
}

// EsewaConfig holds the eSewa ePay credentials.
type EsewaConfig struct {
	BaseURL     string `toml:"base_url"`
	ProductCode string `toml:"product_code"`
	SecretKey   string `toml:"secret_key"`
	ReturnURL   string `toml:"return_url"`
}

// WebhookConfig throttles provider callback routes.
type WebhookConfig struct {
	RatePerSecond float64 `toml:"rate_per_second"`
	Burst         int     `toml:"burst"`
}

// LogConfig controls the optional rotated log file next to stdout.
type LogConfig struct {
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// TelemetryConfig controls the OTLP exporters.
type TelemetryConfig struct {
	Endpoint string `toml:"endpoint"`
	Insecure bool   `toml:"insecure"`
	Traces   bool   `toml:"traces"`
	Metrics  bool   `toml:"metrics"`
}

// Load reads the TOML file at path when it is non-empty, then applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Port:        "8080",
		Environment: "development",
		Khalti: KhaltiConfig{
			BaseURL: "https://a.khalti.com/api/v2",
		},
		Esewa: EsewaConfig{
			BaseURL: "https://epay.esewa.com.np",
		},
		Webhook: WebhookConfig{RatePerSecond: 10, Burst: 20},
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	cfg.applyEnv()

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: database_url (GIGPAY_DB_URL) is required")
	}
	if cfg.Environment == "production" && cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("config: auth.jwt_secret (GIGPAY_JWT_SECRET) is required in production")
	}
	cfg.Port = normalizePort(cfg.Port)
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Port, "GIGPAY_PORT")
	setString(&c.Environment, "GIGPAY_ENV")
	setString(&c.DatabaseURL, "GIGPAY_DB_URL")
	setFloat(&c.Fees.ClientRate, "GIGPAY_FEE_CLIENT_RATE")
	setFloat(&c.Fees.FreelancerRate, "GIGPAY_FEE_FREELANCER_RATE")
	setString(&c.Auth.JWTSecret, "GIGPAY_JWT_SECRET")
	setString(&c.Auth.Issuer, "GIGPAY_JWT_ISSUER")
	setString(&c.Auth.Audience, "GIGPAY_JWT_AUDIENCE")
	setString(&c.Khalti.BaseURL, "GIGPAY_KHALTI_BASE_URL")
	setString(&c.Khalti.SecretKey, "GIGPAY_KHALTI_SECRET_KEY")
	setString(&c.Khalti.ReturnURL, "GIGPAY_KHALTI_RETURN_URL")
	setString(&c.Esewa.BaseURL, "GIGPAY_ESEWA_BASE_URL")
	setString(&c.Esewa.ProductCode, "GIGPAY_ESEWA_PRODUCT_CODE")
	setString(&c.Esewa.SecretKey, "GIGPAY_ESEWA_SECRET_KEY")
	setString(&c.Esewa.ReturnURL, "GIGPAY_ESEWA_RETURN_URL")
	setFloat(&c.Webhook.RatePerSecond, "GIGPAY_WEBHOOK_RATE")
	setInt(&c.Webhook.Burst, "GIGPAY_WEBHOOK_BURST")
	setString(&c.Log.File, "GIGPAY_LOG_FILE")
	setString(&c.Telemetry.Endpoint, "GIGPAY_OTLP_ENDPOINT")
	setBool(&c.Telemetry.Insecure, "GIGPAY_OTLP_INSECURE")
	setBool(&c.Telemetry.Traces, "GIGPAY_OTLP_TRACES")
	setBool(&c.Telemetry.Metrics, "GIGPAY_OTLP_METRICS")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = parsed
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

func normalizePort(port string) string {
	if port == "" {
		return "8080"
	}
	// Allow values like ":8080".
	if port[0] == ':' {
		return port[1:]
	}
	return port
}
