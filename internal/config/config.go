package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	ProviderPaystack = "paystack"
	ProviderMock     = "mock"
)

// Config holds all runtime configuration derived from environment variables.
type Config struct {
	HTTPPort    string
	DatabaseURL string
	RedisURL    string
	LogLevel    string

	JWTSecret    string
	JWTIssuer    string
	JWTAudience  string
	JWTTTL       time.Duration
	AuthDevLogin bool

	PaymentProvider     string
	PaystackSecretKey   string
	PaystackBaseURL     string
	PaystackCallbackURL string

	WebhookSkipSignature bool

	ProviderTimeout time.Duration
	SettleTimeout   time.Duration

	DepositVerifyInterval  time.Duration
	DepositVerifyBatchSize int32
	DepositVerifyGrace     time.Duration
	DepositExpiry          time.Duration

	WalletNumberMaxAttempts int
	IdempotencyTTL          time.Duration
	DBAutoMigrate           bool
}

// Load reads environment variables using viper and returns a typed config.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	for _, key := range []string{
		"port", "database_url", "redis_url", "log_level",
		"jwt_secret", "jwt_issuer", "jwt_audience", "jwt_ttl", "auth_dev_login",
		"payment_provider", "paystack_secret_key", "paystack_base_url", "paystack_callback_url",
		"webhook_skip_sig", "provider_timeout", "settle_timeout",
		"deposit_verify_interval", "deposit_verify_batch_size", "deposit_verify_grace", "deposit_expiry",
		"wallet_number_max_attempts", "idempotency_ttl", "db_auto_migrate",
	} {
		env := strings.ToUpper(key)
		bindEnv(v, key, env, "WALLET_"+env)
	}

	v.SetDefault("port", "8080")
	v.SetDefault("database_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_issuer", "wallet-ledger")
	v.SetDefault("jwt_audience", "wallet-api")
	v.SetDefault("jwt_ttl", "24h")
	v.SetDefault("auth_dev_login", false)
	v.SetDefault("payment_provider", ProviderPaystack)
	v.SetDefault("paystack_secret_key", "")
	v.SetDefault("paystack_base_url", "https://api.paystack.co")
	v.SetDefault("paystack_callback_url", "")
	v.SetDefault("webhook_skip_sig", false)
	v.SetDefault("provider_timeout", "10s")
	v.SetDefault("settle_timeout", "5s")
	v.SetDefault("deposit_verify_interval", "1m")
	v.SetDefault("deposit_verify_batch_size", 50)
	v.SetDefault("deposit_verify_grace", "2m")
	v.SetDefault("deposit_expiry", "24h")
	v.SetDefault("wallet_number_max_attempts", 10)
	v.SetDefault("idempotency_ttl", "24h")
	v.SetDefault("db_auto_migrate", true)

	durations := map[string]*time.Duration{}
	cfg := &Config{
		HTTPPort:                v.GetString("port"),
		DatabaseURL:             strings.TrimSpace(v.GetString("database_url")),
		RedisURL:                strings.TrimSpace(v.GetString("redis_url")),
		LogLevel:                v.GetString("log_level"),
		JWTSecret:               v.GetString("jwt_secret"),
		JWTIssuer:               v.GetString("jwt_issuer"),
		JWTAudience:             v.GetString("jwt_audience"),
		AuthDevLogin:            v.GetBool("auth_dev_login"),
		PaymentProvider:         strings.ToLower(strings.TrimSpace(v.GetString("payment_provider"))),
		PaystackSecretKey:       v.GetString("paystack_secret_key"),
		PaystackBaseURL:         strings.TrimRight(v.GetString("paystack_base_url"), "/"),
		PaystackCallbackURL:     v.GetString("paystack_callback_url"),
		WebhookSkipSignature:    v.GetBool("webhook_skip_sig"),
		WalletNumberMaxAttempts: v.GetInt("wallet_number_max_attempts"),
		DBAutoMigrate:           v.GetBool("db_auto_migrate"),
	}
	durations["jwt_ttl"] = &cfg.JWTTTL
	durations["provider_timeout"] = &cfg.ProviderTimeout
	durations["settle_timeout"] = &cfg.SettleTimeout
	durations["deposit_verify_interval"] = &cfg.DepositVerifyInterval
	durations["deposit_verify_grace"] = &cfg.DepositVerifyGrace
	durations["deposit_expiry"] = &cfg.DepositExpiry
	durations["idempotency_ttl"] = &cfg.IdempotencyTTL

	for key, dst := range durations {
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", strings.ToUpper(key), err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("%s must be positive", strings.ToUpper(key))
		}
		*dst = d
	}

	batchSize := v.GetInt("deposit_verify_batch_size")
	if batchSize <= 0 {
		batchSize = 50
	}
	cfg.DepositVerifyBatchSize = int32(batchSize)
	if cfg.WalletNumberMaxAttempts <= 0 {
		cfg.WalletNumberMaxAttempts = 10
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if strings.TrimSpace(c.JWTIssuer) == "" {
		return fmt.Errorf("JWT_ISSUER is required")
	}
	if strings.TrimSpace(c.JWTAudience) == "" {
		return fmt.Errorf("JWT_AUDIENCE is required")
	}
	switch c.PaymentProvider {
	case ProviderMock:
	case ProviderPaystack:
		if !c.WebhookSkipSignature && strings.TrimSpace(c.PaystackSecretKey) == "" {
			return fmt.Errorf("PAYSTACK_SECRET_KEY is required when WEBHOOK_SKIP_SIG is false")
		}
	default:
		return fmt.Errorf("PAYMENT_PROVIDER must be %q or %q, got %q", ProviderPaystack, ProviderMock, c.PaymentProvider)
	}
	return nil
}

func bindEnv(v *viper.Viper, key string, names ...string) {
	args := append([]string{key}, names...)
	_ = v.BindEnv(args...)
}
