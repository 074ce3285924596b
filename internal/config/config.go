package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"lending-ledger/internal/pkg/money"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Events   EventsConfig   `mapstructure:"events"`
}

type ServerConfig struct {
	Port         int             `mapstructure:"port"`
	ReadTimeout  time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout time.Duration   `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration   `mapstructure:"idle_timeout"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
	Auth         AuthConfig      `mapstructure:"auth"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type LoggerConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type MetricsConfig struct {
	Port int    `mapstructure:"port"`
	Path string `mapstructure:"path"`
}

// LedgerConfig holds the accounting parameters. MonthlyRate is a decimal
// string so the rate never passes through a float.
type LedgerConfig struct {
	MonthlyRate    string `mapstructure:"monthly_rate"`
	AuditTolerance string `mapstructure:"audit_tolerance"`
}

type BatchConfig struct {
	CompoundingSweepSchedule string        `mapstructure:"compounding_sweep_schedule"`
	CompoundingSweepTimeout  time.Duration `mapstructure:"compounding_sweep_timeout"`
}

type EventsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 15*time.Second)
	viper.SetDefault("server.write_timeout", 15*time.Second)
	viper.SetDefault("server.idle_timeout", 60*time.Second)
	viper.SetDefault("server.rate_limit.enabled", false)
	viper.SetDefault("server.rate_limit.rps", 20.0)
	viper.SetDefault("server.rate_limit.burst", 40)
	viper.SetDefault("server.auth.enabled", false)
	viper.SetDefault("server.auth.jwt_secret", "")

	viper.SetDefault("database.url", "")

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.encoding", "json")

	viper.SetDefault("metrics.port", 9090)
	viper.SetDefault("metrics.path", "/metrics")

	viper.SetDefault("ledger.monthly_rate", "0.20")
	viper.SetDefault("ledger.audit_tolerance", "0.01")

	viper.SetDefault("batch.compounding_sweep_schedule", "0 2 * * *")
	viper.SetDefault("batch.compounding_sweep_timeout", 30*time.Minute)

	viper.SetDefault("events.enabled", false)
	viper.SetDefault("events.url", "")
	viper.SetDefault("events.exchange", "lending-ledger.events")
}

// LoadConfig reads config.yaml from the given path if present, then lets
// environment variables (SERVER_PORT, DATABASE_URL, ...) override it.
func LoadConfig(path string) (*Config, error) {
	setDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(path)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Ledger.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects malformed accounting parameters at load time, so the
// engine never sees a rate it cannot parse.
func (c LedgerConfig) validate() error {
	rate, err := money.FromString(c.MonthlyRate)
	if err != nil {
		return fmt.Errorf("ledger.monthly_rate: %w", err)
	}
	if rate.IsNegative() {
		return fmt.Errorf("ledger.monthly_rate must not be negative, got %s", c.MonthlyRate)
	}
	tol, err := money.FromString(c.AuditTolerance)
	if err != nil {
		return fmt.Errorf("ledger.audit_tolerance: %w", err)
	}
	if tol.IsNegative() {
		return fmt.Errorf("ledger.audit_tolerance must not be negative, got %s", c.AuditTolerance)
	}
	return nil
}
