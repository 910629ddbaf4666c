package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/uma-arai/sbcntr-restaurant/internal/common/database"
)

type Config struct {
	Env      string
	LogLevel string
	Server   ServerConfig
	DB       database.Config
	Redis    RedisConfig
	Booking  BookingConfig
	SFN      struct {
		TaskToken string
	}
	EnableTracing bool
}

type ServerConfig struct {
	Port            string
	RateLimitPerMin int
	ShutdownTimeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// BookingConfig は予約ルールの設定です
type BookingConfig struct {
	MinDuration  time.Duration
	MaxDuration  time.Duration
	MaxPartySize int
	OpeningHour  int
	ClosingHour  int
	Location     *time.Location
}

// LoadConfig は環境変数と設定ファイル(config.yaml)から設定を読み込みます
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	setDefaults(v)

	// 環境変数名はdocker-compose(POSTGRES_*)とECS(DB_*)の両方を受け付ける
	_ = v.BindEnv("db.user", "POSTGRES_USER", "DB_USERNAME")
	_ = v.BindEnv("db.password", "POSTGRES_PASSWORD", "DB_PASSWORD")
	_ = v.BindEnv("db.password_file", "POSTGRES_PASSWORD_FILE")
	_ = v.BindEnv("db.name", "POSTGRES_DB", "DB_NAME")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	password := v.GetString("db.password")
	if file := v.GetString("db.password_file"); file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read POSTGRES_PASSWORD_FILE: %w", err)
		}
		password = strings.TrimSpace(string(b))
	}

	loc, err := time.LoadLocation(v.GetString("TIMEZONE"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	cfg := &Config{
		Env:      v.GetString("ENV"),
		LogLevel: v.GetString("LOG_LEVEL"),
		Server: ServerConfig{
			Port:            v.GetString("PORT"),
			RateLimitPerMin: v.GetInt("RATE_LIMIT_PER_MIN"),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		},
		DB: database.Config{
			Host:        v.GetString("DB_HOST"),
			Port:        v.GetInt("DB_PORT"),
			UserName:    v.GetString("db.user"),
			Password:    password,
			DBName:      v.GetString("db.name"),
			SSLMode:     v.GetString("DB_SSL_MODE"),
			WaitTimeout: v.GetDuration("DB_WAIT_TIMEOUT"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			CacheTTL: v.GetDuration("CACHE_TTL"),
		},
		Booking: BookingConfig{
			MinDuration:  v.GetDuration("MIN_RESERVATION"),
			MaxDuration:  v.GetDuration("MAX_RESERVATION"),
			MaxPartySize: v.GetInt("MAX_PARTY_SIZE"),
			OpeningHour:  v.GetInt("OPENING_HOUR"),
			ClosingHour:  v.GetInt("CLOSING_HOUR"),
			Location:     loc,
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// 環境変数[SBCNTR_ENABLE_TRACING]を見てトレースを有効にする。対応しているTracingはAWS_XRAYのみ。
	// 環境変数[AWS_XRAY_SDK_DISABLED]がtrueの場合は必ずトレースを無効にする。
	enableKey := v.GetString("SBCNTR_ENABLE_TRACING")
	if !sdkDisabled() && (strings.ToLower(enableKey) == "true" || enableKey == "1") {
		os.Setenv("AWS_XRAY_SDK_DISABLED", "FALSE")
		cfg.EnableTracing = true
	} else {
		os.Setenv("AWS_XRAY_SDK_DISABLED", "TRUE")
		cfg.EnableTracing = false
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PORT", "8000")
	v.SetDefault("RATE_LIMIT_PER_MIN", 600)
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "restaurant_db")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_WAIT_TIMEOUT", "60s")

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_TTL", "5m")

	v.SetDefault("MIN_RESERVATION", "1h")
	v.SetDefault("MAX_RESERVATION", "24h")
	v.SetDefault("MAX_PARTY_SIZE", 6)
	v.SetDefault("OPENING_HOUR", 10)
	v.SetDefault("CLOSING_HOUR", 23)
	v.SetDefault("TIMEZONE", "UTC")
}

func (c *Config) validate() error {
	b := c.Booking
	if b.OpeningHour < 0 || b.ClosingHour > 24 || b.OpeningHour >= b.ClosingHour {
		return fmt.Errorf("invalid opening hours %d-%d", b.OpeningHour, b.ClosingHour)
	}
	if b.MaxPartySize < 1 {
		return fmt.Errorf("MAX_PARTY_SIZE must be positive")
	}
	if b.MinDuration <= 0 {
		return fmt.Errorf("MIN_RESERVATION must be positive")
	}
	if b.MaxDuration < b.MinDuration {
		return fmt.Errorf("MAX_RESERVATION must not be shorter than MIN_RESERVATION")
	}
	return nil
}

// IsProduction は本番環境かどうかを返します
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Check if SDK is disabled
func sdkDisabled() bool {
	disableKey := os.Getenv("AWS_XRAY_SDK_DISABLED")
	return strings.ToLower(disableKey) == "true"
}
