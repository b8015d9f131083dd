package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type Config struct {
	Port                   string
	AllowedOrigin          string
	DatabaseURL            string
	AutoMigrate            bool
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	OutletID               string
	SummaryCacheTTLSeconds int
	AuthSecret             string
	AccessTokenTTLMinutes  int
	ManagerPIN             string
	DiscountLimitPercent   decimal.Decimal
	DefaultTaxRatePercent  decimal.Decimal
	LogLevel               string
	LogFormat              string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	ttl, err := strconv.Atoi(getEnv("SUMMARY_CACHE_TTL_SECONDS", "60"))
	if err != nil || ttl < 0 {
		ttl = 60
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	autoMigrate, _ := strconv.ParseBool(getEnv("DB_AUTO_MIGRATE", "false"))

	cfg := Config{
		Port:                   getEnv("PORT", "8080"),
		AllowedOrigin:          getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		AutoMigrate:            autoMigrate,
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                redisDB,
		OutletID:               getEnv("DEFAULT_OUTLET_ID", "main-store"),
		SummaryCacheTTLSeconds: ttl,
		AuthSecret:             strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:  tokenTTL,
		ManagerPIN:             strings.TrimSpace(os.Getenv("MANAGER_PIN")),
		DiscountLimitPercent:   getPercent("DISCOUNT_LIMIT_PERCENT", decimal.NewFromInt(50)),
		DefaultTaxRatePercent:  getPercent("DEFAULT_TAX_RATE_PERCENT", decimal.Zero),
		LogLevel:               strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:              strings.ToLower(getEnv("LOG_FORMAT", "json")),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

// getPercent falls back when the value is unparsable or outside [0, 100].
func getPercent(key string, fallback decimal.Decimal) decimal.Decimal {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	val, err := decimal.NewFromString(raw)
	if err != nil || val.IsNegative() || val.GreaterThan(decimal.NewFromInt(100)) {
		return fallback
	}
	return val
}
