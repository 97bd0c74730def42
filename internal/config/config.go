// Package config loads runtime settings from the environment and the
// portfolio descriptor file.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DatabaseURL          string
	CoinGeckoURL         string
	CoinGeckoAPIKey      string
	CryptoCompareURL     string
	CryptoCompareAPIKey  string
	CoinAPIURL           string
	CoinAPIKey           string
	KrakenURL            string
	PriceTolerance       time.Duration
	MaxInFlight          int
	RunTimeout           time.Duration
	RetryMax             int
	RetryBaseDelay       time.Duration
	WatchInterval        time.Duration
	WatchRetention       time.Duration
	SheetID              string
	SheetCredentialsJSON string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is applied first when present.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("config: could not read .env file", "error", err)
	}

	return Config{
		DatabaseURL:          envOrDefault("DATABASE_URL", ""),
		CoinGeckoURL:         envOrDefault("COINGECKO_URL", "https://api.coingecko.com/api/v3"),
		CoinGeckoAPIKey:      envOrDefault("COINGECKO_API_KEY", ""),
		CryptoCompareURL:     envOrDefault("CRYPTOCOMPARE_URL", "https://min-api.cryptocompare.com"),
		CryptoCompareAPIKey:  envOrDefault("CRYPTOCOMPARE_API_KEY", ""),
		CoinAPIURL:           envOrDefault("COINAPI_URL", "https://rest.coinapi.io/v1"),
		CoinAPIKey:           envOrDefault("COINAPI_API_KEY", ""),
		KrakenURL:            envOrDefault("KRAKEN_URL", "https://api.kraken.com"),
		PriceTolerance:       envOrDefaultDuration("PRICE_TOLERANCE", time.Hour),
		MaxInFlight:          envOrDefaultInt("MAX_IN_FLIGHT", 4),
		RunTimeout:           envOrDefaultDuration("RUN_TIMEOUT", 2*time.Minute),
		RetryMax:             envOrDefaultInt("RETRY_MAX", 3),
		RetryBaseDelay:       envOrDefaultDuration("RETRY_BASE_DELAY", time.Second),
		WatchInterval:        envOrDefaultDuration("WATCH_INTERVAL", time.Hour),
		WatchRetention:       envOrDefaultDuration("WATCH_RETENTION", 0),
		SheetID:              envOrDefault("SHEET_ID", ""),
		SheetCredentialsJSON: envOrDefault("SHEET_CREDENTIALS_JSON", ""),
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}
