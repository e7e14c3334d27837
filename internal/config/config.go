// Package config loads process configuration from the environment, with a
// .env file picked up when present. Values that may change at runtime live in
// the settings table; these are the static defaults and wiring knobs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"pricewatch/internal/filter"
	"pricewatch/internal/settings"
)

type Config struct {
	DatabaseURL string

	BotToken string
	Channel  string

	AdminAddr      string
	AdminTokenHash string
	AdminTokenSalt string

	WBInterval time.Duration

	BatchSize  int
	BatchPause time.Duration

	Filter   filter.Rules
	Defaults settings.Values
}

// Load reads the environment. Only the database DSN and bot token are
// required; everything else has a default.
func Load() (Config, error) {
	// Non-fatal if missing; env vars win over file values.
	_ = godotenv.Load()

	cfg := Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		BotToken:       os.Getenv("BOT_TOKEN"),
		Channel:        os.Getenv("POSTING_CHANNEL"),
		AdminAddr:      envStr("ADMIN_ADDR", ":8080"),
		AdminTokenHash: os.Getenv("ADMIN_TOKEN_HASH"),
		AdminTokenSalt: os.Getenv("ADMIN_TOKEN_SALT"),
		WBInterval:     envDuration("PARSING_WB_SECONDS", 300*time.Second),
		BatchSize:      envInt("PARSE_BATCH_SIZE", 50),
		BatchPause:     envDuration("PARSE_BATCH_PAUSE_MS", 300*time.Millisecond),
		Filter: filter.Rules{
			MinPrice:           envFloat("FILTER_MIN_PRICE", 0),
			MaxPrice:           envFloat("FILTER_MAX_PRICE", 0),
			MinStock:           envInt("FILTER_MIN_STOCK", 0),
			MinDiscountPercent: envFloat("FILTER_MIN_DISCOUNT_PERCENT", 0),
		},
		Defaults: settings.Values{
			MinPriceDropPercent:       envFloat("MIN_PRICE_DROP_PERCENT", 1.0),
			MinDiscountIncreasePoints: envFloat("MIN_DISCOUNT_INCREASE_POINTS", 5.0),
			StabilityThresholdCycles:  envInt("STABILITY_THRESHOLD_CYCLES", 3),
			PublishRatePerHour:        envInt("PUBLISH_RATE_PER_HOUR", 20),
			TargetCatalogSize:         envInt("TARGET_CATALOG_SIZE", 3000),
			RefillQueries:             envList("REFILL_QUERIES"),
		},
	}

	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.BotToken == "" {
		return cfg, fmt.Errorf("BOT_TOKEN is required")
	}
	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// envDuration reads an integer env var and scales it by the fallback's unit:
// keys ending in _SECONDS are seconds, _MS are milliseconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	if len(key) > 3 && key[len(key)-3:] == "_MS" {
		return time.Duration(n) * time.Millisecond
	}
	return time.Duration(n) * time.Second
}
