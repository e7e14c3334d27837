// Package settings provides runtime configuration stored in the database.
// Values are read fresh at the start of every pipeline cycle, so threshold
// changes take effect without a restart.
package settings

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Setting keys.
const (
	KeyMinPriceDrop       = "min_price_drop_percent"
	KeyMinDiscountUp      = "min_discount_increase_points"
	KeyStabilityThreshold = "stability_threshold_cycles"
	KeyPublishRatePerHour = "publish_rate_per_hour"
	KeyTargetCatalogSize  = "target_catalog_size"
	KeyRefillQueries      = "refill_queries"
)

// Values is the live configuration surface of one pipeline cycle.
type Values struct {
	MinPriceDropPercent       float64  `json:"min_price_drop_percent"`
	MinDiscountIncreasePoints float64  `json:"min_discount_increase_points"`
	StabilityThresholdCycles  int      `json:"stability_threshold_cycles"`
	PublishRatePerHour        int      `json:"publish_rate_per_hour"`
	TargetCatalogSize         int      `json:"target_catalog_size"`
	RefillQueries             []string `json:"refill_queries"`
}

// Manager reads and writes settings rows, falling back to configured
// defaults for keys that have never been set.
type Manager struct {
	db       *sql.DB
	defaults Values
}

func NewManager(db *sql.DB, defaults Values) *Manager {
	return &Manager{db: db, defaults: defaults}
}

// Defaults returns the compiled-in fallback values.
func (m *Manager) Defaults() Values { return m.defaults }

// Load returns the effective values: stored rows overlaid on the defaults.
func (m *Manager) Load(ctx context.Context) (Values, error) {
	v := m.defaults

	rows, err := m.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return v, fmt.Errorf("load settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return v, fmt.Errorf("scan setting: %w", err)
		}
		applyKey(&v, key, raw)
	}
	return v, rows.Err()
}

func applyKey(v *Values, key, raw string) {
	switch key {
	case KeyMinPriceDrop:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			v.MinPriceDropPercent = f
		}
	case KeyMinDiscountUp:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			v.MinDiscountIncreasePoints = f
		}
	case KeyStabilityThreshold:
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			v.StabilityThresholdCycles = n
		}
	case KeyPublishRatePerHour:
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			v.PublishRatePerHour = n
		}
	case KeyTargetCatalogSize:
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			v.TargetCatalogSize = n
		}
	case KeyRefillQueries:
		var qs []string
		for _, q := range strings.Split(raw, ",") {
			if q = strings.TrimSpace(q); q != "" {
				qs = append(qs, q)
			}
		}
		v.RefillQueries = qs
	}
}

// Set upserts one setting row.
func (m *Manager) Set(ctx context.Context, key, value string) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}
