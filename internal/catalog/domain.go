package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is the durable record of one monitored listing. Identity is
// (platform, external_id), unique together and immutable once created.
type Item struct {
	ID         int64  `json:"id"`
	Platform   string `json:"platform"`
	ExternalID string `json:"external_id"`

	Title string `json:"title"`
	URL   string `json:"url,omitempty"`

	CurrentPrice decimal.NullDecimal `json:"current_price"`
	OldPrice     decimal.NullDecimal `json:"old_price"`
	Discount     *float64            `json:"discount,omitempty"`
	Stock        *int                `json:"stock,omitempty"`
	Rating       *float64            `json:"rating,omitempty"`

	// StableParseCount is the number of consecutive cycles the item has been
	// observed without a meaningful change. BaselineSetAt marks when the
	// current trusted baseline was established.
	StableParseCount int        `json:"stable_parse_count"`
	BaselineSetAt    *time.Time `json:"baseline_set_at,omitempty"`

	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// HistoryEntry is one immutable record of a meaningfully-changed observation.
type HistoryEntry struct {
	ID     int64 `json:"id"`
	ItemID int64 `json:"item_id"`

	Price    decimal.NullDecimal `json:"price"`
	OldPrice decimal.NullDecimal `json:"old_price"`
	Discount *float64            `json:"discount,omitempty"`
	Stock    *int                `json:"stock,omitempty"`
	Rating   *float64            `json:"rating,omitempty"`

	CheckedAt time.Time `json:"checked_at"`
}
