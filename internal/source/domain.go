package source

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Snapshot is one normalized observation of an item at a point in time. All
// sources produce this canonical shape regardless of their raw payload.
type Snapshot struct {
	ExternalID      string              `json:"external_id"`
	Title           string              `json:"title"`
	Price           decimal.NullDecimal `json:"price"`
	OldPrice        decimal.NullDecimal `json:"old_price"`
	DiscountPercent *float64            `json:"discount_percent,omitempty"`
	Stock           *int                `json:"stock,omitempty"`
	Rating          *float64            `json:"rating,omitempty"`
	URL             string              `json:"url,omitempty"`
	ImageURL        string              `json:"image_url,omitempty"`
}

// ParseResult carries either a snapshot or the per-item failure that produced
// it. Fetch and parse failures are reported per item, never as a batch-wide
// error, so a cycle can proceed with partial results.
type ParseResult struct {
	ExternalID string
	Snapshot   *Snapshot
	Err        error
}

// NullDecimal coerces a raw price string into a nullable decimal. Blank
// strings and unparseable values become null; comma decimal separators are
// accepted.
func NullDecimal(raw string) decimal.NullDecimal {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.NullDecimal{}
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// FloatPtr coerces a raw numeric string into a nullable float.
func FloatPtr(raw string) *float64 {
	s := strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// IntPtr coerces a raw numeric string into a nullable int.
func IntPtr(raw string) *int {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return nil
		}
		n = int(f)
	}
	return &n
}

func floatOf(f float64) *float64 { return &f }

func intOf(n int) *int { return &n }
