// Package filter drops snapshots that fail the configured pre-publication
// bounds before they reach classification. A zero value disables a rule.
package filter

import (
	"github.com/shopspring/decimal"

	"pricewatch/internal/source"
)

// Rules holds the snapshot admission bounds.
type Rules struct {
	MinPrice           float64
	MaxPrice           float64
	MinStock           int
	MinDiscountPercent float64
}

// Apply returns the snapshots that pass every enabled rule, preserving order.
func (r Rules) Apply(snaps []source.Snapshot) []source.Snapshot {
	out := make([]source.Snapshot, 0, len(snaps))
	for _, s := range snaps {
		if r.Passes(s) {
			out = append(out, s)
		}
	}
	return out
}

// Passes reports whether a single snapshot satisfies the rules. A snapshot
// with no price fails any enabled price rule.
func (r Rules) Passes(s source.Snapshot) bool {
	if !s.Price.Valid {
		if r.MinPrice > 0 || r.MaxPrice > 0 {
			return false
		}
	} else {
		price := s.Price.Decimal
		if r.MinPrice > 0 && price.LessThan(decimal.NewFromFloat(r.MinPrice)) {
			return false
		}
		if r.MaxPrice > 0 && price.GreaterThan(decimal.NewFromFloat(r.MaxPrice)) {
			return false
		}
	}

	if r.MinStock > 0 {
		if s.Stock == nil || *s.Stock < r.MinStock {
			return false
		}
	}

	if r.MinDiscountPercent > 0 {
		if s.DiscountPercent == nil || *s.DiscountPercent < r.MinDiscountPercent {
			return false
		}
	}

	return true
}
