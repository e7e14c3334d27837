package publish

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"pricewatch/internal/detect"
	"pricewatch/internal/source"
)

// Selector applies the business thresholds that decide which trusted changes
// are worth publishing. Thresholds are re-read from settings every cycle, so
// a fresh Selector is built per run.
type Selector struct {
	// MinPriceDropPercent is the smallest price drop, in percent of the old
	// price, that qualifies. A drop of exactly this value qualifies.
	MinPriceDropPercent float64
	// MinDiscountIncreasePoints is the smallest discount increase, in
	// percentage points, that qualifies.
	MinDiscountIncreasePoints float64
}

// Select returns publish candidates in ChangeResult order. Only stable,
// already-baselined, changed items with at least one qualifying reason pass.
func (s Selector) Select(results []detect.ChangeResult, snaps []source.Snapshot) []Candidate {
	byID := make(map[string]source.Snapshot, len(snaps))
	for _, snap := range snaps {
		byID[snap.ExternalID] = snap
	}

	var out []Candidate
	for _, res := range results {
		if res.IsNew || !res.IsStable || res.JustStabilized || !res.HasChanges {
			continue
		}
		reason := s.Reason(res)
		if reason == "" {
			continue
		}
		snap, ok := byID[res.Item.ExternalID]
		if !ok {
			continue
		}
		out = append(out, Candidate{Item: res.Item, Snapshot: snap, Reason: reason})
	}
	return out
}

// Reason renders every qualifying change as one line and joins them; an empty
// string means nothing about this result is publish-worthy.
func (s Selector) Reason(res detect.ChangeResult) string {
	var reasons []string

	for _, ch := range res.Changes {
		switch ch.Field {
		case detect.FieldPrice:
			oldPrice, okOld := asDecimal(ch.Old)
			newPrice, okNew := asDecimal(ch.New)
			if !okOld || !okNew {
				continue
			}
			if !oldPrice.IsPositive() || !newPrice.IsPositive() {
				continue
			}
			if newPrice.GreaterThanOrEqual(oldPrice) {
				continue
			}
			drop := oldPrice.Sub(newPrice).Div(oldPrice).Mul(decimal.NewFromInt(100))
			if drop.GreaterThanOrEqual(decimal.NewFromFloat(s.MinPriceDropPercent)) {
				reasons = append(reasons, fmt.Sprintf(
					"Price drop: %s → %s (-%s%%)",
					oldPrice.StringFixed(0), newPrice.StringFixed(0), drop.StringFixed(1),
				))
			}

		case detect.FieldDiscount:
			oldDisc, okOld := asFloat(ch.Old)
			newDisc, okNew := asFloat(ch.New)
			if !okNew {
				continue
			}
			if !okOld {
				oldDisc = 0
			}
			if newDisc <= oldDisc {
				continue
			}
			increase := newDisc - oldDisc
			if increase >= s.MinDiscountIncreasePoints {
				reasons = append(reasons, fmt.Sprintf(
					"Discount up: %.0f%% → %.0f%% (+%.0f pts)",
					oldDisc, newDisc, increase,
				))
			}
		}
	}

	return strings.Join(reasons, "\n")
}

func asDecimal(v any) (decimal.Decimal, bool) {
	nd, ok := v.(decimal.NullDecimal)
	if !ok || !nd.Valid {
		return decimal.Decimal{}, false
	}
	return nd.Decimal, true
}

func asFloat(v any) (float64, bool) {
	p, ok := v.(*float64)
	if !ok || p == nil {
		return 0, false
	}
	return *p, true
}
