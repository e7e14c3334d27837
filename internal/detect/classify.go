package detect

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"pricewatch/internal/catalog"
	"pricewatch/internal/source"
)

// floatEpsilon absorbs representation noise in re-parsed float fields so a
// value that round-trips through text is not reported as a change.
const floatEpsilon = 1e-6

// Classifier applies observed snapshots to items and tracks stability. It is
// pure: callers own loading and persisting the items it mutates.
type Classifier struct {
	// StabilityThreshold is the number of consecutive unchanged cycles after
	// which an item's baseline is trusted.
	StabilityThreshold int
}

// dedupe collapses duplicate external ids in a batch: the last snapshot wins,
// the position of the first occurrence is kept.
func dedupe(snaps []source.Snapshot) []source.Snapshot {
	index := make(map[string]int, len(snaps))
	out := make([]source.Snapshot, 0, len(snaps))
	for _, s := range snaps {
		if s.ExternalID == "" {
			continue
		}
		if i, ok := index[s.ExternalID]; ok {
			out[i] = s
			continue
		}
		index[s.ExternalID] = len(out)
		out = append(out, s)
	}
	return out
}

// NewItem builds the stored baseline for a first-ever observation.
func (c *Classifier) NewItem(platform string, snap source.Snapshot, now time.Time) (*catalog.Item, ChangeResult) {
	title := snap.Title
	if title == "" {
		title = snap.ExternalID
	}
	item := &catalog.Item{
		Platform:      platform,
		ExternalID:    snap.ExternalID,
		Title:         title,
		URL:           snap.URL,
		CurrentPrice:  snap.Price,
		OldPrice:      snap.OldPrice,
		Discount:      snap.DiscountPercent,
		Stock:         snap.Stock,
		Rating:        snap.Rating,
		BaselineSetAt: &now,
		LastCheckedAt: &now,
		CreatedAt:     now,
	}
	return item, ChangeResult{Item: item, IsNew: true}
}

// ClassifyExisting compares a snapshot against the stored item, applies every
// observed field in place and advances the stability state. The returned
// result reflects whether the change arrived against a trusted baseline.
func (c *Classifier) ClassifyExisting(item *catalog.Item, snap source.Snapshot, now time.Time) ChangeResult {
	var changes []FieldChange

	if decimalChanged(item.CurrentPrice, snap.Price) {
		changes = append(changes, FieldChange{FieldPrice, item.CurrentPrice, snap.Price})
		item.CurrentPrice = snap.Price
	}
	if decimalChanged(item.OldPrice, snap.OldPrice) {
		changes = append(changes, FieldChange{FieldOldPrice, item.OldPrice, snap.OldPrice})
		item.OldPrice = snap.OldPrice
	}
	if floatChanged(item.Discount, snap.DiscountPercent) {
		changes = append(changes, FieldChange{FieldDiscount, item.Discount, snap.DiscountPercent})
		item.Discount = snap.DiscountPercent
	}
	if intChanged(item.Stock, snap.Stock) {
		changes = append(changes, FieldChange{FieldStock, item.Stock, snap.Stock})
		item.Stock = snap.Stock
	}
	if floatChanged(item.Rating, snap.Rating) {
		changes = append(changes, FieldChange{FieldRating, item.Rating, snap.Rating})
		item.Rating = snap.Rating
	}

	// Title and url follow the source silently; they are never reported.
	if snap.Title != "" && item.Title != snap.Title {
		item.Title = snap.Title
	}
	if snap.URL != "" && item.URL != snap.URL {
		item.URL = snap.URL
	}
	item.LastCheckedAt = &now

	meaningful := false
	for _, ch := range changes {
		if ch.Field != FieldRating {
			meaningful = true
			break
		}
	}

	res := ChangeResult{Item: item, Changes: changes, HasChanges: meaningful}

	if meaningful {
		// A change is only trustworthy against an already-stable baseline;
		// the counter then restarts from the new values.
		res.IsStable = item.StableParseCount >= c.StabilityThreshold
		item.StableParseCount = 0
		item.BaselineSetAt = &now
		return res
	}

	if item.StableParseCount < c.StabilityThreshold {
		item.StableParseCount++
		res.JustStabilized = item.StableParseCount == c.StabilityThreshold
	}
	res.IsStable = item.StableParseCount >= c.StabilityThreshold
	return res
}

func decimalChanged(old, new decimal.NullDecimal) bool {
	if !old.Valid && !new.Valid {
		return false
	}
	if old.Valid != new.Valid {
		return true
	}
	return !old.Decimal.Equal(new.Decimal)
}

func floatChanged(old, new *float64) bool {
	if old == nil && new == nil {
		return false
	}
	if old == nil || new == nil {
		return true
	}
	return math.Abs(*old-*new) > floatEpsilon
}

func intChanged(old, new *int) bool {
	if old == nil && new == nil {
		return false
	}
	if old == nil || new == nil {
		return true
	}
	return *old != *new
}
