package detect

import (
	"pricewatch/internal/catalog"
)

// Tracked field names as they appear in FieldChange and logs.
const (
	FieldPrice    = "price"
	FieldOldPrice = "old_price"
	FieldDiscount = "discount"
	FieldStock    = "stock"
	FieldRating   = "rating"
)

// FieldChange records one observed field transition within a cycle. Values
// are decimal.NullDecimal for prices, *float64 for discount/rating and *int
// for stock. Not persisted.
type FieldChange struct {
	Field string
	Old   any
	New   any
}

// ChangeResult is the per-item outcome of one classification cycle.
type ChangeResult struct {
	Item    *catalog.Item
	Changes []FieldChange

	// IsNew marks first-ever observations; they are stored but never
	// eligible for publication.
	IsNew bool
	// IsStable reports whether the item's baseline was trusted when this
	// cycle's snapshot arrived. For changed items it reflects the counter
	// before the change reset it.
	IsStable bool
	// JustStabilized is true only on the cycle where the stability counter
	// first reaches the threshold; that cycle is excluded from publication.
	JustStabilized bool
	// HasChanges is true when a meaningful field (price, old price,
	// discount, stock) changed. Rating-only changes do not count.
	HasChanges bool
}
