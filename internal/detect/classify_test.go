package detect

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"pricewatch/internal/source"
)

func dec(s string) decimal.NullDecimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func fptr(f float64) *float64 { return &f }

func iptr(n int) *int { return &n }

func baseSnapshot() source.Snapshot {
	return source.Snapshot{
		ExternalID:      "100",
		Title:           "Test item",
		Price:           dec("950"),
		OldPrice:        dec("1000"),
		DiscountPercent: fptr(5),
		Stock:           iptr(12),
		Rating:          fptr(4.5),
		URL:             "https://example.com/100",
	}
}

func TestNewItem(t *testing.T) {
	c := &Classifier{StabilityThreshold: 3}
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	item, res := c.NewItem("wb", baseSnapshot(), now)

	assert.True(t, res.IsNew)
	assert.False(t, res.HasChanges)
	assert.False(t, res.IsStable)
	assert.Empty(t, res.Changes)
	assert.Same(t, item, res.Item)

	assert.Equal(t, "wb", item.Platform)
	assert.Equal(t, "100", item.ExternalID)
	assert.Equal(t, "Test item", item.Title)
	assert.True(t, item.CurrentPrice.Decimal.Equal(decimal.NewFromInt(950)))
	assert.True(t, item.OldPrice.Decimal.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, 0, item.StableParseCount)
	require.NotNil(t, item.BaselineSetAt)
	assert.Equal(t, now, *item.BaselineSetAt)
}

func TestNewItemFallsBackToIDTitle(t *testing.T) {
	c := &Classifier{StabilityThreshold: 3}
	snap := baseSnapshot()
	snap.Title = ""

	item, _ := c.NewItem("wb", snap, time.Now())
	assert.Equal(t, "100", item.Title)
}

func TestUnchangedSnapshotsAdvanceCounter(t *testing.T) {
	c := &Classifier{StabilityThreshold: 3}
	now := time.Now().UTC()
	item, _ := c.NewItem("wb", baseSnapshot(), now)

	type step struct {
		counter        int
		isStable       bool
		justStabilized bool
	}
	want := []step{
		{1, false, false},
		{2, false, false},
		{3, true, true},
		{3, true, false},
		{3, true, false},
	}

	for i, w := range want {
		res := c.ClassifyExisting(item, baseSnapshot(), now.Add(time.Duration(i)*time.Minute))
		assert.False(t, res.HasChanges, "cycle %d", i)
		assert.Empty(t, res.Changes, "cycle %d", i)
		assert.Equal(t, w.counter, item.StableParseCount, "cycle %d", i)
		assert.Equal(t, w.isStable, res.IsStable, "cycle %d", i)
		assert.Equal(t, w.justStabilized, res.JustStabilized, "cycle %d", i)
	}
}

func TestMeaningfulChangeResetsCounter(t *testing.T) {
	c := &Classifier{StabilityThreshold: 3}
	now := time.Now().UTC()
	item, _ := c.NewItem("wb", baseSnapshot(), now)
	item.StableParseCount = 3

	changed := baseSnapshot()
	changed.Price = dec("900")

	later := now.Add(time.Hour)
	res := c.ClassifyExisting(item, changed, later)

	assert.True(t, res.HasChanges)
	assert.True(t, res.IsStable, "stability reflects the counter before the reset")
	assert.False(t, res.JustStabilized)
	assert.Equal(t, 0, item.StableParseCount)
	require.NotNil(t, item.BaselineSetAt)
	assert.Equal(t, later, *item.BaselineSetAt)
	assert.True(t, item.CurrentPrice.Decimal.Equal(decimal.NewFromInt(900)))

	require.Len(t, res.Changes, 1)
	assert.Equal(t, FieldPrice, res.Changes[0].Field)
}

func TestChangeAgainstUnstableBaseline(t *testing.T) {
	c := &Classifier{StabilityThreshold: 3}
	now := time.Now().UTC()
	item, _ := c.NewItem("wb", baseSnapshot(), now)
	item.StableParseCount = 1

	changed := baseSnapshot()
	changed.Stock = iptr(2)

	res := c.ClassifyExisting(item, changed, now)
	assert.True(t, res.HasChanges)
	assert.False(t, res.IsStable)
	assert.Equal(t, 0, item.StableParseCount)
}

func TestRatingOnlyChangeIsNotMeaningful(t *testing.T) {
	c := &Classifier{StabilityThreshold: 3}
	now := time.Now().UTC()
	item, _ := c.NewItem("wb", baseSnapshot(), now)

	changed := baseSnapshot()
	changed.Rating = fptr(4.8)

	res := c.ClassifyExisting(item, changed, now)

	require.Len(t, res.Changes, 1)
	assert.Equal(t, FieldRating, res.Changes[0].Field)
	assert.False(t, res.HasChanges)
	assert.Equal(t, 1, item.StableParseCount, "counter still advances")
	require.NotNil(t, item.Rating)
	assert.Equal(t, 4.8, *item.Rating, "rating is applied anyway")
}

func TestFloatNoiseWithinEpsilonIgnored(t *testing.T) {
	c := &Classifier{StabilityThreshold: 3}
	now := time.Now().UTC()
	item, _ := c.NewItem("wb", baseSnapshot(), now)

	noisy := baseSnapshot()
	noisy.DiscountPercent = fptr(5 + 1e-9)
	noisy.Rating = fptr(4.5 - 1e-9)

	res := c.ClassifyExisting(item, noisy, now)
	assert.Empty(t, res.Changes)
	assert.False(t, res.HasChanges)
}

func TestNullTransitionsAreChanges(t *testing.T) {
	c := &Classifier{StabilityThreshold: 3}
	now := time.Now().UTC()

	snap := baseSnapshot()
	snap.OldPrice = decimal.NullDecimal{}
	snap.DiscountPercent = nil
	item, _ := c.NewItem("wb", snap, now)

	// Null to value and value to null both count.
	withOld := baseSnapshot()
	res := c.ClassifyExisting(item, withOld, now)
	fields := make([]string, 0, len(res.Changes))
	for _, ch := range res.Changes {
		fields = append(fields, ch.Field)
	}
	assert.Contains(t, fields, FieldOldPrice)
	assert.Contains(t, fields, FieldDiscount)
	assert.True(t, res.HasChanges)

	res = c.ClassifyExisting(item, snap, now)
	assert.True(t, res.HasChanges)

	// Null on both sides is not a change.
	res = c.ClassifyExisting(item, snap, now)
	assert.Empty(t, res.Changes)
}

func TestTitleAndURLFollowSourceSilently(t *testing.T) {
	c := &Classifier{StabilityThreshold: 3}
	now := time.Now().UTC()
	item, _ := c.NewItem("wb", baseSnapshot(), now)

	renamed := baseSnapshot()
	renamed.Title = "Renamed item"
	renamed.URL = "https://example.com/moved"

	res := c.ClassifyExisting(item, renamed, now)
	assert.Empty(t, res.Changes)
	assert.False(t, res.HasChanges)
	assert.Equal(t, "Renamed item", item.Title)
	assert.Equal(t, "https://example.com/moved", item.URL)

	// An empty title never clobbers the stored one.
	blank := baseSnapshot()
	blank.Title = ""
	c.ClassifyExisting(item, blank, now)
	assert.Equal(t, "Renamed item", item.Title)
}

func TestDedupeLastSnapshotWins(t *testing.T) {
	a1 := baseSnapshot()
	b := baseSnapshot()
	b.ExternalID = "200"
	a2 := baseSnapshot()
	a2.Price = dec("500")
	blank := source.Snapshot{}

	out := dedupe([]source.Snapshot{a1, b, a2, blank})

	require.Len(t, out, 2)
	assert.Equal(t, "100", out[0].ExternalID, "first occurrence keeps its position")
	assert.True(t, out[0].Price.Decimal.Equal(decimal.NewFromInt(500)), "last snapshot wins")
	assert.Equal(t, "200", out[1].ExternalID)
}

func TestClassifyProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		threshold := rapid.IntRange(1, 10).Draw(t, "threshold")
		cycles := rapid.IntRange(1, 30).Draw(t, "cycles")
		c := &Classifier{StabilityThreshold: threshold}

		snap := baseSnapshot()
		snap.Price = dec(rapid.SampledFrom([]string{"100", "250.50", "999.99"}).Draw(t, "price"))
		snap.Stock = iptr(rapid.IntRange(0, 100).Draw(t, "stock"))

		now := time.Now().UTC()
		item, _ := c.NewItem("wb", snap, now)

		stabilizedAt := -1
		for i := 0; i < cycles; i++ {
			res := c.ClassifyExisting(item, snap, now)

			// Re-observing the identical snapshot never reports a change.
			if res.HasChanges || len(res.Changes) != 0 {
				t.Fatalf("cycle %d: identical snapshot reported changes", i)
			}
			// The counter saturates at the threshold.
			if item.StableParseCount > threshold {
				t.Fatalf("cycle %d: counter %d exceeds threshold %d", i, item.StableParseCount, threshold)
			}
			if res.JustStabilized {
				if stabilizedAt != -1 {
					t.Fatalf("stabilized twice, cycles %d and %d", stabilizedAt, i)
				}
				stabilizedAt = i
			}
			if res.IsStable != (item.StableParseCount >= threshold) {
				t.Fatalf("cycle %d: stability flag disagrees with counter", i)
			}
		}

		if cycles >= threshold && stabilizedAt != threshold-1 {
			t.Fatalf("expected stabilization on cycle %d, got %d", threshold-1, stabilizedAt)
		}
	})
}

func TestChangeThenIdenticalSnapshotIsQuiet(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := &Classifier{StabilityThreshold: rapid.IntRange(1, 5).Draw(t, "threshold")}
		now := time.Now().UTC()
		item, _ := c.NewItem("wb", baseSnapshot(), now)
		item.StableParseCount = rapid.IntRange(0, 5).Draw(t, "counter")

		changed := baseSnapshot()
		changed.Price = dec(rapid.SampledFrom([]string{"1", "499.99", "12345"}).Draw(t, "price"))
		changed.Stock = iptr(rapid.IntRange(0, 50).Draw(t, "stock"))

		first := c.ClassifyExisting(item, changed, now)
		if !first.HasChanges {
			t.Skip("drew the unchanged values")
		}

		second := c.ClassifyExisting(item, changed, now)
		if second.HasChanges || len(second.Changes) != 0 {
			t.Fatalf("second application of the same snapshot reported changes: %+v", second.Changes)
		}
		if item.StableParseCount != 1 {
			t.Fatalf("counter after change+repeat = %d, want 1", item.StableParseCount)
		}
	})
}
