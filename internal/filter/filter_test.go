package filter

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"pricewatch/internal/source"
)

func dec(v int64) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.NewFromInt(v), Valid: true}
}

func fptr(f float64) *float64 { return &f }

func iptr(n int) *int { return &n }

func TestPasses(t *testing.T) {
	tests := []struct {
		name  string
		rules Rules
		snap  source.Snapshot
		want  bool
	}{
		{
			name: "zero rules admit everything",
			snap: source.Snapshot{ExternalID: "1"},
			want: true,
		},
		{
			name:  "price below minimum",
			rules: Rules{MinPrice: 100},
			snap:  source.Snapshot{Price: dec(99)},
			want:  false,
		},
		{
			name:  "price at minimum",
			rules: Rules{MinPrice: 100},
			snap:  source.Snapshot{Price: dec(100)},
			want:  true,
		},
		{
			name:  "price above maximum",
			rules: Rules{MaxPrice: 5000},
			snap:  source.Snapshot{Price: dec(5001)},
			want:  false,
		},
		{
			name:  "null price fails enabled price rule",
			rules: Rules{MinPrice: 100},
			snap:  source.Snapshot{},
			want:  false,
		},
		{
			name: "null price passes when price rules disabled",
			snap: source.Snapshot{},
			want: true,
		},
		{
			name:  "stock below minimum",
			rules: Rules{MinStock: 5},
			snap:  source.Snapshot{Stock: iptr(4)},
			want:  false,
		},
		{
			name:  "missing stock fails enabled stock rule",
			rules: Rules{MinStock: 1},
			snap:  source.Snapshot{},
			want:  false,
		},
		{
			name:  "discount below minimum",
			rules: Rules{MinDiscountPercent: 10},
			snap:  source.Snapshot{DiscountPercent: fptr(9.5)},
			want:  false,
		},
		{
			name:  "all rules satisfied",
			rules: Rules{MinPrice: 100, MaxPrice: 5000, MinStock: 1, MinDiscountPercent: 10},
			snap: source.Snapshot{
				Price:           dec(1500),
				Stock:           iptr(3),
				DiscountPercent: fptr(25),
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rules.Passes(tt.snap))
		})
	}
}

func TestApplyPreservesOrder(t *testing.T) {
	rules := Rules{MinPrice: 100}
	snaps := []source.Snapshot{
		{ExternalID: "a", Price: dec(200)},
		{ExternalID: "b", Price: dec(50)},
		{ExternalID: "c", Price: dec(300)},
	}

	out := rules.Apply(snaps)
	assert.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ExternalID)
	assert.Equal(t, "c", out[1].ExternalID)
}
