package publish

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowAllowsUpToLimit(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	w := NewWindow(2, time.Hour)
	w.now = func() time.Time { return now }

	assert.True(t, w.Allow())
	w.MarkSent()
	assert.True(t, w.Allow())
	w.MarkSent()
	assert.False(t, w.Allow())
}

func TestWindowSlidesForward(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	w := NewWindow(2, time.Hour)
	w.now = func() time.Time { return now }

	w.MarkSent()
	now = now.Add(30 * time.Minute)
	w.MarkSent()
	assert.False(t, w.Allow())

	// The first send expires an hour after it happened; the second is still
	// inside the window.
	now = now.Add(31 * time.Minute)
	assert.True(t, w.Allow())
	w.MarkSent()
	assert.False(t, w.Allow())
}

func TestWindowUnlimitedWhenLimitNotPositive(t *testing.T) {
	w := NewWindow(0, time.Hour)
	for i := 0; i < 100; i++ {
		assert.True(t, w.Allow())
		w.MarkSent()
	}

	w = NewWindow(-1, time.Hour)
	assert.True(t, w.Allow())
}

func TestWindowSetLimitKeepsHistory(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	w := NewWindow(5, time.Hour)
	w.now = func() time.Time { return now }

	w.MarkSent()
	w.MarkSent()
	assert.True(t, w.Allow())

	// Lowering the cap below what was already sent closes the window without
	// forgetting the sends.
	w.SetLimit(2)
	assert.False(t, w.Allow())

	w.SetLimit(3)
	assert.True(t, w.Allow())
}
