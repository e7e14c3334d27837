package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pricewatch/internal/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunFiresJobsOnInterval(t *testing.T) {
	var ticks atomic.Int32
	s := New(testLogger())
	s.Add("tick", 20*time.Millisecond, func(context.Context) error {
		ticks.Add(1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
	assert.GreaterOrEqual(t, ticks.Load(), int32(2))
}

func TestRunToleratesInFlightSkips(t *testing.T) {
	var ticks atomic.Int32
	s := New(testLogger())
	s.Add("busy", 10*time.Millisecond, func(context.Context) error {
		ticks.Add(1)
		return pipeline.ErrRunInFlight
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	assert.Greater(t, ticks.Load(), int32(0), "a skipped run is not an error")
}

func TestRunWithNoJobsReturnsImmediately(t *testing.T) {
	s := New(testLogger())

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run with no jobs should return at once")
	}
}
