// Package pipeline orchestrates one monitoring cycle per platform: fetch and
// normalize snapshots in paced batches, filter, classify transactionally,
// select and publish under the send budget, then hand dead ids to the
// lifecycle manager.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"pricewatch/internal/catalog"
	"pricewatch/internal/detect"
	"pricewatch/internal/filter"
	"pricewatch/internal/lifecycle"
	"pricewatch/internal/publish"
	"pricewatch/internal/settings"
	"pricewatch/internal/source"
)

// ErrRunInFlight is returned when a run for the same platform is already
// executing; callers treat it as a skipped trigger, not a failure.
var ErrRunInFlight = errors.New("pipeline run already in flight for platform")

// Stats summarizes one completed cycle for the status endpoint and logs.
type Stats struct {
	RunID      string        `json:"run_id"`
	Platform   string        `json:"platform"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Fetched    int           `json:"fetched"`
	Parsed     int           `json:"parsed"`
	ParseFails int           `json:"parse_fails"`
	Filtered   int           `json:"filtered"`
	New        int           `json:"new"`
	Changed    int           `json:"changed"`
	Stable     int           `json:"stable"`
	Published  int           `json:"published"`
	Skipped    int           `json:"skipped"`
	Dead       int           `json:"dead"`
	Error      string        `json:"error,omitempty"`
}

// SettingsLoader supplies the live configuration read at cycle start.
type SettingsLoader interface {
	Load(ctx context.Context) (settings.Values, error)
}

// Options wires a Runner.
type Options struct {
	Engine    detect.Engine
	Catalog   catalog.Service
	Settings  SettingsLoader
	Delivery  publish.Delivery
	Lifecycle *lifecycle.Manager
	Window    *publish.Window
	Filter    filter.Rules
	// BatchSize bounds each fetch batch; BatchPause is the minimum spacing
	// between batch starts.
	BatchSize  int
	BatchPause time.Duration
	Logger     *slog.Logger
}

// Runner executes monitoring cycles. One Runner serves all platforms;
// concurrent runs for the same platform are rejected, different platforms may
// run concurrently.
type Runner struct {
	opts    Options
	sources map[string]source.Source
	limiter *rate.Limiter
	tracer  trace.Tracer
	log     *slog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
	last     map[string]Stats
}

// NewRunner creates a Runner over the given sources, keyed by platform code.
func NewRunner(opts Options, sources ...source.Source) *Runner {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.BatchPause <= 0 {
		opts.BatchPause = 300 * time.Millisecond
	}

	byPlatform := make(map[string]source.Source, len(sources))
	for _, src := range sources {
		byPlatform[src.Platform()] = src
	}

	return &Runner{
		opts:     opts,
		sources:  byPlatform,
		limiter:  rate.NewLimiter(rate.Every(opts.BatchPause), 1),
		tracer:   otel.Tracer("pricewatch/pipeline"),
		log:      opts.Logger.With("component", "pipeline"),
		inFlight: make(map[string]bool),
		last:     make(map[string]Stats),
	}
}

// Platforms lists the platform codes this runner serves.
func (r *Runner) Platforms() []string {
	out := make([]string, 0, len(r.sources))
	for p := range r.sources {
		out = append(out, p)
	}
	return out
}

// LastStats returns the most recent cycle stats per platform.
func (r *Runner) LastStats() map[string]Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Stats, len(r.last))
	for k, v := range r.last {
		out[k] = v
	}
	return out
}

// RunPlatform executes one full cycle for the platform. It is safe to invoke
// repeatedly; overlapping invocations for the same platform return
// ErrRunInFlight.
func (r *Runner) RunPlatform(ctx context.Context, platform string) error {
	src, ok := r.sources[platform]
	if !ok {
		return fmt.Errorf("unknown platform %q", platform)
	}

	r.mu.Lock()
	if r.inFlight[platform] {
		r.mu.Unlock()
		return ErrRunInFlight
	}
	r.inFlight[platform] = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.inFlight[platform] = false
		r.mu.Unlock()
	}()

	stats := Stats{
		RunID:     uuid.NewString(),
		Platform:  platform,
		StartedAt: time.Now().UTC(),
	}
	log := r.log.With("platform", platform, "run_id", stats.RunID)

	ctx, span := r.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("platform", platform),
			attribute.String("run.id", stats.RunID),
		),
	)
	defer span.End()

	err := r.runCycle(ctx, log, src, &stats)
	stats.Duration = time.Since(stats.StartedAt)
	if err != nil {
		stats.Error = err.Error()
	}

	r.mu.Lock()
	r.last[platform] = stats
	r.mu.Unlock()

	if err != nil {
		log.Error("cycle failed", "error", err, "duration", stats.Duration)
		return err
	}
	log.Info("cycle finished",
		"fetched", stats.Fetched,
		"parsed", stats.Parsed,
		"filtered", stats.Filtered,
		"new", stats.New,
		"changed", stats.Changed,
		"published", stats.Published,
		"skipped", stats.Skipped,
		"dead", stats.Dead,
		"duration", stats.Duration,
	)
	return nil
}

func (r *Runner) runCycle(ctx context.Context, log *slog.Logger, src source.Source, stats *Stats) error {
	platform := src.Platform()

	// Thresholds and budgets may change between cycles; read them fresh.
	vals, err := r.opts.Settings.Load(ctx)
	if err != nil {
		log.Warn("settings load failed, using defaults", "error", err)
	}
	r.opts.Window.SetLimit(vals.PublishRatePerHour)

	ids, err := src.ListCandidateIDs(ctx)
	if err != nil {
		log.Warn("source candidate listing failed, falling back to catalog", "error", err)
	}
	if len(ids) == 0 {
		ids, err = r.opts.Catalog.ExternalIDs(ctx, platform)
		if err != nil {
			return fmt.Errorf("list catalog ids: %w", err)
		}
	}
	stats.Fetched = len(ids)
	if len(ids) == 0 {
		log.Info("nothing to monitor")
		return nil
	}

	snaps, failed := r.fetchBatches(ctx, log, src, ids)
	stats.Parsed = len(snaps)
	stats.ParseFails = failed

	filtered := r.opts.Filter.Apply(snaps)
	stats.Filtered = len(filtered)
	log.Info("fetch complete",
		"requested", len(ids), "parsed", len(snaps), "failed", failed, "filtered", len(filtered))

	changes, err := r.opts.Engine.DetectAndSave(ctx, platform, filtered, vals.StabilityThresholdCycles)
	if err != nil {
		// The whole batch rolled back; the cycle mutated nothing.
		return fmt.Errorf("detect and save: %w", err)
	}
	for _, ch := range changes {
		if ch.IsNew {
			stats.New++
		}
		if ch.HasChanges {
			stats.Changed++
		}
		if ch.IsStable {
			stats.Stable++
		}
	}

	selector := publish.Selector{
		MinPriceDropPercent:       vals.MinPriceDropPercent,
		MinDiscountIncreasePoints: vals.MinDiscountIncreasePoints,
	}
	candidates := selector.Select(changes, filtered)

	dead := r.publishCandidates(ctx, log, candidates, stats)
	stats.Dead = len(dead)

	// Maintenance is independently skippable: the cycle's outcome is already
	// committed, so a failure here is logged and nothing more.
	if r.opts.Lifecycle != nil {
		if err := r.opts.Lifecycle.CleanupAndRefill(ctx, src, dead, vals.TargetCatalogSize, vals.RefillQueries); err != nil {
			log.Warn("lifecycle maintenance failed", "error", err)
		}
	}
	return nil
}

// fetchBatches parses ids in bounded batches with paced batch starts, and
// flattens the per-item results into snapshots plus a failure tally.
func (r *Runner) fetchBatches(ctx context.Context, log *slog.Logger, src source.Source, ids []string) ([]source.Snapshot, int) {
	var snaps []source.Snapshot
	failed := 0

	for start := 0; start < len(ids); start += r.opts.BatchSize {
		if err := r.limiter.Wait(ctx); err != nil {
			log.Warn("fetch pacing interrupted", "error", err)
			break
		}

		end := start + r.opts.BatchSize
		if end > len(ids) {
			end = len(ids)
		}

		for _, res := range src.ParseBatch(ctx, ids[start:end]) {
			if res.Err != nil {
				failed++
				log.Debug("item parse failed", "external_id", res.ExternalID, "error", res.Err)
				continue
			}
			if res.Snapshot != nil {
				snaps = append(snaps, *res.Snapshot)
			}
		}
	}
	return snaps, failed
}

// publishCandidates sends candidates until the window closes and returns the
// external ids reported permanently unavailable.
func (r *Runner) publishCandidates(ctx context.Context, log *slog.Logger, candidates []publish.Candidate, stats *Stats) []string {
	var dead []string

	for _, cand := range candidates {
		sent, err := r.opts.Delivery.Send(ctx, cand)
		if err != nil {
			stats.Skipped++
			var unavailable *publish.UnavailableError
			if errors.As(err, &unavailable) {
				log.Warn("candidate unavailable", "external_id", unavailable.ExternalID, "reason", unavailable.Reason)
				dead = append(dead, unavailable.ExternalID)
			} else {
				log.Warn("delivery failed", "external_id", cand.Item.ExternalID, "error", err)
			}
			continue
		}
		if !sent {
			// Budget exhausted; withheld candidates are dropped by design —
			// their state is committed, so the next cycle sees no change.
			log.Info("publish budget exhausted", "withheld", len(candidates)-stats.Published-stats.Skipped)
			break
		}
		stats.Published++
		log.Info("published", "external_id", cand.Item.ExternalID, "reason", cand.Reason)
	}
	return dead
}
