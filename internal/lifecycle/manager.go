// Package lifecycle keeps the monitored catalog healthy: items confirmed
// unavailable during publication are removed, and the catalog is backfilled
// toward its target size when the source can discover new candidates. It runs
// after the cycle's transaction has committed and its failures never abort
// the cycle.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"pricewatch/internal/catalog"
	"pricewatch/internal/source"
)

// Manager performs dead-item cleanup and discovery backfill.
type Manager struct {
	catalog catalog.Service
	log     *slog.Logger
}

func NewManager(cat catalog.Service, log *slog.Logger) *Manager {
	return &Manager{
		catalog: cat,
		log:     log.With("component", "lifecycle"),
	}
}

// CleanupAndRefill removes the dead external ids, then, if the catalog fell
// below target and the source supports discovery, adds new candidates for the
// shortfall only and trims any surplus above target.
func (m *Manager) CleanupAndRefill(ctx context.Context, src source.Source, dead []string, target int, hints []string) error {
	platform := src.Platform()

	if len(dead) > 0 {
		removed, err := m.catalog.RemoveItems(ctx, platform, dead)
		if err != nil {
			return fmt.Errorf("remove dead items: %w", err)
		}
		m.log.Info("removed dead items", "platform", platform, "removed", removed)
	}

	if target <= 0 {
		return nil
	}

	count, err := m.catalog.Count(ctx, platform)
	if err != nil {
		return fmt.Errorf("count items: %w", err)
	}
	if count >= target {
		return nil
	}
	need := target - count

	discoverer, ok := src.(source.Discoverer)
	if !ok {
		m.log.Debug("source has no discovery, skipping refill",
			"platform", platform, "shortfall", need)
		return nil
	}

	// Over-ask so duplicates against the stored catalog still leave enough
	// fresh candidates, without crawling far past the shortfall.
	collectTarget := need*10 + 30
	if collectTarget < need+30 {
		collectTarget = need + 30
	}
	if collectTarget > 300 {
		collectTarget = 300
	}

	candidates, err := discoverer.DiscoverCandidates(ctx, hints, collectTarget)
	if err != nil {
		return fmt.Errorf("discover candidates: %w", err)
	}

	existing, err := m.catalog.ExternalIDs(ctx, platform)
	if err != nil {
		return fmt.Errorf("list existing ids: %w", err)
	}
	known := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		known[id] = struct{}{}
	}

	fresh := make([]string, 0, need)
	for _, id := range candidates {
		if _, ok := known[id]; ok {
			continue
		}
		known[id] = struct{}{}
		fresh = append(fresh, id)
		if len(fresh) >= need {
			break
		}
	}

	if len(fresh) > 0 {
		added, skipped, err := m.catalog.AddItems(ctx, platform, fresh)
		if err != nil {
			return fmt.Errorf("add refill items: %w", err)
		}
		m.log.Info("refilled catalog",
			"platform", platform, "added", added, "skipped", skipped, "shortfall", need)
	}

	trimmed, err := m.catalog.TrimToTarget(ctx, platform, target)
	if err != nil {
		return fmt.Errorf("trim to target: %w", err)
	}
	if trimmed > 0 {
		m.log.Info("trimmed surplus items", "platform", platform, "trimmed", trimmed)
	}
	return nil
}
