package catalog

import "context"

// Service manages the set of monitored items for a platform.
type Service interface {
	// AddItems registers external ids for monitoring, skipping ones already
	// present. Returns (added, skipped).
	AddItems(ctx context.Context, platform string, externalIDs []string) (int, int, error)
	// RemoveItems deletes items by external id and returns the number removed.
	RemoveItems(ctx context.Context, platform string, externalIDs []string) (int, error)
	// ExternalIDs lists the external ids monitored on a platform.
	ExternalIDs(ctx context.Context, platform string) ([]string, error)
	// Count returns the number of monitored items on a platform.
	Count(ctx context.Context, platform string) (int, error)
	// TrimToTarget removes the most recently added items above target and
	// returns the number removed.
	TrimToTarget(ctx context.Context, platform string, target int) (int, error)
}
