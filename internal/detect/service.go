package detect

import (
	"context"

	"pricewatch/internal/source"
)

// Engine classifies a batch of snapshots for one platform against stored
// state and persists the outcome atomically.
type Engine interface {
	// DetectAndSave loads the affected items, classifies every distinct
	// external id in the batch and commits all item and history writes in a
	// single transaction. On any storage failure the whole batch rolls back
	// and an error is returned with no partial state.
	DetectAndSave(ctx context.Context, platform string, snaps []source.Snapshot, stabilityThreshold int) ([]ChangeResult, error)
}
