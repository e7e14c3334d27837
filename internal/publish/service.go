package publish

import (
	"context"
	"fmt"

	"pricewatch/internal/catalog"
	"pricewatch/internal/source"
)

// Candidate is an item selected for publication together with the rendered
// human-readable reason. Transient, consumed within one cycle.
type Candidate struct {
	Item     *catalog.Item
	Snapshot source.Snapshot
	Reason   string
}

// Delivery turns a candidate into an outbound notification.
//
// Send returns (false, nil) when the rolling send budget is exhausted; the
// orchestrator then stops publishing for the cycle. An *UnavailableError
// reports that the item can no longer be observed and should be routed to the
// lifecycle manager; any other error is a transient delivery failure and the
// candidate is simply skipped.
type Delivery interface {
	Send(ctx context.Context, cand Candidate) (bool, error)
}

// UnavailableError signals a permanently-gone item discovered during
// publication. It carries the offending external id for cleanup.
type UnavailableError struct {
	ExternalID string
	Reason     string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("item %s unavailable: %s", e.ExternalID, e.Reason)
}
