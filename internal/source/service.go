package source

import "context"

// Source is one platform collaborator: it knows how to fetch and normalize
// item snapshots for a set of external ids. Session state (HTTP client,
// headers) lives on the instance, never in package globals.
type Source interface {
	// Platform returns the platform code, e.g. "wb".
	Platform() string
	// ListCandidateIDs returns ids the source itself proposes for this cycle.
	// Sources without their own feed return an empty list; the orchestrator
	// then falls back to the stored catalog.
	ListCandidateIDs(ctx context.Context) ([]string, error)
	// ParseBatch fetches and normalizes the given ids. The returned slice has
	// one entry per requested id, in request order.
	ParseBatch(ctx context.Context, ids []string) []ParseResult
}

// Discoverer is an optional capability: sources that can search for new
// candidate items implement it, and the lifecycle manager uses it to backfill
// the catalog toward its target size.
type Discoverer interface {
	// DiscoverCandidates returns up to target candidate external ids found
	// via the given query hints.
	DiscoverCandidates(ctx context.Context, hints []string, target int) ([]string, error)
}
