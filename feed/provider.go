package feed

import "context"

// Provider defines the required capabilities for a collection metadata backend.
// Implementations are external to this module (archive APIs, search oracles);
// the engine only depends on paged descriptor retrieval.
type Provider interface {
	// Page retrieves descriptors for the half-open index window
	// [offset, offset+limit) of the collection. An empty (non-error) result
	// means the collection is exhausted in that direction.
	Page(ctx context.Context, collectionID string, offset, limit int) ([]*Descriptor, error)
}

// PageFunc adapts an ordinary paging function to the Provider interface.
type PageFunc func(ctx context.Context, collectionID string, offset, limit int) ([]*Descriptor, error)

// Page implements Provider.
func (f PageFunc) Page(ctx context.Context, collectionID string, offset, limit int) ([]*Descriptor, error) {
	return f(ctx, collectionID, offset, limit)
}
