// Package vectorstore adapts the generic Qdrant client into the
// scope-aware semantic index the memory engine depends on: one shared
// collection, filtered by tenant/project/user on every read and write.
package vectorstore

import "context"

// Scope identifies the tenant/project/user triple every operation is bound to.
type Scope struct {
	TenantID  string
	ProjectID string
	UserID    string
}

// Fragment is the minimal payload persisted alongside a vector.
//
// This mirrors the subset of a memory fragment that the vector index
// needs to filter and re-render a search hit; the metadata store
// remains the long-form authority.
type Fragment struct {
	ID         string
	Scope      Scope
	MemoryType string
	SessionID  string
	Content    string
	CreatedAt  string
}

// SearchHit is a fragment id with its similarity score, as returned by
// the vector index before metadata hydration.
type SearchHit struct {
	ID    string
	Score float32
}

// Store is the scope-aware semantic index the memory engine depends on.
//
// Every method enforces the scope filter server-side; callers never see
// points from outside the given scope.
type Store interface {
	// EnsureCollection creates the shared collection if it does not
	// already exist, with the configured vector dimension.
	EnsureCollection(ctx context.Context) error

	// Upsert writes or overwrites a single point.
	Upsert(ctx context.Context, f *Fragment, vector []float32) error

	// Search ranks points by cosine similarity against vector, filtered
	// to scope and the optional memoryType/sessionID, returning at most
	// limit hits ordered by descending score.
	Search(ctx context.Context, scope Scope, vector []float32, limit int, memoryType, sessionID string) ([]SearchHit, error)

	// List scrolls all point ids in scope (optionally filtered by
	// memoryType), with no ordering guarantee of its own — the caller
	// re-orders after metadata hydration.
	List(ctx context.Context, scope Scope, memoryType string, limit int) ([]string, error)

	// Delete removes a single point by id. Deleting a point that does
	// not exist is not an error.
	Delete(ctx context.Context, id string) error

	// DeleteScope removes every point whose payload matches the given
	// tenant/project. Used for best-effort cleanup on tenant/project
	// deletion; failures are the caller's to log, not fatal.
	DeleteScope(ctx context.Context, tenantID, projectID string) error

	// Health reports whether the underlying store is reachable.
	Health(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
