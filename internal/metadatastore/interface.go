// Package metadatastore is the authoritative relational store for
// tenants, projects, API keys, and memory fragments. The vector index
// (internal/vectorstore) is a derived, best-effort secondary copy;
// this package is the source of truth the memory engine reconciles
// against under the dual-store compensation protocol.
package metadatastore

import "context"

// Store defines the relational operations the rest of the system
// depends on. The choice of backing engine (Postgres today) is pure
// configuration behind this interface.
type Store interface {
	// Tenants
	CreateTenant(ctx context.Context, name string) (*Tenant, error)
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	ListTenants(ctx context.Context) ([]*Tenant, error)
	DeleteTenant(ctx context.Context, id string) (bool, error)

	// Projects
	CreateProject(ctx context.Context, tenantID, name string) (*Project, error)
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context, tenantID string) ([]*Project, error)
	DeleteProject(ctx context.Context, id, tenantID string) (bool, error)

	// API keys
	GenerateAPIKey(ctx context.Context, tenantID, projectID string, userID *string) (*APIKey, error)
	VerifyAPIKey(ctx context.Context, secret string) (*APIKey, error)
	RevokeAPIKey(ctx context.Context, keyID string) (bool, error)
	ListAPIKeys(ctx context.Context, projectID string) ([]*APIKey, error)

	// Memory fragments
	AddFragment(ctx context.Context, f *MemoryFragment) error
	GetFragment(ctx context.Context, id string) (*MemoryFragment, error)
	GetFragments(ctx context.Context, ids []string) ([]*MemoryFragment, error)
	UpdateFragment(ctx context.Context, id string, fields map[string]interface{}) (bool, error)
	DeleteFragment(ctx context.Context, id string) (bool, error)
	BatchIncrementHitCount(ctx context.Context, ids []string) error
	Stats(ctx context.Context, tenantID, projectID, userID string) (*Stats, error)

	Close() error
}
