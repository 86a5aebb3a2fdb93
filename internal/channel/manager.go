// Package channel manages the tenant/project/user identity hierarchy:
// name uniqueness, API key minting and revocation, and cascading
// deletes across the metadata store and the vector index.
package channel

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/engrama/internal/logging"
	"github.com/fyrsmithlabs/engrama/internal/metadatastore"
	"github.com/fyrsmithlabs/engrama/internal/vectorstore"
	"go.uber.org/zap"
)

// Manager is the channel manager described by the component design:
// it owns tenant/project/key lifecycle and the best-effort vector
// cleanup that follows a cascading delete.
type Manager struct {
	store  metadatastore.Store
	vector vectorstore.Store
	logger *logging.Logger
}

// NewManager wires a Manager against its two backing stores.
func NewManager(store metadatastore.Store, vector vectorstore.Store, logger *logging.Logger) *Manager {
	return &Manager{store: store, vector: vector, logger: logger}
}

// CreateTenant registers a new tenant.
func (m *Manager) CreateTenant(ctx context.Context, name string) (*metadatastore.Tenant, error) {
	return m.store.CreateTenant(ctx, name)
}

// ListTenants returns every registered tenant.
func (m *Manager) ListTenants(ctx context.Context) ([]*metadatastore.Tenant, error) {
	return m.store.ListTenants(ctx)
}

// ListProjects returns every project registered under a tenant.
func (m *Manager) ListProjects(ctx context.Context, tenantID string) ([]*metadatastore.Project, error) {
	return m.store.ListProjects(ctx, tenantID)
}

// CreateProject registers a project under tenant. Name uniqueness
// within a tenant is enforced by the metadata store's unique index.
func (m *Manager) CreateProject(ctx context.Context, tenantID, name string) (*metadatastore.Project, error) {
	return m.store.CreateProject(ctx, tenantID, name)
}

// GenerateKey mints a fresh API key for the given scope. The returned
// APIKey.Secret is the only time the caller will see the plaintext
// secret; it is never persisted.
func (m *Manager) GenerateKey(ctx context.Context, tenantID, projectID string, userID *string) (*metadatastore.APIKey, error) {
	return m.store.GenerateAPIKey(ctx, tenantID, projectID, userID)
}

// Verify resolves a bearer secret to its owning key, or nil if the
// secret does not match any active key. Constant-time comparison is
// not required here — SHA-256 lookup collision is infeasible — but
// callers comparing against a fixed secret (the admin token) must use
// a constant-time comparison themselves.
func (m *Manager) Verify(ctx context.Context, secret string) (*metadatastore.APIKey, error) {
	return m.store.VerifyAPIKey(ctx, secret)
}

// RevokeKey deactivates a key by its public handle. Idempotent.
func (m *Manager) RevokeKey(ctx context.Context, keyID string) (bool, error) {
	return m.store.RevokeAPIKey(ctx, keyID)
}

// ListKeys lists every key minted under a project.
func (m *Manager) ListKeys(ctx context.Context, projectID string) ([]*metadatastore.APIKey, error) {
	return m.store.ListAPIKeys(ctx, projectID)
}

// DeleteProject verifies project ownership, deactivates its keys, and
// deletes the project row, then best-effort cleans vector data scoped
// to it. A vector cleanup failure is logged, never fatal: inactive
// keys already make the data unreachable.
func (m *Manager) DeleteProject(ctx context.Context, projectID, tenantID string) (bool, error) {
	deleted, err := m.store.DeleteProject(ctx, projectID, tenantID)
	if err != nil {
		return false, fmt.Errorf("channel: delete project: %w", err)
	}
	if !deleted {
		return false, nil
	}

	if err := m.vector.DeleteScope(ctx, tenantID, projectID); err != nil && m.logger != nil {
		m.logger.Warn(ctx, "best-effort vector cleanup failed after project delete",
			zap.Error(err))
	}
	return true, nil
}

// DeleteTenant deactivates every key under the tenant, deletes all its
// projects and the tenant row, then best-effort cleans all vector data
// scoped to the tenant.
func (m *Manager) DeleteTenant(ctx context.Context, tenantID string) (bool, error) {
	deleted, err := m.store.DeleteTenant(ctx, tenantID)
	if err != nil {
		return false, fmt.Errorf("channel: delete tenant: %w", err)
	}
	if !deleted {
		return false, nil
	}

	if err := m.vector.DeleteScope(ctx, tenantID, ""); err != nil && m.logger != nil {
		m.logger.Warn(ctx, "best-effort vector cleanup failed after tenant delete",
			zap.Error(err))
	}
	return true, nil
}
