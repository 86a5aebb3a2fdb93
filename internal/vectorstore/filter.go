package vectorstore

import "github.com/fyrsmithlabs/engrama/internal/qdrant"

// buildScopeFilter constructs the tenant/project match clauses every
// query must carry, plus user, memory_type and session_id clauses when
// those values are non-empty. Scope is never optional: a filter without
// it would let one tenant's query see another's vectors.
func buildScopeFilter(scope Scope, memoryType, sessionID string) *qdrant.Filter {
	must := []qdrant.Condition{
		{Field: "tenant_id", Match: scope.TenantID},
		{Field: "project_id", Match: scope.ProjectID},
	}
	if scope.UserID != "" {
		must = append(must, qdrant.Condition{Field: "user_id", Match: scope.UserID})
	}
	if memoryType != "" {
		must = append(must, qdrant.Condition{Field: "memory_type", Match: memoryType})
	}
	if sessionID != "" {
		must = append(must, qdrant.Condition{Field: "session_id", Match: sessionID})
	}
	return &qdrant.Filter{Must: must}
}

// scopeDeletionFilter matches every point belonging to a tenant, or a
// specific project under it when projectID is set.
func scopeDeletionFilter(tenantID, projectID string) *qdrant.Filter {
	must := []qdrant.Condition{
		{Field: "tenant_id", Match: tenantID},
	}
	if projectID != "" {
		must = append(must, qdrant.Condition{Field: "project_id", Match: projectID})
	}
	return &qdrant.Filter{Must: must}
}
