package httpapi

import (
	"encoding/json"
	"time"

	"github.com/fyrsmithlabs/engrama/internal/metadatastore"
)

// AddMemoryRequest is the body of POST /v1/memories.
type AddMemoryRequest struct {
	UserID     string          `json:"user_id,omitempty"`
	Content    string          `json:"content"`
	MemoryType string          `json:"memory_type"`
	Role       *string         `json:"role,omitempty"`
	SessionID  *string         `json:"session_id,omitempty"`
	Tags       []string        `json:"tags,omitempty"`
	Importance *float64        `json:"importance,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// SearchMemoryRequest is the body of POST /v1/memories/search.
type SearchMemoryRequest struct {
	UserID     string `json:"user_id,omitempty"`
	Query      string `json:"query"`
	Limit      int    `json:"limit,omitempty"`
	MemoryType string `json:"memory_type,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
}

// UpdateMemoryRequest is the body of PUT /v1/memories/{id}. Only the
// fields present in the JSON object are applied; a field's zero value
// is ambiguous with "absent" for Importance/Tags, so pointers are used
// for anything where that distinction matters.
type UpdateMemoryRequest struct {
	UserID     string          `json:"user_id,omitempty"`
	Content    *string         `json:"content,omitempty"`
	Tags       *[]string       `json:"tags,omitempty"`
	Importance *float64        `json:"importance,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// FragmentResponse renders a memory fragment, with an optional
// similarity score for search results.
type FragmentResponse struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Content    string          `json:"content"`
	MemoryType string          `json:"memory_type"`
	Role       *string         `json:"role,omitempty"`
	SessionID  *string         `json:"session_id,omitempty"`
	Tags       []string        `json:"tags,omitempty"`
	HitCount   int64           `json:"hit_count"`
	Importance float64         `json:"importance"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	Score      *float32        `json:"score,omitempty"`
}

func fragmentToResponse(f *metadatastore.MemoryFragment, score *float32) FragmentResponse {
	return FragmentResponse{
		ID:         f.ID,
		UserID:     f.UserID,
		Content:    f.Content,
		MemoryType: string(f.MemoryType),
		Role:       f.Role,
		SessionID:  f.SessionID,
		Tags:       f.Tags,
		HitCount:   f.HitCount,
		Importance: f.Importance,
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.UpdatedAt,
		Metadata:   json.RawMessage(f.Metadata),
		Score:      score,
	}
}

// SearchResultResponse is the body of POST /v1/memories/search's response.
type SearchResultResponse struct {
	Results []FragmentResponse `json:"results"`
	Total   int                `json:"total"`
}

// HistoryResponse is the body of GET /v1/sessions/{sid}/history's response.
type HistoryResponse struct {
	SessionID string             `json:"session_id"`
	Messages  []FragmentResponse `json:"messages"`
	Total     int                `json:"total"`
}

// StatsResponse is the body of the stats endpoints' response.
type StatsResponse struct {
	UserID        string           `json:"user_id"`
	TotalMemories int64            `json:"total_memories"`
	ByType        map[string]int64 `json:"by_type"`
}

func statsToResponse(userID string, stats *metadatastore.Stats) StatsResponse {
	byType := make(map[string]int64, len(stats.ByType))
	for k, v := range stats.ByType {
		byType[string(k)] = v
	}
	return StatsResponse{UserID: userID, TotalMemories: stats.Total, ByType: byType}
}

// --- Channel management DTOs -------------------------------------------

type RegisterTenantRequest struct {
	Name string `json:"name"`
}

type TenantResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func tenantToResponse(t *metadatastore.Tenant) TenantResponse {
	return TenantResponse{ID: t.ID, Name: t.Name, CreatedAt: t.CreatedAt}
}

type CreateProjectRequest struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
}

type ProjectResponse struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func projectToResponse(p *metadatastore.Project) ProjectResponse {
	return ProjectResponse{ID: p.ID, TenantID: p.TenantID, Name: p.Name, CreatedAt: p.CreatedAt}
}

type GenerateAPIKeyRequest struct {
	TenantID  string  `json:"tenant_id"`
	ProjectID string  `json:"project_id"`
	UserID    *string `json:"user_id,omitempty"`
}

// APIKeyResponse is returned only at creation time — the only moment
// the raw secret is ever visible.
type APIKeyResponse struct {
	Key       string    `json:"key"`
	KeyID     string    `json:"key_id"`
	TenantID  string    `json:"tenant_id"`
	ProjectID string    `json:"project_id"`
	UserID    *string   `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func apiKeyToResponse(k *metadatastore.APIKey) APIKeyResponse {
	return APIKeyResponse{
		Key:       k.Secret,
		KeyID:     k.KeyID,
		TenantID:  k.TenantID,
		ProjectID: k.ProjectID,
		UserID:    k.UserID,
		CreatedAt: k.CreatedAt,
	}
}

// APIKeyListItem is what GET .../api-keys returns: scope and lifecycle
// metadata, never the secret or its hash.
type APIKeyListItem struct {
	KeyID     string    `json:"key_id"`
	TenantID  string    `json:"tenant_id"`
	ProjectID string    `json:"project_id"`
	UserID    *string   `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	IsActive  bool      `json:"is_active"`
}

func apiKeyToListItem(k *metadatastore.APIKey) APIKeyListItem {
	return APIKeyListItem{
		KeyID:     k.KeyID,
		TenantID:  k.TenantID,
		ProjectID: k.ProjectID,
		UserID:    k.UserID,
		CreatedAt: k.CreatedAt,
		IsActive:  k.IsActive,
	}
}
