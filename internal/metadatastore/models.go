package metadatastore

import "time"

// Tenant is the top-level isolation boundary.
type Tenant struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

// Project belongs to exactly one tenant; (tenant_id, name) is unique.
type Project struct {
	ID        string    `db:"id"`
	TenantID  string    `db:"tenant_id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

// APIKey is the persisted record for an opaque bearer credential.
// Secret is only non-empty immediately after GenerateAPIKey; it is never
// read back from storage.
type APIKey struct {
	KeyID     string    `db:"key_id"`
	KeyHash   string    `db:"key_hash"`
	TenantID  string    `db:"tenant_id"`
	ProjectID string    `db:"project_id"`
	UserID    *string   `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
	IsActive  bool      `db:"is_active"`
	Secret    string    `db:"-"`
}

// MemoryType enumerates the kinds of memory fragment content.
type MemoryType string

const (
	MemoryTypeFactual    MemoryType = "factual"
	MemoryTypePreference MemoryType = "preference"
	MemoryTypeEpisodic   MemoryType = "episodic"
	MemoryTypeSession    MemoryType = "session"
)

// Role is the speaker of a session-type fragment.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// MemoryFragment is the long-form authority for a stored memory; the
// vector index holds only a minimal copy for ranking.
type MemoryFragment struct {
	ID         string     `db:"id"`
	TenantID   string     `db:"tenant_id"`
	ProjectID  string     `db:"project_id"`
	UserID     string     `db:"user_id"`
	MemoryType MemoryType `db:"memory_type"`
	Content    string     `db:"content"`
	Role       *string    `db:"role"`
	SessionID  *string    `db:"session_id"`
	Tags       []string   `db:"-"`
	TagsRaw    *string    `db:"tags"`
	Importance float64    `db:"importance"`
	HitCount   int64      `db:"hit_count"`
	Metadata   []byte     `db:"metadata"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
}

// Stats summarizes a scope's fragment population.
type Stats struct {
	Total  int64
	ByType map[MemoryType]int64
}
