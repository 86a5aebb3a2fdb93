package metadatastore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/engrama/internal/apperr"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// updatableFragmentFields whitelists the columns UpdateFragment may
// touch. Any other key is an invalid-argument error, never a raw
// column name from the caller.
var updatableFragmentFields = map[string]bool{
	"content":    true,
	"tags":       true,
	"importance": true,
	"metadata":   true,
}

// ErrInvalidField is returned by UpdateFragment when a caller names a
// field outside updatableFragmentFields.
var ErrInvalidField = errors.New("metadatastore: field not updatable")

// PostgresStore is the Store implementation backed by PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// Open connects to uri and returns a ready PostgresStore. Callers run
// Migrate separately during startup.
func Open(uri string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", uri)
	if err != nil {
		return nil, fmt.Errorf("metadatastore: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("metadatastore: ping: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewWithDB wraps an already-open handle, mainly for tests driving a
// sqlmock connection.
func NewWithDB(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func hashKey(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func extractKeyID(secret string) string {
	if len(secret) <= 12 {
		return secret
	}
	return secret[:12]
}

func newAPIKeySecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("metadatastore: generate key: %w", err)
	}
	return "eng_" + base64.RawURLEncoding.EncodeToString(buf), nil
}

// --- Tenants -----------------------------------------------------------

func (s *PostgresStore) CreateTenant(ctx context.Context, name string) (*Tenant, error) {
	t := &Tenant{ID: uuid.NewString(), Name: name, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, created_at) VALUES ($1, $2, $3)`,
		t.ID, t.Name, t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.New(apperr.KindValidation, fmt.Sprintf("tenant name %q already exists", name))
		}
		return nil, fmt.Errorf("metadatastore: create tenant: %w", err)
	}
	return t, nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505), e.g. from a UNIQUE constraint on an INSERT.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (s *PostgresStore) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	var t Tenant
	err := s.db.GetContext(ctx, &t,
		`SELECT id, name, created_at FROM tenants WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("metadatastore: get tenant: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) ListTenants(ctx context.Context) ([]*Tenant, error) {
	var ts []*Tenant
	err := s.db.SelectContext(ctx, &ts,
		`SELECT id, name, created_at FROM tenants ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("metadatastore: list tenants: %w", err)
	}
	return ts, nil
}

func (s *PostgresStore) DeleteTenant(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("metadatastore: delete tenant: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE api_keys SET is_active = FALSE WHERE tenant_id = $1`, id); err != nil {
		return false, fmt.Errorf("metadatastore: deactivate tenant keys: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE tenant_id = $1`, id); err != nil {
		return false, fmt.Errorf("metadatastore: delete tenant projects: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("metadatastore: delete tenant: %w", err)
	}
	rows, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("metadatastore: delete tenant commit: %w", err)
	}
	return rows > 0, nil
}

// --- Projects ------------------------------------------------------------

func (s *PostgresStore) CreateProject(ctx context.Context, tenantID, name string) (*Project, error) {
	tenant, err := s.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, fmt.Errorf("metadatastore: tenant %s not found", tenantID)
	}

	p := &Project{ID: uuid.NewString(), TenantID: tenantID, Name: name, CreatedAt: time.Now().UTC()}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO projects (id, tenant_id, name, created_at) VALUES ($1, $2, $3, $4)`,
		p.ID, p.TenantID, p.Name, p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("metadatastore: create project: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, id string) (*Project, error) {
	var p Project
	err := s.db.GetContext(ctx, &p,
		`SELECT id, tenant_id, name, created_at FROM projects WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("metadatastore: get project: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context, tenantID string) ([]*Project, error) {
	var ps []*Project
	err := s.db.SelectContext(ctx, &ps,
		`SELECT id, tenant_id, name, created_at FROM projects WHERE tenant_id = $1 ORDER BY created_at DESC`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("metadatastore: list projects: %w", err)
	}
	return ps, nil
}

// DeleteProject re-verifies tenant ownership before deleting: a
// project id alone is never sufficient authorization.
func (s *PostgresStore) DeleteProject(ctx context.Context, id, tenantID string) (bool, error) {
	project, err := s.GetProject(ctx, id)
	if err != nil {
		return false, err
	}
	if project == nil || project.TenantID != tenantID {
		return false, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("metadatastore: delete project: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE api_keys SET is_active = FALSE WHERE project_id = $1`, id); err != nil {
		return false, fmt.Errorf("metadatastore: deactivate project keys: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("metadatastore: delete project: %w", err)
	}
	rows, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("metadatastore: delete project commit: %w", err)
	}
	return rows > 0, nil
}

// --- API keys --------------------------------------------------------------

func (s *PostgresStore) GenerateAPIKey(ctx context.Context, tenantID, projectID string, userID *string) (*APIKey, error) {
	tenant, err := s.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, fmt.Errorf("metadatastore: tenant %s not found", tenantID)
	}
	project, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil || project.TenantID != tenantID {
		return nil, fmt.Errorf("metadatastore: project %s not found under tenant %s", projectID, tenantID)
	}

	secret, err := newAPIKeySecret()
	if err != nil {
		return nil, err
	}

	key := &APIKey{
		KeyID:     extractKeyID(secret),
		KeyHash:   hashKey(secret),
		TenantID:  tenantID,
		ProjectID: projectID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
		IsActive:  true,
		Secret:    secret,
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO api_keys (key_id, key_hash, tenant_id, project_id, user_id, created_at, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.KeyID, key.KeyHash, key.TenantID, key.ProjectID, key.UserID, key.CreatedAt, key.IsActive)
	if err != nil {
		return nil, fmt.Errorf("metadatastore: generate api key: %w", err)
	}
	return key, nil
}

func (s *PostgresStore) VerifyAPIKey(ctx context.Context, secret string) (*APIKey, error) {
	var key APIKey
	err := s.db.GetContext(ctx, &key,
		`SELECT key_id, key_hash, tenant_id, project_id, user_id, created_at, is_active
		 FROM api_keys WHERE key_hash = $1 AND is_active = TRUE`,
		hashKey(secret))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("metadatastore: verify api key: %w", err)
	}
	return &key, nil
}

// RevokeAPIKey deactivates the key. It is idempotent: revoking a key that
// is already inactive reports success rather than not-found, so only a
// key that never existed reports false.
func (s *PostgresStore) RevokeAPIKey(ctx context.Context, keyID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET is_active = FALSE WHERE key_id = $1 AND is_active = TRUE`, keyID)
	if err != nil {
		return false, fmt.Errorf("metadatastore: revoke api key: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows > 0 {
		return true, nil
	}

	var exists bool
	if err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM api_keys WHERE key_id = $1)`, keyID); err != nil {
		return false, fmt.Errorf("metadatastore: revoke api key: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, projectID string) ([]*APIKey, error) {
	var keys []*APIKey
	err := s.db.SelectContext(ctx, &keys,
		`SELECT key_id, key_hash, tenant_id, project_id, user_id, created_at, is_active
		 FROM api_keys WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("metadatastore: list api keys: %w", err)
	}
	return keys, nil
}

// --- Memory fragments --------------------------------------------------------

func (s *PostgresStore) AddFragment(ctx context.Context, f *MemoryFragment) error {
	tagsJSON, err := marshalTags(f.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memory_fragments
		 (id, tenant_id, project_id, user_id, memory_type, content, role, session_id, tags, importance, hit_count, metadata, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		f.ID, f.TenantID, f.ProjectID, f.UserID, f.MemoryType, f.Content, f.Role, f.SessionID,
		tagsJSON, f.Importance, f.HitCount, f.Metadata, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("metadatastore: add fragment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFragment(ctx context.Context, id string) (*MemoryFragment, error) {
	var f MemoryFragment
	err := s.db.GetContext(ctx, &f, fragmentSelectQuery+` WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("metadatastore: get fragment: %w", err)
	}
	if err := unmarshalTags(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *PostgresStore) GetFragments(ctx context.Context, ids []string) ([]*MemoryFragment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(fragmentSelectQuery+` WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("metadatastore: build bulk fetch: %w", err)
	}
	query = s.db.Rebind(query)

	var fragments []*MemoryFragment
	if err := s.db.SelectContext(ctx, &fragments, query, args...); err != nil {
		return nil, fmt.Errorf("metadatastore: get fragments: %w", err)
	}
	for _, f := range fragments {
		if err := unmarshalTags(f); err != nil {
			return nil, err
		}
	}
	return fragments, nil
}

func (s *PostgresStore) UpdateFragment(ctx context.Context, id string, fields map[string]interface{}) (bool, error) {
	if len(fields) == 0 {
		return true, nil
	}

	var invalid []string
	for k := range fields {
		if !updatableFragmentFields[k] {
			invalid = append(invalid, k)
		}
	}
	if len(invalid) > 0 {
		return false, fmt.Errorf("%w: %s", ErrInvalidField, strings.Join(invalid, ", "))
	}

	setClauses := make([]string, 0, len(fields)+1)
	args := make([]interface{}, 0, len(fields)+2)
	i := 1
	for k, v := range fields {
		if k == "tags" {
			tags, _ := v.([]string)
			tagsJSON, err := marshalTags(tags)
			if err != nil {
				return false, err
			}
			v = tagsJSON
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", k, i))
		args = append(args, v)
		i++
	}
	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", i))
	args = append(args, time.Now().UTC())
	i++
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE memory_fragments SET %s WHERE id = $%d`, strings.Join(setClauses, ", "), i)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("metadatastore: update fragment: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

func (s *PostgresStore) DeleteFragment(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memory_fragments WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("metadatastore: delete fragment: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

func (s *PostgresStore) BatchIncrementHitCount(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE memory_fragments SET hit_count = hit_count + 1 WHERE id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("metadatastore: build batch increment: %w", err)
	}
	query = s.db.Rebind(query)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("metadatastore: batch increment hit count: %w", err)
	}
	return nil
}

func (s *PostgresStore) Stats(ctx context.Context, tenantID, projectID, userID string) (*Stats, error) {
	var total int64
	err := s.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM memory_fragments WHERE tenant_id = $1 AND project_id = $2 AND user_id = $3`,
		tenantID, projectID, userID)
	if err != nil {
		return nil, fmt.Errorf("metadatastore: stats total: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT memory_type, COUNT(*) FROM memory_fragments
		 WHERE tenant_id = $1 AND project_id = $2 AND user_id = $3 GROUP BY memory_type`,
		tenantID, projectID, userID)
	if err != nil {
		return nil, fmt.Errorf("metadatastore: stats by type: %w", err)
	}
	defer rows.Close()

	byType := map[MemoryType]int64{}
	for rows.Next() {
		var mt MemoryType
		var count int64
		if err := rows.Scan(&mt, &count); err != nil {
			return nil, fmt.Errorf("metadatastore: scan stats row: %w", err)
		}
		byType[mt] = count
	}
	return &Stats{Total: total, ByType: byType}, rows.Err()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

const fragmentSelectQuery = `SELECT id, tenant_id, project_id, user_id, memory_type, content, role, session_id, tags, importance, hit_count, metadata, created_at, updated_at FROM memory_fragments`

func marshalTags(tags []string) (*string, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("metadatastore: marshal tags: %w", err)
	}
	s := string(b)
	return &s, nil
}

func unmarshalTags(f *MemoryFragment) error {
	if f.TagsRaw == nil || *f.TagsRaw == "" {
		f.Tags = nil
		return nil
	}
	if err := json.Unmarshal([]byte(*f.TagsRaw), &f.Tags); err != nil {
		return fmt.Errorf("metadatastore: unmarshal tags: %w", err)
	}
	return nil
}
