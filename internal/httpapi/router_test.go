package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fyrsmithlabs/engrama/internal/channel"
	"github.com/fyrsmithlabs/engrama/internal/config"
	"github.com/fyrsmithlabs/engrama/internal/memory"
	"github.com/fyrsmithlabs/engrama/internal/metadatastore"
	"github.com/fyrsmithlabs/engrama/internal/vectorstore"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMeta struct {
	metadatastore.Store

	fragments map[string]*metadatastore.MemoryFragment
	tenants   map[string]*metadatastore.Tenant
	projects  map[string]*metadatastore.Project
	keys      map[string]*metadatastore.APIKey
	nextID    int
}

func newFakeMeta() *fakeMeta {
	return &fakeMeta{
		fragments: map[string]*metadatastore.MemoryFragment{},
		tenants:   map[string]*metadatastore.Tenant{},
		projects:  map[string]*metadatastore.Project{},
		keys:      map[string]*metadatastore.APIKey{},
	}
}

func (f *fakeMeta) genID(prefix string) string {
	f.nextID++
	return prefix + "-" + string(rune('a'+f.nextID))
}

func (f *fakeMeta) CreateTenant(ctx context.Context, name string) (*metadatastore.Tenant, error) {
	t := &metadatastore.Tenant{ID: f.genID("tenant"), Name: name}
	f.tenants[t.ID] = t
	return t, nil
}

func (f *fakeMeta) ListTenants(ctx context.Context) ([]*metadatastore.Tenant, error) {
	var out []*metadatastore.Tenant
	for _, t := range f.tenants {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeMeta) DeleteTenant(ctx context.Context, id string) (bool, error) {
	if _, ok := f.tenants[id]; !ok {
		return false, nil
	}
	delete(f.tenants, id)
	return true, nil
}

func (f *fakeMeta) CreateProject(ctx context.Context, tenantID, name string) (*metadatastore.Project, error) {
	p := &metadatastore.Project{ID: f.genID("proj"), TenantID: tenantID, Name: name}
	f.projects[p.ID] = p
	return p, nil
}

func (f *fakeMeta) ListProjects(ctx context.Context, tenantID string) ([]*metadatastore.Project, error) {
	var out []*metadatastore.Project
	for _, p := range f.projects {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeMeta) DeleteProject(ctx context.Context, id, tenantID string) (bool, error) {
	p, ok := f.projects[id]
	if !ok || p.TenantID != tenantID {
		return false, nil
	}
	delete(f.projects, id)
	return true, nil
}

func (f *fakeMeta) GenerateAPIKey(ctx context.Context, tenantID, projectID string, userID *string) (*metadatastore.APIKey, error) {
	k := &metadatastore.APIKey{
		KeyID:     f.genID("key"),
		TenantID:  tenantID,
		ProjectID: projectID,
		UserID:    userID,
		IsActive:  true,
		Secret:    "eng_" + f.genID("secret"),
	}
	f.keys[k.Secret] = k
	return k, nil
}

func (f *fakeMeta) VerifyAPIKey(ctx context.Context, secret string) (*metadatastore.APIKey, error) {
	k, ok := f.keys[secret]
	if !ok || !k.IsActive {
		return nil, nil
	}
	return k, nil
}

func (f *fakeMeta) RevokeAPIKey(ctx context.Context, keyID string) (bool, error) {
	for _, k := range f.keys {
		if k.KeyID == keyID {
			k.IsActive = false
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeMeta) ListAPIKeys(ctx context.Context, projectID string) ([]*metadatastore.APIKey, error) {
	var out []*metadatastore.APIKey
	for _, k := range f.keys {
		if k.ProjectID == projectID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeMeta) AddFragment(ctx context.Context, fr *metadatastore.MemoryFragment) error {
	f.fragments[fr.ID] = fr
	return nil
}

func (f *fakeMeta) GetFragment(ctx context.Context, id string) (*metadatastore.MemoryFragment, error) {
	return f.fragments[id], nil
}

func (f *fakeMeta) GetFragments(ctx context.Context, ids []string) ([]*metadatastore.MemoryFragment, error) {
	var out []*metadatastore.MemoryFragment
	for _, id := range ids {
		if fr, ok := f.fragments[id]; ok {
			out = append(out, fr)
		}
	}
	return out, nil
}

func (f *fakeMeta) UpdateFragment(ctx context.Context, id string, fields map[string]interface{}) (bool, error) {
	fr, ok := f.fragments[id]
	if !ok {
		return false, nil
	}
	if c, ok := fields["content"].(string); ok {
		fr.Content = c
	}
	return true, nil
}

func (f *fakeMeta) DeleteFragment(ctx context.Context, id string) (bool, error) {
	if _, ok := f.fragments[id]; !ok {
		return false, nil
	}
	delete(f.fragments, id)
	return true, nil
}

func (f *fakeMeta) BatchIncrementHitCount(ctx context.Context, ids []string) error { return nil }

func (f *fakeMeta) Stats(ctx context.Context, tenantID, projectID, userID string) (*metadatastore.Stats, error) {
	total := int64(0)
	for _, fr := range f.fragments {
		if fr.TenantID == tenantID && fr.ProjectID == projectID && fr.UserID == userID {
			total++
		}
	}
	return &metadatastore.Stats{Total: total, ByType: map[metadatastore.MemoryType]int64{}}, nil
}

// fakeVector lists the ids of the fake metadata store's fragments that
// fall in scope, standing in for the vector index's scroll.
type fakeVector struct {
	vectorstore.Store
	meta *fakeMeta
}

func (f *fakeVector) Upsert(ctx context.Context, fr *vectorstore.Fragment, vector []float32) error {
	return nil
}
func (f *fakeVector) Search(ctx context.Context, scope vectorstore.Scope, vector []float32, limit int, memoryType, sessionID string) ([]vectorstore.SearchHit, error) {
	return nil, nil
}
func (f *fakeVector) List(ctx context.Context, scope vectorstore.Scope, memoryType string, limit int) ([]string, error) {
	if f.meta == nil {
		return nil, nil
	}
	var ids []string
	for id, fr := range f.meta.fragments {
		if fr.TenantID == scope.TenantID && fr.ProjectID == scope.ProjectID && (scope.UserID == "" || fr.UserID == scope.UserID) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
func (f *fakeVector) Delete(ctx context.Context, id string) error                       { return nil }
func (f *fakeVector) DeleteScope(ctx context.Context, tenantID, projectID string) error { return nil }

type fakeEncoder struct{}

func (fakeEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func newTestRouter(t *testing.T) (*Router, *fakeMeta, *metadatastore.APIKey) {
	t.Helper()
	meta := newFakeMeta()
	vec := &fakeVector{meta: meta}
	eng := memory.New(meta, vec, fakeEncoder{}, nil)
	mgr := channel.NewManager(meta, vec, nil)

	key, err := meta.GenerateAPIKey(context.Background(), "tenant-1", "proj-1", strPtr("alice"))
	require.NoError(t, err)

	limits := config.InputLimits{MaxContentLength: 10000, MaxNameLength: 200, MaxTagsCount: 20}
	rt := New(eng, mgr, limits, nil, nil, nil, nil)
	return rt, meta, key
}

func strPtr(s string) *string { return &s }

func newEchoWithKey(method, path string, body interface{}, key *metadatastore.APIKey) (echo.Context, *httptest.ResponseRecorder) {
	var reqBody *bytes.Buffer
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e := echo.New()
	c := e.NewContext(req, rec)
	if key != nil {
		c.Set(string(apiKeyContextKeyForTest), key)
	}
	return c, rec
}

// apiKeyContextKeyForTest mirrors admission's unexported context key string
// so tests can attach a key without importing admission's internals.
const apiKeyContextKeyForTest = "engrama_api_key"

func TestHandleAddMemory_CreatesFragment(t *testing.T) {
	rt, _, key := newTestRouter(t)
	c, rec := newEchoWithKey(http.MethodPost, "/v1/memories", AddMemoryRequest{
		Content:    "the sky is blue",
		MemoryType: "factual",
	}, key)

	err := rt.handleAddMemory(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp FragmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp.UserID)
	assert.Equal(t, "factual", resp.MemoryType)
}

func TestHandleAddMemory_RejectsUnknownMemoryType(t *testing.T) {
	rt, _, key := newTestRouter(t)
	c, rec := newEchoWithKey(http.MethodPost, "/v1/memories", AddMemoryRequest{
		Content:    "x",
		MemoryType: "bogus",
	}, key)

	err := rt.handleAddMemory(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAddMemory_RejectsMismatchedBoundUser(t *testing.T) {
	rt, _, key := newTestRouter(t)
	c, rec := newEchoWithKey(http.MethodPost, "/v1/memories", AddMemoryRequest{
		Content:    "x",
		MemoryType: "factual",
		UserID:     "bob",
	}, key)

	err := rt.handleAddMemory(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleListMemories_ReturnsOwnedFragments(t *testing.T) {
	rt, meta, key := newTestRouter(t)
	meta.fragments["f1"] = &metadatastore.MemoryFragment{ID: "f1", TenantID: "tenant-1", ProjectID: "proj-1", UserID: "alice", Content: "hi", MemoryType: metadatastore.MemoryTypeFactual}

	c, rec := newEchoWithKey(http.MethodGet, "/v1/memories", nil, key)
	err := rt.handleListMemories(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "f1")
}

func TestHandleDeleteMemory_NotFoundWhenMissing(t *testing.T) {
	rt, _, key := newTestRouter(t)
	c, rec := newEchoWithKey(http.MethodDelete, "/v1/memories/missing", nil, key)
	c.SetParamNames("id")
	c.SetParamValues("missing")

	err := rt.handleDeleteMemory(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleMyStats_RejectsProjectScopedKey(t *testing.T) {
	rt, meta, _ := newTestRouter(t)
	projKey, err := meta.GenerateAPIKey(context.Background(), "tenant-1", "proj-1", nil)
	require.NoError(t, err)

	c, rec := newEchoWithKey(http.MethodGet, "/v1/users/me/stats", nil, projKey)
	err = rt.handleMyStats(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGenerateAPIKey_ReturnsSecretOnce(t *testing.T) {
	rt, _, _ := newTestRouter(t)
	c, rec := newEchoWithKey(http.MethodPost, "/v1/channels/api-keys", GenerateAPIKeyRequest{
		TenantID:  "tenant-1",
		ProjectID: "proj-1",
	}, nil)

	err := rt.handleGenerateAPIKey(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"key":"eng_`)
}

func TestHandleListAPIKeys_NeverReturnsSecretOrHash(t *testing.T) {
	rt, meta, _ := newTestRouter(t)
	_, err := meta.GenerateAPIKey(context.Background(), "tenant-1", "proj-1", strPtr("bob"))
	require.NoError(t, err)

	c, rec := newEchoWithKey(http.MethodGet, "/v1/channels/projects/proj-1/api-keys", nil, nil)
	c.SetParamNames("id")
	c.SetParamValues("proj-1")

	err = rt.handleListAPIKeys(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "eng_")
	assert.NotContains(t, rec.Body.String(), "key_hash")
}

func TestHandleCreateProject_RequiresTenantID(t *testing.T) {
	rt, _, _ := newTestRouter(t)
	c, rec := newEchoWithKey(http.MethodPost, "/v1/channels/projects", CreateProjectRequest{Name: "proj"}, nil)

	err := rt.handleCreateProject(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
