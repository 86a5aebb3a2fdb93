package admission

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fyrsmithlabs/engrama/internal/config"
	"github.com/fyrsmithlabs/engrama/internal/metadatastore"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	key *metadatastore.APIKey
	err error
}

func (f *fakeVerifier) VerifyAPIKey(ctx context.Context, secret string) (*metadatastore.APIKey, error) {
	return f.key, f.err
}

type allowAllLimiter struct{ allow bool }

func (a allowAllLimiter) Allow(ctx context.Context, identity string) (bool, error) {
	return a.allow, nil
}

func runThrough(p *Pipeline, req *http.Request) (*httptest.ResponseRecorder, bool) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var reachedHandler bool
	handler := func(c echo.Context) error {
		reachedHandler = true
		return c.String(http.StatusOK, "ok")
	}

	_ = p.Middleware()(handler)(c)
	return rec, reachedHandler
}

func TestMiddleware_PublicPathBypassesAllGates(t *testing.T) {
	p := New(allowAllLimiter{allow: false}, &fakeVerifier{}, "", 10, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	rec, reached := runThrough(p, req)
	assert.True(t, reached)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_RateLimitRejectsOverLimit(t *testing.T) {
	p := New(allowAllLimiter{allow: false}, &fakeVerifier{}, "", 10, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/memories", nil)
	req.Header.Set(headerAPIKey, "some-key")

	rec, reached := runThrough(p, req)
	assert.False(t, reached)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestMiddleware_ChannelPathRejectsWhenNoAdminTokenConfigured(t *testing.T) {
	p := New(allowAllLimiter{allow: true}, &fakeVerifier{}, "", 10, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/channels/tenants", nil)

	rec, reached := runThrough(p, req)
	assert.False(t, reached)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMiddleware_ChannelPathRejectsMissingToken(t *testing.T) {
	p := New(allowAllLimiter{allow: true}, &fakeVerifier{}, config.Secret("super-secret"), 10, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/channels/tenants", nil)

	rec, reached := runThrough(p, req)
	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_ChannelPathRejectsWrongToken(t *testing.T) {
	p := New(allowAllLimiter{allow: true}, &fakeVerifier{}, config.Secret("super-secret"), 10, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/channels/tenants", nil)
	req.Header.Set(headerAdminToken, "wrong")

	rec, reached := runThrough(p, req)
	assert.False(t, reached)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMiddleware_ChannelPathAcceptsCorrectToken(t *testing.T) {
	p := New(allowAllLimiter{allow: true}, &fakeVerifier{}, config.Secret("super-secret"), 10, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/channels/tenants", nil)
	req.Header.Set(headerAdminToken, "super-secret")

	rec, reached := runThrough(p, req)
	assert.True(t, reached)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_MemoryPathRejectsMissingAPIKey(t *testing.T) {
	p := New(allowAllLimiter{allow: true}, &fakeVerifier{}, "", 10, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/memories", nil)

	rec, reached := runThrough(p, req)
	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_MemoryPathRejectsInvalidAPIKey(t *testing.T) {
	p := New(allowAllLimiter{allow: true}, &fakeVerifier{key: nil}, "", 10, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/memories", nil)
	req.Header.Set(headerAPIKey, "bogus")

	rec, reached := runThrough(p, req)
	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_MemoryPathAttachesKeyOnSuccess(t *testing.T) {
	key := &metadatastore.APIKey{KeyID: "abc123", TenantID: "t1", ProjectID: "p1"}
	p := New(allowAllLimiter{allow: true}, &fakeVerifier{key: key}, "", 10, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/memories", nil)
	req.Header.Set(headerAPIKey, "valid-secret")

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var capturedKey *metadatastore.APIKey
	handler := func(c echo.Context) error {
		capturedKey, _ = APIKeyFromContext(c)
		return c.String(http.StatusOK, "ok")
	}

	err := p.Middleware()(handler)(c)
	require.NoError(t, err)
	require.NotNil(t, capturedKey)
	assert.Equal(t, "t1", capturedKey.TenantID)
}

func TestMiddleware_RateLimitDisabledWhenZero(t *testing.T) {
	p := New(allowAllLimiter{allow: false}, &fakeVerifier{key: &metadatastore.APIKey{}}, "", 0, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/memories", nil)
	req.Header.Set(headerAPIKey, "valid-secret")

	rec, reached := runThrough(p, req)
	assert.True(t, reached)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, constantTimeEqual("abc", "abc"))
	assert.False(t, constantTimeEqual("abc", "abd"))
	assert.False(t, constantTimeEqual("abc", "abcd"))
}
