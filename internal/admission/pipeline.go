// Package admission implements the fixed-order gate chain every
// inbound request passes through before it reaches a route handler:
// public-path bypass, rate limiting, then either admin-token or
// API-key authentication.
package admission

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	"github.com/fyrsmithlabs/engrama/internal/apperr"
	"github.com/fyrsmithlabs/engrama/internal/config"
	"github.com/fyrsmithlabs/engrama/internal/logging"
	"github.com/fyrsmithlabs/engrama/internal/metadatastore"
	"github.com/fyrsmithlabs/engrama/internal/ratelimit"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	headerAPIKey     = "X-API-Key"
	headerAdminToken = "X-Admin-Token"

	channelPathPrefix = "/v1/channels"
)

// defaultPublicPaths bypass every gate: health, docs, root.
var defaultPublicPaths = map[string]bool{
	"/":        true,
	"/health":  true,
	"/metrics": true,
}

type contextKey string

const apiKeyContextKey contextKey = "engrama_api_key"

// KeyVerifier is the subset of channel management needed to
// authenticate a bearer secret. metadatastore.Store and channel.Manager
// both satisfy it.
type KeyVerifier interface {
	VerifyAPIKey(ctx context.Context, secret string) (*metadatastore.APIKey, error)
}

// Pipeline wires the gate chain: rate limiter, admin token, API key
// verifier.
type Pipeline struct {
	limiter     ratelimit.Limiter
	verifier    KeyVerifier
	adminToken  config.Secret
	rateLimit   int
	publicPaths map[string]bool
	logger      *logging.Logger
}

// New builds a Pipeline. rateLimitPerMinute of 0 disables rate limiting
// globally, per spec.
func New(limiter ratelimit.Limiter, verifier KeyVerifier, adminToken config.Secret, rateLimitPerMinute int, logger *logging.Logger) *Pipeline {
	return &Pipeline{
		limiter:     limiter,
		verifier:    verifier,
		adminToken:  adminToken,
		rateLimit:   rateLimitPerMinute,
		publicPaths: defaultPublicPaths,
		logger:      logger,
	}
}

// Middleware returns the echo.MiddlewareFunc implementing the gate
// order: public bypass, rate limit, admin-token-or-API-key auth.
func (p *Pipeline) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path

			if p.publicPaths[path] || strings.HasPrefix(path, "/docs") || strings.HasPrefix(path, "/redoc") {
				return next(c)
			}

			identity := c.Request().Header.Get(headerAPIKey)
			if identity == "" {
				identity = c.RealIP()
			}
			if !ratelimit.Disabled(p.rateLimit) {
				allowed, err := p.limiter.Allow(c.Request().Context(), identity)
				if err != nil {
					if p.logger != nil {
						p.logger.Error(c.Request().Context(), "rate limiter decision failed", zap.Error(err))
					}
				} else if !allowed {
					return writeAppErr(c, apperr.New(apperr.KindRateLimited, "rate limit exceeded"))
				}
			}

			if strings.HasPrefix(path, channelPathPrefix) {
				return p.checkAdminToken(c, next)
			}
			return p.checkAPIKey(c, next)
		}
	}
}

func (p *Pipeline) checkAdminToken(c echo.Context, next echo.HandlerFunc) error {
	if !p.adminToken.IsSet() {
		return writeAppErr(c, apperr.New(apperr.KindForbidden, "channel management is disabled: no admin token configured"))
	}

	token := c.Request().Header.Get(headerAdminToken)
	if token == "" {
		return writeAppErr(c, apperr.New(apperr.KindUnauthorized, "missing X-Admin-Token header"))
	}

	if !constantTimeEqual(token, p.adminToken.Value()) {
		return writeAppErr(c, apperr.New(apperr.KindForbidden, "invalid admin token"))
	}

	return next(c)
}

func (p *Pipeline) checkAPIKey(c echo.Context, next echo.HandlerFunc) error {
	secret := c.Request().Header.Get(headerAPIKey)
	if secret == "" {
		return writeAppErr(c, apperr.New(apperr.KindUnauthorized, "missing X-API-Key header"))
	}

	key, err := p.verifier.VerifyAPIKey(c.Request().Context(), secret)
	if err != nil {
		return writeAppErr(c, apperr.Wrap(apperr.KindInternal, "verify api key", err))
	}
	if key == nil {
		return writeAppErr(c, apperr.New(apperr.KindUnauthorized, "invalid or inactive API key"))
	}

	c.Set(string(apiKeyContextKey), key)
	return next(c)
}

// constantTimeEqual compares two secrets without leaking timing
// information about where they first differ. Hashing first avoids a
// length-based timing signal in subtle.ConstantTimeCompare itself.
func constantTimeEqual(a, b string) bool {
	ah := sha256.Sum256([]byte(a))
	bh := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ah[:], bh[:]) == 1
}

// APIKeyFromContext retrieves the API key attached by checkAPIKey. Only
// meaningful on the memory path; channel-management requests never set it.
func APIKeyFromContext(c echo.Context) (*metadatastore.APIKey, bool) {
	v := c.Get(string(apiKeyContextKey))
	key, ok := v.(*metadatastore.APIKey)
	return key, ok
}

func writeAppErr(c echo.Context, err *apperr.Error) error {
	return c.JSON(apperr.HTTPStatus(err.Kind), map[string]string{
		"error":  string(err.Kind),
		"detail": err.Message,
	})
}
