// Package httpapi maps the external HTTP surface onto the memory
// engine and channel manager: request validation, response formatting,
// and route registration sit here; business logic does not.
package httpapi

import (
	"context"
	"net/http"

	"github.com/fyrsmithlabs/engrama/internal/admission"
	"github.com/fyrsmithlabs/engrama/internal/apperr"
	"github.com/fyrsmithlabs/engrama/internal/channel"
	"github.com/fyrsmithlabs/engrama/internal/config"
	"github.com/fyrsmithlabs/engrama/internal/logging"
	"github.com/fyrsmithlabs/engrama/internal/memory"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker reports whether a backing subsystem is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Router owns HTTP route registration for the memory and channel
// management surfaces.
type Router struct {
	engine  *memory.Engine
	channel *channel.Manager
	limits  config.InputLimits
	logger  *logging.Logger

	metadataHealth  HealthChecker
	vectorHealth    HealthChecker
	embeddingHealth HealthChecker
}

// New builds a Router. The three health checkers are optional — a nil
// checker is reported as "unconfigured" rather than failing the
// overall /health response.
func New(engine *memory.Engine, chMgr *channel.Manager, limits config.InputLimits, logger *logging.Logger, metadataHealth, vectorHealth, embeddingHealth HealthChecker) *Router {
	return &Router{
		engine:          engine,
		channel:         chMgr,
		limits:          limits,
		logger:          logger,
		metadataHealth:  metadataHealth,
		vectorHealth:    vectorHealth,
		embeddingHealth: embeddingHealth,
	}
}

// Register wires every route onto e, with pipeline's gate chain applied
// globally. /health and /metrics are registered as public paths — the
// pipeline bypasses them by path, so registration order doesn't matter.
func (rt *Router) Register(e *echo.Echo, pipeline *admission.Pipeline) {
	e.Use(pipeline.Middleware())

	e.GET("/health", rt.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/v1")
	v1.POST("/memories", rt.handleAddMemory)
	v1.POST("/memories/search", rt.handleSearchMemories)
	v1.GET("/memories", rt.handleListMemories)
	v1.PUT("/memories/:id", rt.handleUpdateMemory)
	v1.DELETE("/memories/:id", rt.handleDeleteMemory)
	v1.GET("/sessions/:sid/history", rt.handleSessionHistory)
	// /users/me/stats is listed before /users/:uid/stats for readability;
	// Echo's router matches the static "me" segment ahead of the :uid
	// parameter regardless of registration order.
	v1.GET("/users/me/stats", rt.handleMyStats)
	v1.GET("/users/:uid/stats", rt.handleUserStats)

	channels := v1.Group("/channels")
	channels.POST("/tenants", rt.handleRegisterTenant)
	channels.GET("/tenants", rt.handleListTenants)
	channels.DELETE("/tenants/:id", rt.handleDeleteTenant)
	channels.POST("/projects", rt.handleCreateProject)
	channels.GET("/projects", rt.handleListProjects)
	channels.DELETE("/projects/:id", rt.handleDeleteProject)
	channels.POST("/api-keys", rt.handleGenerateAPIKey)
	channels.POST("/api-keys/:key_id/revoke", rt.handleRevokeAPIKey)
	channels.GET("/projects/:id/api-keys", rt.handleListAPIKeys)
}

// writeErr maps any error through apperr and writes the JSON body the
// external interface contract specifies: {"error": kind, "detail": msg}.
func writeErr(c echo.Context, err error) error {
	kind := apperr.KindOf(err)
	return c.JSON(apperr.HTTPStatus(kind), map[string]string{
		"error":  string(kind),
		"detail": err.Error(),
	})
}

type subsystemStatus struct {
	Status string `json:"status"`
}

type healthResponse struct {
	Status   string          `json:"status"`
	Metadata subsystemStatus `json:"metadata_store"`
	Vector   subsystemStatus `json:"vector_store"`
	Embed    subsystemStatus `json:"embedding_service"`
}

// handleHealth is a public, admission-bypassed endpoint: it never gates
// traffic and always returns 200, reporting each subsystem's liveness
// independently so an operator can see a degraded dependency without
// the whole service reporting unhealthy.
func (rt *Router) handleHealth(c echo.Context) error {
	resp := healthResponse{Status: "ok"}
	resp.Metadata = checkSubsystem(c.Request().Context(), rt.metadataHealth)
	resp.Vector = checkSubsystem(c.Request().Context(), rt.vectorHealth)
	resp.Embed = checkSubsystem(c.Request().Context(), rt.embeddingHealth)

	if resp.Metadata.Status != "ok" || resp.Vector.Status != "ok" || resp.Embed.Status != "ok" {
		resp.Status = "degraded"
	}
	return c.JSON(http.StatusOK, resp)
}

func checkSubsystem(ctx context.Context, checker HealthChecker) subsystemStatus {
	if checker == nil {
		return subsystemStatus{Status: "unconfigured"}
	}
	if err := checker.Health(ctx); err != nil {
		return subsystemStatus{Status: "unreachable"}
	}
	return subsystemStatus{Status: "ok"}
}
