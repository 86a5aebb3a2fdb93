package httpapi

import (
	"net/http"

	"github.com/fyrsmithlabs/engrama/internal/apperr"
	"github.com/labstack/echo/v4"
)

func (rt *Router) handleRegisterTenant(c echo.Context) error {
	var req RegisterTenantRequest
	if err := c.Bind(&req); err != nil {
		return writeErr(c, apperr.Wrap(apperr.KindBadRequest, "decode request body", err))
	}
	if err := validateName(req.Name, rt.limits); err != nil {
		return writeErr(c, err)
	}

	tenant, err := rt.channel.CreateTenant(c.Request().Context(), req.Name)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusCreated, tenantToResponse(tenant))
}

func (rt *Router) handleListTenants(c echo.Context) error {
	tenants, err := rt.channel.ListTenants(c.Request().Context())
	if err != nil {
		return writeErr(c, err)
	}
	out := make([]TenantResponse, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, tenantToResponse(t))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"tenants": out, "total": len(out)})
}

func (rt *Router) handleDeleteTenant(c echo.Context) error {
	id := c.Param("id")
	deleted, err := rt.channel.DeleteTenant(c.Request().Context(), id)
	if err != nil {
		return writeErr(c, err)
	}
	if !deleted {
		return writeErr(c, apperr.New(apperr.KindNotFound, "tenant not found"))
	}
	return c.NoContent(http.StatusNoContent)
}

func (rt *Router) handleCreateProject(c echo.Context) error {
	var req CreateProjectRequest
	if err := c.Bind(&req); err != nil {
		return writeErr(c, apperr.Wrap(apperr.KindBadRequest, "decode request body", err))
	}
	if req.TenantID == "" {
		return writeErr(c, apperr.New(apperr.KindBadRequest, "tenant_id is required"))
	}
	if err := validateName(req.Name, rt.limits); err != nil {
		return writeErr(c, err)
	}

	project, err := rt.channel.CreateProject(c.Request().Context(), req.TenantID, req.Name)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusCreated, projectToResponse(project))
}

func (rt *Router) handleListProjects(c echo.Context) error {
	tenantID := c.QueryParam("tenant_id")
	if tenantID == "" {
		return writeErr(c, apperr.New(apperr.KindBadRequest, "tenant_id is required"))
	}

	projects, err := rt.channel.ListProjects(c.Request().Context(), tenantID)
	if err != nil {
		return writeErr(c, err)
	}
	out := make([]ProjectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, projectToResponse(p))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"projects": out, "total": len(out)})
}

func (rt *Router) handleDeleteProject(c echo.Context) error {
	id := c.Param("id")
	tenantID := c.QueryParam("tenant_id")
	if tenantID == "" {
		return writeErr(c, apperr.New(apperr.KindBadRequest, "tenant_id is required"))
	}

	deleted, err := rt.channel.DeleteProject(c.Request().Context(), id, tenantID)
	if err != nil {
		return writeErr(c, err)
	}
	if !deleted {
		return writeErr(c, apperr.New(apperr.KindNotFound, "project not found under that tenant"))
	}
	return c.NoContent(http.StatusNoContent)
}

func (rt *Router) handleGenerateAPIKey(c echo.Context) error {
	var req GenerateAPIKeyRequest
	if err := c.Bind(&req); err != nil {
		return writeErr(c, apperr.Wrap(apperr.KindBadRequest, "decode request body", err))
	}
	if req.TenantID == "" || req.ProjectID == "" {
		return writeErr(c, apperr.New(apperr.KindBadRequest, "tenant_id and project_id are required"))
	}

	key, err := rt.channel.GenerateKey(c.Request().Context(), req.TenantID, req.ProjectID, req.UserID)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusCreated, apiKeyToResponse(key))
}

func (rt *Router) handleRevokeAPIKey(c echo.Context) error {
	keyID := c.Param("key_id")
	revoked, err := rt.channel.RevokeKey(c.Request().Context(), keyID)
	if err != nil {
		return writeErr(c, err)
	}
	if !revoked {
		return writeErr(c, apperr.New(apperr.KindNotFound, "api key not found"))
	}
	return c.NoContent(http.StatusNoContent)
}

func (rt *Router) handleListAPIKeys(c echo.Context) error {
	projectID := c.Param("id")
	keys, err := rt.channel.ListKeys(c.Request().Context(), projectID)
	if err != nil {
		return writeErr(c, err)
	}

	out := make([]APIKeyListItem, 0, len(keys))
	for _, k := range keys {
		out = append(out, apiKeyToListItem(k))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"api_keys": out, "total": len(out)})
}
