package httpapi

import (
	"net/http"

	"github.com/fyrsmithlabs/engrama/internal/admission"
	"github.com/fyrsmithlabs/engrama/internal/apperr"
	"github.com/fyrsmithlabs/engrama/internal/memory"
	"github.com/labstack/echo/v4"
)

func (rt *Router) handleAddMemory(c echo.Context) error {
	key, ok := admission.APIKeyFromContext(c)
	if !ok {
		return writeErr(c, apperr.New(apperr.KindUnauthorized, "missing authenticated key"))
	}

	var req AddMemoryRequest
	if err := c.Bind(&req); err != nil {
		return writeErr(c, apperr.Wrap(apperr.KindBadRequest, "decode request body", err))
	}

	userID, err := admission.ResolveUserID(key, req.UserID)
	if err != nil {
		return writeErr(c, err)
	}
	if err := validateContent(req.Content, rt.limits); err != nil {
		return writeErr(c, err)
	}
	if err := validateTags(req.Tags, rt.limits); err != nil {
		return writeErr(c, err)
	}
	memType, err := validateMemoryType(req.MemoryType)
	if err != nil {
		return writeErr(c, err)
	}
	if memType == "" {
		return writeErr(c, apperr.New(apperr.KindBadRequest, "memory_type is required"))
	}

	importance := 0.0
	if req.Importance != nil {
		importance = *req.Importance
	}

	scope := memory.Scope{TenantID: key.TenantID, ProjectID: key.ProjectID, UserID: userID}
	fragment, err := rt.engine.Add(c.Request().Context(), scope, memory.AddInput{
		Content:    req.Content,
		MemoryType: memType,
		Role:       req.Role,
		SessionID:  req.SessionID,
		Tags:       req.Tags,
		Importance: importance,
		Metadata:   req.Metadata,
	})
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusCreated, fragmentToResponse(fragment, nil))
}

func (rt *Router) handleSearchMemories(c echo.Context) error {
	key, ok := admission.APIKeyFromContext(c)
	if !ok {
		return writeErr(c, apperr.New(apperr.KindUnauthorized, "missing authenticated key"))
	}

	var req SearchMemoryRequest
	if err := c.Bind(&req); err != nil {
		return writeErr(c, apperr.Wrap(apperr.KindBadRequest, "decode request body", err))
	}

	userID, err := admission.ResolveUserID(key, req.UserID)
	if err != nil {
		return writeErr(c, err)
	}
	if req.Query == "" {
		return writeErr(c, apperr.New(apperr.KindBadRequest, "query is required"))
	}
	if _, err := validateMemoryType(req.MemoryType); err != nil {
		return writeErr(c, err)
	}

	limit := clampLimit(req.Limit, defaultSearchLimit, searchLimitMin, searchLimitMax)
	scope := memory.Scope{TenantID: key.TenantID, ProjectID: key.ProjectID, UserID: userID}

	results, err := rt.engine.Search(c.Request().Context(), scope, req.Query, limit, req.MemoryType, req.SessionID)
	if err != nil {
		return writeErr(c, err)
	}

	resp := SearchResultResponse{Results: make([]FragmentResponse, 0, len(results))}
	for _, r := range results {
		score := r.Score
		resp.Results = append(resp.Results, fragmentToResponse(r.Fragment, &score))
	}
	resp.Total = len(resp.Results)
	return c.JSON(http.StatusOK, resp)
}

func (rt *Router) handleListMemories(c echo.Context) error {
	key, ok := admission.APIKeyFromContext(c)
	if !ok {
		return writeErr(c, apperr.New(apperr.KindUnauthorized, "missing authenticated key"))
	}

	userID, err := admission.ResolveUserID(key, c.QueryParam("user_id"))
	if err != nil {
		return writeErr(c, err)
	}
	memType := c.QueryParam("memory_type")
	if _, err := validateMemoryType(memType); err != nil {
		return writeErr(c, err)
	}

	requested := 0
	if v := c.QueryParam("limit"); v != "" {
		requested = parseIntOrZero(v)
	}
	limit := clampLimit(requested, defaultListLimit, listLimitMin, listLimitMax)

	scope := memory.Scope{TenantID: key.TenantID, ProjectID: key.ProjectID, UserID: userID}
	fragments, err := rt.engine.List(c.Request().Context(), scope, memType, limit)
	if err != nil {
		return writeErr(c, err)
	}

	out := make([]FragmentResponse, 0, len(fragments))
	for _, f := range fragments {
		out = append(out, fragmentToResponse(f, nil))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"memories": out, "total": len(out)})
}

func (rt *Router) handleUpdateMemory(c echo.Context) error {
	key, ok := admission.APIKeyFromContext(c)
	if !ok {
		return writeErr(c, apperr.New(apperr.KindUnauthorized, "missing authenticated key"))
	}
	id := c.Param("id")

	var req UpdateMemoryRequest
	if err := c.Bind(&req); err != nil {
		return writeErr(c, apperr.Wrap(apperr.KindBadRequest, "decode request body", err))
	}
	userID, err := admission.ResolveUserID(key, req.UserID)
	if err != nil {
		return writeErr(c, err)
	}

	fields := map[string]interface{}{}
	if req.Content != nil {
		if err := validateContent(*req.Content, rt.limits); err != nil {
			return writeErr(c, err)
		}
		fields["content"] = *req.Content
	}
	if req.Tags != nil {
		if err := validateTags(*req.Tags, rt.limits); err != nil {
			return writeErr(c, err)
		}
		fields["tags"] = *req.Tags
	}
	if req.Importance != nil {
		fields["importance"] = *req.Importance
	}
	if req.Metadata != nil {
		fields["metadata"] = []byte(req.Metadata)
	}

	scope := memory.Scope{TenantID: key.TenantID, ProjectID: key.ProjectID, UserID: userID}
	fragment, err := rt.engine.Update(c.Request().Context(), scope, id, fields)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, fragmentToResponse(fragment, nil))
}

func (rt *Router) handleDeleteMemory(c echo.Context) error {
	key, ok := admission.APIKeyFromContext(c)
	if !ok {
		return writeErr(c, apperr.New(apperr.KindUnauthorized, "missing authenticated key"))
	}
	id := c.Param("id")

	userID, err := admission.ResolveUserID(key, c.QueryParam("user_id"))
	if err != nil {
		return writeErr(c, err)
	}

	scope := memory.Scope{TenantID: key.TenantID, ProjectID: key.ProjectID, UserID: userID}
	deleted, err := rt.engine.Delete(c.Request().Context(), scope, id)
	if err != nil {
		return writeErr(c, err)
	}
	if !deleted {
		return writeErr(c, apperr.New(apperr.KindNotFound, "memory not found"))
	}
	return c.NoContent(http.StatusNoContent)
}

func (rt *Router) handleSessionHistory(c echo.Context) error {
	key, ok := admission.APIKeyFromContext(c)
	if !ok {
		return writeErr(c, apperr.New(apperr.KindUnauthorized, "missing authenticated key"))
	}
	sessionID := c.Param("sid")

	userID, err := admission.ResolveUserID(key, c.QueryParam("user_id"))
	if err != nil {
		return writeErr(c, err)
	}

	requested := 0
	if v := c.QueryParam("limit"); v != "" {
		requested = parseIntOrZero(v)
	}
	limit := clampLimit(requested, defaultListLimit, listLimitMin, listLimitMax)

	scope := memory.Scope{TenantID: key.TenantID, ProjectID: key.ProjectID, UserID: userID}
	fragments, err := rt.engine.History(c.Request().Context(), scope, sessionID, limit)
	if err != nil {
		return writeErr(c, err)
	}

	out := make([]FragmentResponse, 0, len(fragments))
	for _, f := range fragments {
		out = append(out, fragmentToResponse(f, nil))
	}
	return c.JSON(http.StatusOK, HistoryResponse{SessionID: sessionID, Messages: out, Total: len(out)})
}

func (rt *Router) handleMyStats(c echo.Context) error {
	key, ok := admission.APIKeyFromContext(c)
	if !ok {
		return writeErr(c, apperr.New(apperr.KindUnauthorized, "missing authenticated key"))
	}

	userID, err := admission.ResolveCurrentUserID(key)
	if err != nil {
		return writeErr(c, err)
	}

	scope := memory.Scope{TenantID: key.TenantID, ProjectID: key.ProjectID, UserID: userID}
	stats, err := rt.engine.Stats(c.Request().Context(), scope)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, statsToResponse(userID, stats))
}

func (rt *Router) handleUserStats(c echo.Context) error {
	key, ok := admission.APIKeyFromContext(c)
	if !ok {
		return writeErr(c, apperr.New(apperr.KindUnauthorized, "missing authenticated key"))
	}
	requested := c.Param("uid")

	userID, err := admission.ResolveUserID(key, requested)
	if err != nil {
		return writeErr(c, err)
	}

	scope := memory.Scope{TenantID: key.TenantID, ProjectID: key.ProjectID, UserID: userID}
	stats, err := rt.engine.Stats(c.Request().Context(), scope)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, statsToResponse(userID, stats))
}

func parseIntOrZero(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
