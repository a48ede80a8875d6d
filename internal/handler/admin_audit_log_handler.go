package handler

import (
	"net/http"
	"strconv"

	"shopapi/internal/config"
	"shopapi/internal/middleware"
	"shopapi/internal/usecase"

	"github.com/labstack/echo/v4"
)

type AdminAuditLogHandler struct {
	uc *usecase.AuditLogUsecase
}

func NewAdminAuditLogHandler(uc *usecase.AuditLogUsecase) *AdminAuditLogHandler {
	return &AdminAuditLogHandler{uc: uc}
}

func (h *AdminAuditLogHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	e.GET("/admin/audit-logs", h.list, middleware.AuthJWT(cfg), middleware.AdminRoleGuard())
}

// GET /admin/audit-logs?action=&resource_type=&resource_id=&actor_user_id=&limit=&offset=
func (h *AdminAuditLogHandler) list(c echo.Context) error {
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return c.JSON(http.StatusBadRequest, errorJSON("invalid limit"))
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return c.JSON(http.StatusBadRequest, errorJSON("invalid offset"))
	}
	actor, ok := queryID(c, "actor_user_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, errorJSON("invalid actor_user_id"))
	}
	resource, ok := queryID(c, "resource_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, errorJSON("invalid resource_id"))
	}

	logs, err := h.uc.List(c.Request().Context(), usecase.ListAuditLogsInput{
		ActorUserID:  actor,
		Action:       c.QueryParam("action"),
		ResourceType: c.QueryParam("resource_type"),
		ResourceID:   resource,
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		return writeError(c, err)
	}
	return writeOK(c, http.StatusOK, echo.Map{"audit_logs": logs, "count": len(logs)})
}

// 省略はnil
func queryID(c echo.Context, key string) (*int64, bool) {
	raw := c.QueryParam(key)
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, false
	}
	return &id, true
}
