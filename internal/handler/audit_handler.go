package handler

import (
	"net/http"

	"ecofin/internal/middleware"
	"ecofin/internal/repository"
	"ecofin/internal/service"
	"ecofin/pkg/pagination"
	"ecofin/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
	auth         *middleware.Auth
}

func NewAuditHandler(auditService service.AuditService, auth *middleware.Auth) *AuditHandler {
	return &AuditHandler{auditService: auditService, auth: auth}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/audit-logs")
	group.Use(h.auth.RequireRole(managerRole...)) // Protect history logs
	{
		group.GET("", h.GetAuditLogs)
	}
}

// GetAuditLogs retrieves paginated audit entries with their users preloaded
// @Summary      Get audit logs
// @Description  Lists who changed what, newest first
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        action     query     string  false  "Action, e.g. ISSUE_INVOICE"
// @Param        entity_id  query     string  false  "Affected entity"
// @Param        page       query     int     false  "Page number (default 1)"
// @Param        limit      query     int     false  "Number of items per page (default 20)"
// @Success      200        {object}  response.Response{data=pagination.Page}
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	p := pagination.Parse(c)

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), repository.AuditFilter{
		Action:   c.Query("action"),
		EntityID: c.Query("entity_id"),
		Page:     p.Page,
		Limit:    p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Result(logs, total)))
}
