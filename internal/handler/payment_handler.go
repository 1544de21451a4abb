package handler

import (
	"net/http"

	"ecofin/internal/middleware"
	"ecofin/internal/service"
	"ecofin/pkg/pagination"
	"ecofin/pkg/response"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	paymentService service.PaymentService
	auth           *middleware.Auth
}

func NewPaymentHandler(paymentService service.PaymentService, auth *middleware.Auth) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService, auth: auth}
}

func (h *PaymentHandler) RegisterRoutes(router *gin.RouterGroup) {
	billing := router.Group("/billing")
	billing.Use(h.auth.RequireRole(managerRole...))
	{
		billing.POST("/sync-payments", h.SyncPayments)
		billing.GET("/sync-logs", h.ListSyncLogs)
	}
}

// SyncPayments pulls collected payments from SmartBill and updates invoice payment status
// @Summary      Sync payments
// @Tags         billing
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.SyncResult}
// @Failure      409  {object}  response.Response
// @Failure      502  {object}  response.Response
// @Router       /api/billing/sync-payments [post]
func (h *PaymentHandler) SyncPayments(c *gin.Context) {
	res, err := h.paymentService.SyncPayments(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// ListSyncLogs lists past payment sync runs, newest first
// @Summary      List payment sync logs
// @Tags         billing
// @Security     BearerAuth
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=pagination.Page}
// @Router       /api/billing/sync-logs [get]
func (h *PaymentHandler) ListSyncLogs(c *gin.Context) {
	p := pagination.Parse(c)
	logs, total, err := h.paymentService.ListSyncLogs(c.Request.Context(), p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Result(logs, total)))
}
