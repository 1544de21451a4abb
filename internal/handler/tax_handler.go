package handler

import (
	"net/http"
	"time"

	"ecofin/internal/middleware"
	"ecofin/internal/model"
	"ecofin/internal/service"
	"ecofin/pkg/response"

	"github.com/gin-gonic/gin"
)

type TaxHandler struct {
	taxService service.TaxService
	auth       *middleware.Auth
}

func NewTaxHandler(taxService service.TaxService, auth *middleware.Auth) *TaxHandler {
	return &TaxHandler{taxService: taxService, auth: auth}
}

func (h *TaxHandler) RegisterRoutes(router *gin.RouterGroup) {
	tax := router.Group("/tax-rules")
	{
		tax.GET("", h.auth.RequireRole(anyRole...), h.GetTaxRules)
		tax.GET("/active", h.auth.RequireRole(anyRole...), h.GetActiveTaxRate)
		tax.POST("", h.auth.RequireRole(adminRole...), h.CreateTaxRule)
		tax.PUT("/:id", h.auth.RequireRole(adminRole...), h.UpdateTaxRule)
		tax.DELETE("/:id", h.auth.RequireRole(adminRole...), h.DeleteTaxRule)
	}
}

// GetTaxRules returns all tax rules ordered by effective_from DESC
// @Summary      List tax rules
// @Tags         tax
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]service.TaxRuleResponse}
// @Router       /api/tax-rules [get]
func (h *TaxHandler) GetTaxRules(c *gin.Context) {
	rules, err := h.taxService.GetTaxRules(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, rules))
}

// GetActiveTaxRate returns the rate in force on a day
// @Summary      Active tax rate
// @Tags         tax
// @Security     BearerAuth
// @Produce      json
// @Param        tax_type  query     string  false  "VAT_STANDARD (default) or VAT_REDUCED"
// @Param        date      query     string  false  "YYYY-MM-DD, defaults to today"
// @Success      200       {object}  response.Response{data=service.ActiveTaxRateResponse}
// @Router       /api/tax-rules/active [get]
func (h *TaxHandler) GetActiveTaxRate(c *gin.Context) {
	on := time.Now()
	if raw := c.Query("date"); raw != "" {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			badRequest(c, "Invalid date, expected YYYY-MM-DD")
			return
		}
		on = d
	}

	rate, err := h.taxService.GetActiveTaxRate(c.Request.Context(), c.DefaultQuery("tax_type", model.TaxTypeVATStandard), on)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rate))
}

// CreateTaxRule creates a new tax rule entry
// @Summary      Create tax rule
// @Tags         tax
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.TaxRuleRequest  true  "Tax rule"
// @Success      201      {object}  response.Response{data=service.TaxRuleResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/tax-rules [post]
func (h *TaxHandler) CreateTaxRule(c *gin.Context) {
	var req service.TaxRuleRequest
	if !bindJSON(c, &req) {
		return
	}

	rule, err := h.taxService.CreateTaxRule(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, rule))
}

// UpdateTaxRule replaces a tax rule
// @Summary      Update tax rule
// @Tags         tax
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                  true  "Tax rule ID"
// @Param        payload  body      service.TaxRuleRequest  true  "Tax rule"
// @Success      200      {object}  response.Response{data=service.TaxRuleResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/tax-rules/{id} [put]
func (h *TaxHandler) UpdateTaxRule(c *gin.Context) {
	var req service.TaxRuleRequest
	if !bindJSON(c, &req) {
		return
	}

	rule, err := h.taxService.UpdateTaxRule(c.Request.Context(), actorFrom(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, rule))
}

// DeleteTaxRule removes a tax rule
// @Summary      Delete tax rule
// @Tags         tax
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Tax rule ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/tax-rules/{id} [delete]
func (h *TaxHandler) DeleteTaxRule(c *gin.Context) {
	if err := h.taxService.DeleteTaxRule(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Tax rule deleted successfully"))
}
