package handler

import (
	"net/http"

	"ecofin/internal/middleware"
	"ecofin/internal/service"
	"ecofin/pkg/response"

	"github.com/gin-gonic/gin"
)

type SettingsHandler struct {
	settingsService service.SettingsService
	auth            *middleware.Auth
}

func NewSettingsHandler(settingsService service.SettingsService, auth *middleware.Auth) *SettingsHandler {
	return &SettingsHandler{settingsService: settingsService, auth: auth}
}

func (h *SettingsHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/ecofin/settings")
	group.Use(h.auth.RequireRole(managerRole...))
	{
		group.GET("", h.ListSettings)
		group.POST("", h.CreateSettings)
		group.GET("/:year/:month", h.GetSettings)
		group.PUT("/:id", h.UpdateSettings)
	}
}

// ListSettings godoc
// @Summary      List monthly settings
// @Tags         ecofin
// @Security     BearerAuth
// @Produce      json
// @Param        year  query     int  false  "Restrict to one year"
// @Success      200   {object}  response.Response{data=[]service.SettingsResponse}
// @Router       /api/ecofin/settings [get]
func (h *SettingsHandler) ListSettings(c *gin.Context) {
	year, ok := queryInt(c, "year", 0)
	if !ok {
		return
	}
	list, err := h.settingsService.ListSettings(c.Request.Context(), year)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, list))
}

// GetSettings godoc
// @Summary      Get the settings of one month
// @Tags         ecofin
// @Security     BearerAuth
// @Produce      json
// @Param        year   path      int  true  "Year"
// @Param        month  path      int  true  "Month (1-12)"
// @Success      200    {object}  response.Response{data=service.SettingsResponse}
// @Failure      404    {object}  response.Response
// @Router       /api/ecofin/settings/{year}/{month} [get]
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	year, ok := paramInt(c, "year")
	if !ok {
		return
	}
	month, ok := paramInt(c, "month")
	if !ok {
		return
	}
	settings, err := h.settingsService.GetSettings(c.Request.Context(), year, month)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, settings))
}

// CreateSettings godoc
// @Summary      Create monthly settings
// @Description  One row per month holding indirect expenses and the vacation cost per worker
// @Tags         ecofin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateSettingsRequest  true  "Settings"
// @Success      201      {object}  response.Response{data=service.SettingsResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/ecofin/settings [post]
func (h *SettingsHandler) CreateSettings(c *gin.Context) {
	var req service.CreateSettingsRequest
	if !bindJSON(c, &req) {
		return
	}
	settings, err := h.settingsService.CreateSettings(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, settings))
}

// UpdateSettings godoc
// @Summary      Update monthly settings
// @Description  Locked months can only be changed by an admin
// @Tags         ecofin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                         true  "Settings ID"
// @Param        payload  body      service.UpdateSettingsRequest  true  "Settings"
// @Success      200      {object}  response.Response{data=service.SettingsResponse}
// @Failure      403      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/ecofin/settings/{id} [put]
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	var req service.UpdateSettingsRequest
	if !bindJSON(c, &req) {
		return
	}
	settings, err := h.settingsService.UpdateSettings(c.Request.Context(), actorFrom(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, settings))
}
