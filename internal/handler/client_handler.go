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

type ClientHandler struct {
	clientService service.ClientService
	auth          *middleware.Auth
}

func NewClientHandler(clientService service.ClientService, auth *middleware.Auth) *ClientHandler {
	return &ClientHandler{clientService: clientService, auth: auth}
}

func (h *ClientHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/clients")
	{
		group.GET("", h.auth.RequireRole(anyRole...), h.ListClients)
		group.GET("/:id", h.auth.RequireRole(anyRole...), h.GetClient)
		group.POST("", h.auth.RequireRole(managerRole...), h.CreateClient)
		group.PUT("/:id", h.auth.RequireRole(managerRole...), h.UpdateClient)
		group.DELETE("/:id", h.auth.RequireRole(managerRole...), h.DeleteClient)
	}
}

// ListClients godoc
// @Summary      List clients
// @Tags         clients
// @Security     BearerAuth
// @Produce      json
// @Param        search  query     string  false  "Name or CUI contains"
// @Param        active  query     bool    false  "Only active clients"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Items per page (default 20)"
// @Success      200     {object}  response.Response{data=pagination.Page}
// @Router       /api/clients [get]
func (h *ClientHandler) ListClients(c *gin.Context) {
	p := pagination.Parse(c)
	filter := repository.ClientFilter{
		Search:     c.Query("search"),
		ActiveOnly: c.Query("active") == "true",
		Page:       p.Page,
		Limit:      p.Limit,
	}

	clients, total, err := h.clientService.ListClients(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Result(clients, total)))
}

// GetClient godoc
// @Summary      Get client
// @Tags         clients
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Client ID"
// @Success      200  {object}  response.Response{data=service.ClientResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/clients/{id} [get]
func (h *ClientHandler) GetClient(c *gin.Context) {
	client, err := h.clientService.GetClient(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, client))
}

// CreateClient godoc
// @Summary      Create client
// @Description  Creates a client with its hourly tariff and per-worker cost defaults
// @Tags         clients
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.ClientRequest  true  "Client"
// @Success      201      {object}  response.Response{data=service.ClientResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/clients [post]
func (h *ClientHandler) CreateClient(c *gin.Context) {
	var req service.ClientRequest
	if !bindJSON(c, &req) {
		return
	}

	client, err := h.clientService.CreateClient(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, client))
}

// UpdateClient godoc
// @Summary      Update client
// @Description  Tariff changes apply to records created afterwards only
// @Tags         clients
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                 true  "Client ID"
// @Param        payload  body      service.ClientRequest  true  "Client"
// @Success      200      {object}  response.Response{data=service.ClientResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/clients/{id} [put]
func (h *ClientHandler) UpdateClient(c *gin.Context) {
	var req service.ClientRequest
	if !bindJSON(c, &req) {
		return
	}

	client, err := h.clientService.UpdateClient(c.Request.Context(), actorFrom(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, client))
}

// DeleteClient godoc
// @Summary      Delete client
// @Tags         clients
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Client ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/clients/{id} [delete]
func (h *ClientHandler) DeleteClient(c *gin.Context) {
	if err := h.clientService.DeleteClient(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Client deleted successfully"))
}
