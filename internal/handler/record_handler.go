package handler

import (
	"net/http"
	"strconv"

	"ecofin/internal/middleware"
	"ecofin/internal/service"
	"ecofin/pkg/pagination"
	"ecofin/pkg/response"

	"github.com/gin-gonic/gin"
)

type RecordHandler struct {
	recordService service.RecordService
	auth          *middleware.Auth
}

func NewRecordHandler(recordService service.RecordService, auth *middleware.Auth) *RecordHandler {
	return &RecordHandler{recordService: recordService, auth: auth}
}

func (h *RecordHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/ecofin/records")
	group.Use(h.auth.RequireRole(managerRole...))
	{
		group.GET("", h.ListRecords)
		group.POST("/validate", h.ValidatePeriod)
		group.GET("/:id", h.GetRecord)
		group.PUT("/:id", h.UpdateRecord)
		group.DELETE("/:id", h.DeleteRecord)
	}
}

// ListRecords godoc
// @Summary      List processed records
// @Tags         ecofin
// @Security     BearerAuth
// @Produce      json
// @Param        year       query     int     false  "Year"
// @Param        month      query     int     false  "Month"
// @Param        client_id  query     string  false  "Client"
// @Param        worker_id  query     string  false  "Worker"
// @Param        validated  query     bool    false  "Validation state"
// @Param        page       query     int     false  "Page number (default 1)"
// @Param        limit      query     int     false  "Items per page (default 20)"
// @Success      200        {object}  response.Response{data=pagination.Page}
// @Router       /api/ecofin/records [get]
func (h *RecordHandler) ListRecords(c *gin.Context) {
	p := pagination.Parse(c)
	year, ok := queryInt(c, "year", 0)
	if !ok {
		return
	}
	month, ok := queryInt(c, "month", 0)
	if !ok {
		return
	}
	filter := service.RecordListFilter{
		Year:     year,
		Month:    month,
		ClientID: c.Query("client_id"),
		WorkerID: c.Query("worker_id"),
		Page:     p.Page,
		Limit:    p.Limit,
	}
	if raw := c.Query("validated"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "Invalid validated parameter")
			return
		}
		filter.Validated = &v
	}

	records, total, err := h.recordService.ListRecords(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Result(records, total)))
}

// GetRecord godoc
// @Summary      Get a processed record
// @Tags         ecofin
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Record ID"
// @Success      200  {object}  response.Response{data=service.RecordResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/ecofin/records/{id} [get]
func (h *RecordHandler) GetRecord(c *gin.Context) {
	record, err := h.recordService.GetRecord(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, record))
}

// UpdateRecord godoc
// @Summary      Correct a processed record
// @Description  Recomputes costs and profit. Validated records can only be corrected by an admin.
// @Tags         ecofin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                       true  "Record ID"
// @Param        payload  body      service.UpdateRecordRequest  true  "Changed inputs"
// @Success      200      {object}  response.Response{data=service.RecordResponse}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Router       /api/ecofin/records/{id} [put]
func (h *RecordHandler) UpdateRecord(c *gin.Context) {
	var req service.UpdateRecordRequest
	if !bindJSON(c, &req) {
		return
	}
	record, err := h.recordService.UpdateRecord(c.Request.Context(), actorFrom(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, record))
}

// DeleteRecord godoc
// @Summary      Delete a processed record
// @Tags         ecofin
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Record ID"
// @Success      200  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/ecofin/records/{id} [delete]
func (h *RecordHandler) DeleteRecord(c *gin.Context) {
	if err := h.recordService.DeleteRecord(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Record deleted successfully"))
}

// ValidatePeriod godoc
// @Summary      Validate a month
// @Description  Freezes every record of the month and locks its settings
// @Tags         ecofin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.ValidatePeriodRequest  true  "Period"
// @Success      200      {object}  response.Response{data=service.ValidatePeriodResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/ecofin/records/validate [post]
func (h *RecordHandler) ValidatePeriod(c *gin.Context) {
	var req service.ValidatePeriodRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.recordService.ValidatePeriod(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}
