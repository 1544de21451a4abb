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

type ImportHandler struct {
	importService  service.ImportService
	auth           *middleware.Auth
	maxUploadBytes int64
}

func NewImportHandler(importService service.ImportService, auth *middleware.Auth, maxUploadBytes int64) *ImportHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &ImportHandler{importService: importService, auth: auth, maxUploadBytes: maxUploadBytes}
}

func (h *ImportHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/ecofin/import")
	group.Use(h.auth.RequireRole(managerRole...))
	{
		group.POST("/upload", h.Upload)
		group.GET("/batches", h.ListBatches)
		group.GET("/batches/:id", h.GetBatch)
		group.POST("/batches/:id/commit", h.Commit)
		group.POST("/batches/:id/cancel", h.Cancel)
	}
}

// Upload godoc
// @Summary      Upload a payroll file
// @Description  Parses an .xlsx or .csv payroll export, matches rows to workers and returns the batch preview
// @Tags         import
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        file   formData  file  true  "Payroll file"
// @Param        year   formData  int   true  "Year"
// @Param        month  formData  int   true  "Month (1-12)"
// @Success      201    {object}  response.Response{data=service.BatchResponse}
// @Failure      400    {object}  response.Response
// @Router       /api/ecofin/import/upload [post]
func (h *ImportHandler) Upload(c *gin.Context) {
	fileHeader, data, ok := readUpload(c, h.maxUploadBytes, "A payroll file is required")
	if !ok {
		return
	}
	year, err := strconv.Atoi(c.PostForm("year"))
	if err != nil {
		badRequest(c, "Invalid year")
		return
	}
	month, err := strconv.Atoi(c.PostForm("month"))
	if err != nil {
		badRequest(c, "Invalid month")
		return
	}

	batch, err := h.importService.Upload(c.Request.Context(), actorFrom(c), service.UploadRequest{
		Year:     year,
		Month:    month,
		FileName: fileHeader.Filename,
		Data:     data,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, batch))
}

// ListBatches godoc
// @Summary      List import batches
// @Tags         import
// @Security     BearerAuth
// @Produce      json
// @Param        year    query     int     false  "Year"
// @Param        month   query     int     false  "Month"
// @Param        status  query     string  false  "PENDING, PREVIEW, PROCESSED, CANCELLED or FAILED"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Items per page (default 20)"
// @Success      200     {object}  response.Response{data=pagination.Page}
// @Router       /api/ecofin/import/batches [get]
func (h *ImportHandler) ListBatches(c *gin.Context) {
	p := pagination.Parse(c)
	year, ok := queryInt(c, "year", 0)
	if !ok {
		return
	}
	month, ok := queryInt(c, "month", 0)
	if !ok {
		return
	}

	batches, total, err := h.importService.ListBatches(c.Request.Context(), service.BatchListFilter{
		Year:   year,
		Month:  month,
		Status: c.Query("status"),
		Page:   p.Page,
		Limit:  p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Result(batches, total)))
}

// GetBatch godoc
// @Summary      Get an import batch with its rows
// @Tags         import
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Batch ID"
// @Success      200  {object}  response.Response{data=service.BatchResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/ecofin/import/batches/{id} [get]
func (h *ImportHandler) GetBatch(c *gin.Context) {
	batch, err := h.importService.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, batch))
}

// Commit godoc
// @Summary      Commit an import batch
// @Description  Creates processed records for every matched row in one transaction; any failure leaves no records
// @Tags         import
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Batch ID"
// @Success      200  {object}  response.Response{data=service.BatchResponse}
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/ecofin/import/batches/{id}/commit [post]
func (h *ImportHandler) Commit(c *gin.Context) {
	batch, err := h.importService.Commit(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, batch))
}

// Cancel godoc
// @Summary      Cancel a pending import batch
// @Tags         import
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Batch ID"
// @Success      200  {object}  response.Response{data=service.BatchResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/ecofin/import/batches/{id}/cancel [post]
func (h *ImportHandler) Cancel(c *gin.Context) {
	batch, err := h.importService.Cancel(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, batch))
}
