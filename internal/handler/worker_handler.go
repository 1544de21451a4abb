package handler

import (
	"net/http"
	"strings"

	"ecofin/internal/middleware"
	"ecofin/internal/service"
	"ecofin/pkg/pagination"
	"ecofin/pkg/response"

	"github.com/gin-gonic/gin"
)

type WorkerHandler struct {
	workerService   service.WorkerService
	documentService service.WorkerDocumentService
	alertService    service.AlertService
	auth            *middleware.Auth
	maxUploadBytes  int64
	alertDaysAhead  int
}

func NewWorkerHandler(workerService service.WorkerService, documentService service.WorkerDocumentService, alertService service.AlertService, auth *middleware.Auth, maxUploadBytes int64, alertDaysAhead int) *WorkerHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &WorkerHandler{
		workerService:   workerService,
		documentService: documentService,
		alertService:    alertService,
		auth:            auth,
		maxUploadBytes:  maxUploadBytes,
		alertDaysAhead:  alertDaysAhead,
	}
}

func (h *WorkerHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/workers")
	{
		group.GET("", h.auth.RequireRole(anyRole...), h.ListWorkers)
		group.GET("/statistics", h.auth.RequireRole(anyRole...), h.Statistics)
		group.GET("/import/template", h.auth.RequireRole(managerRole...), h.ImportTemplate)
		group.POST("/import", h.auth.RequireRole(managerRole...), h.ImportWorkers)
		group.POST("/appointment-alerts", h.auth.RequireRole(managerRole...), h.SendAppointmentAlerts)
		group.GET("/:id", h.auth.RequireRole(anyRole...), h.GetWorker)
		group.POST("", h.auth.RequireRole(managerRole...), h.CreateWorker)
		group.PUT("/:id", h.auth.RequireRole(managerRole...), h.UpdateWorker)
		group.DELETE("/:id", h.auth.RequireRole(managerRole...), h.DeleteWorker)
		group.GET("/:id/documents", h.auth.RequireRole(anyRole...), h.ListDocuments)
		group.POST("/:id/documents", h.auth.RequireRole(managerRole...), h.UploadDocument)
	}
	docs := router.Group("/worker-documents")
	{
		docs.GET("/:id", h.auth.RequireRole(anyRole...), h.DownloadDocument)
		docs.DELETE("/:id", h.auth.RequireRole(managerRole...), h.DeleteDocument)
	}
}

// ListWorkers godoc
// @Summary      List workers
// @Tags         workers
// @Security     BearerAuth
// @Produce      json
// @Param        client_id  query     string  false  "Placement client"
// @Param        status     query     string  false  "Worker status"
// @Param        search     query     string  false  "Name, passport or contract contains"
// @Param        page       query     int     false  "Page number (default 1)"
// @Param        limit      query     int     false  "Items per page (default 20)"
// @Success      200        {object}  response.Response{data=pagination.Page}
// @Router       /api/workers [get]
func (h *WorkerHandler) ListWorkers(c *gin.Context) {
	p := pagination.Parse(c)
	filter := service.WorkerListFilter{
		Search:   c.Query("search"),
		Status:   c.Query("status"),
		ClientID: c.Query("client_id"),
		Page:     p.Page,
		Limit:    p.Limit,
	}

	workers, total, err := h.workerService.ListWorkers(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Result(workers, total)))
}

// GetWorker godoc
// @Summary      Get worker
// @Tags         workers
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Worker ID"
// @Success      200  {object}  response.Response{data=service.WorkerResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/workers/{id} [get]
func (h *WorkerHandler) GetWorker(c *gin.Context) {
	worker, err := h.workerService.GetWorker(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, worker))
}

// CreateWorker godoc
// @Summary      Create worker
// @Tags         workers
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.WorkerRequest  true  "Worker"
// @Success      201      {object}  response.Response{data=service.WorkerResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/workers [post]
func (h *WorkerHandler) CreateWorker(c *gin.Context) {
	var req service.WorkerRequest
	if !bindJSON(c, &req) {
		return
	}

	worker, err := h.workerService.CreateWorker(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, worker))
}

// UpdateWorker godoc
// @Summary      Update worker
// @Tags         workers
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                 true  "Worker ID"
// @Param        payload  body      service.WorkerRequest  true  "Worker"
// @Success      200      {object}  response.Response{data=service.WorkerResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/workers/{id} [put]
func (h *WorkerHandler) UpdateWorker(c *gin.Context) {
	var req service.WorkerRequest
	if !bindJSON(c, &req) {
		return
	}

	worker, err := h.workerService.UpdateWorker(c.Request.Context(), actorFrom(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, worker))
}

// DeleteWorker godoc
// @Summary      Delete worker
// @Tags         workers
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Worker ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/workers/{id} [delete]
func (h *WorkerHandler) DeleteWorker(c *gin.Context) {
	if err := h.workerService.DeleteWorker(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Worker deleted successfully"))
}

// Statistics godoc
// @Summary      Worker statistics
// @Description  Counts by status, by citizenship (top 10) and by client (top 10)
// @Tags         workers
// @Security     BearerAuth
// @Produce      json
// @Param        status       query     string  false  "Worker status"
// @Param        citizenship  query     string  false  "Citizenship, case-insensitive"
// @Success      200          {object}  response.Response{data=service.WorkerStatistics}
// @Router       /api/workers/statistics [get]
func (h *WorkerHandler) Statistics(c *gin.Context) {
	stats, err := h.workerService.Statistics(c.Request.Context(), service.WorkerStatsFilter{
		Status:      c.Query("status"),
		Citizenship: c.Query("citizenship"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}

// ImportTemplate godoc
// @Summary      Download the worker import template
// @Tags         workers
// @Security     BearerAuth
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Success      200  {file}  binary
// @Router       /api/workers/import/template [get]
func (h *WorkerHandler) ImportTemplate(c *gin.Context) {
	data, err := h.workerService.ImportTemplate()
	if err != nil {
		respondError(c, err)
		return
	}
	sendFile(c, data, service.WorkerTemplateFilename, contentTypeXLSX)
}

// ImportWorkers godoc
// @Summary      Bulk import workers
// @Description  Creates one worker per row of an .xlsx or .csv register. Failed rows are reported and skipped.
// @Tags         workers
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        file  formData  file  true  "Worker register"
// @Success      200   {object}  response.Response{data=service.WorkerImportResult}
// @Failure      400   {object}  response.Response
// @Router       /api/workers/import [post]
func (h *WorkerHandler) ImportWorkers(c *gin.Context) {
	fileHeader, data, ok := readUpload(c, h.maxUploadBytes, "A worker register file is required")
	if !ok {
		return
	}
	res, err := h.workerService.ImportWorkers(c.Request.Context(), actorFrom(c), fileHeader.Filename, data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

type appointmentAlertsRequest struct {
	DaysAhead *int   `json:"days_ahead" binding:"omitempty,min=0,max=60"`
	DryRun    bool   `json:"dry_run"`
	TestEmail string `json:"test_email" binding:"omitempty,email"`
}

// SendAppointmentAlerts godoc
// @Summary      Email upcoming appointment alerts
// @Description  Notifies experts about work permit, visa and residence permit appointments days_ahead days from today
// @Tags         workers
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      appointmentAlertsRequest  false  "Options"
// @Success      200      {object}  response.Response{data=service.AlertResult}
// @Failure      400      {object}  response.Response
// @Router       /api/workers/appointment-alerts [post]
func (h *WorkerHandler) SendAppointmentAlerts(c *gin.Context) {
	var req appointmentAlertsRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	opts := service.AlertOptions{DaysAhead: h.alertDaysAhead, DryRun: req.DryRun, TestEmail: req.TestEmail}
	if req.DaysAhead != nil {
		opts.DaysAhead = *req.DaysAhead
	}

	res, err := h.alertService.SendAppointmentAlerts(c.Request.Context(), actorFrom(c), opts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// ListDocuments godoc
// @Summary      List worker documents
// @Tags         workers
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Worker ID"
// @Success      200  {object}  response.Response{data=[]service.WorkerDocumentResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/workers/{id}/documents [get]
func (h *WorkerHandler) ListDocuments(c *gin.Context) {
	docs, err := h.documentService.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, docs))
}

// UploadDocument godoc
// @Summary      Upload a worker document
// @Tags         workers
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        id             path      string  true   "Worker ID"
// @Param        file           formData  file    true   "Scanned document"
// @Param        document_type  formData  string  false  "passport, visa, work_permit, ... (default other)"
// @Param        description    formData  string  false  "Description"
// @Success      201            {object}  response.Response{data=service.WorkerDocumentResponse}
// @Failure      400            {object}  response.Response
// @Failure      404            {object}  response.Response
// @Router       /api/workers/{id}/documents [post]
func (h *WorkerHandler) UploadDocument(c *gin.Context) {
	fileHeader, data, ok := readUpload(c, h.maxUploadBytes, "A document file is required")
	if !ok {
		return
	}
	doc, err := h.documentService.Upload(c.Request.Context(), actorFrom(c), service.DocumentUpload{
		WorkerID:     c.Param("id"),
		DocumentType: c.PostForm("document_type"),
		FileName:     fileHeader.Filename,
		ContentType:  fileHeader.Header.Get("Content-Type"),
		Description:  c.PostForm("description"),
		Data:         data,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, doc))
}

// DownloadDocument godoc
// @Summary      Download a worker document
// @Tags         workers
// @Security     BearerAuth
// @Produce      octet-stream
// @Param        id   path  string  true  "Document ID"
// @Success      200  {file}  binary
// @Failure      404  {object}  response.Response
// @Router       /api/worker-documents/{id} [get]
func (h *WorkerHandler) DownloadDocument(c *gin.Context) {
	file, err := h.documentService.Download(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	sendFile(c, file.Data, strings.ReplaceAll(file.FileName, `"`, "'"), file.ContentType)
}

// DeleteDocument godoc
// @Summary      Delete a worker document
// @Tags         workers
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Document ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/worker-documents/{id} [delete]
func (h *WorkerHandler) DeleteDocument(c *gin.Context) {
	if err := h.documentService.Delete(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Document deleted successfully"))
}
