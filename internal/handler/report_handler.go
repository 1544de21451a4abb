package handler

import (
	"net/http"

	"ecofin/internal/middleware"
	"ecofin/internal/service"
	"ecofin/pkg/response"

	"github.com/gin-gonic/gin"
)

type ReportHandler struct {
	reportService service.ReportService
	auth          *middleware.Auth
}

func NewReportHandler(reportService service.ReportService, auth *middleware.Auth) *ReportHandler {
	return &ReportHandler{reportService: reportService, auth: auth}
}

func (h *ReportHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/ecofin/reports")
	group.Use(h.auth.RequireRole(managerRole...))
	{
		group.GET("/summary", h.Summary)
		group.GET("/by-client", h.ByClient)
		group.GET("/workers", h.Workers)
		group.GET("/interval", h.Interval)
		group.GET("/export/excel", h.ExportExcel)
		group.GET("/export/pdf", h.ExportPDF)
	}
}

func reportFilter(c *gin.Context) (service.ReportFilter, bool) {
	year, ok := queryInt(c, "year", 0)
	if !ok {
		return service.ReportFilter{}, false
	}
	month, ok := queryInt(c, "month", 0)
	if !ok {
		return service.ReportFilter{}, false
	}
	return service.ReportFilter{Year: year, Month: month, ClientID: c.Query("client_id")}, true
}

// Summary godoc
// @Summary      Profitability summary
// @Description  Totals for a year, or a month when month is given
// @Tags         reports
// @Security     BearerAuth
// @Produce      json
// @Param        year       query     int     true   "Year"
// @Param        month      query     int     false  "Month"
// @Param        client_id  query     string  false  "Client"
// @Success      200        {object}  response.Response{data=service.ProfitabilitySummary}
// @Failure      400        {object}  response.Response
// @Router       /api/ecofin/reports/summary [get]
func (h *ReportHandler) Summary(c *gin.Context) {
	f, ok := reportFilter(c)
	if !ok {
		return
	}
	sum, err := h.reportService.Summary(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, sum))
}

// ByClient godoc
// @Summary      Profitability per client
// @Tags         reports
// @Security     BearerAuth
// @Produce      json
// @Param        year       query     int     true   "Year"
// @Param        month      query     int     false  "Month"
// @Param        client_id  query     string  false  "Client"
// @Success      200        {object}  response.Response{data=[]service.ClientProfit}
// @Router       /api/ecofin/reports/by-client [get]
func (h *ReportHandler) ByClient(c *gin.Context) {
	f, ok := reportFilter(c)
	if !ok {
		return
	}
	rows, err := h.reportService.ByClient(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rows))
}

// Workers godoc
// @Summary      Profitability per worker
// @Tags         reports
// @Security     BearerAuth
// @Produce      json
// @Param        year       query     int     true   "Year"
// @Param        month      query     int     false  "Month"
// @Param        client_id  query     string  false  "Client"
// @Success      200        {object}  response.Response{data=[]service.WorkerProfit}
// @Router       /api/ecofin/reports/workers [get]
func (h *ReportHandler) Workers(c *gin.Context) {
	f, ok := reportFilter(c)
	if !ok {
		return
	}
	rows, err := h.reportService.Workers(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rows))
}

// Interval godoc
// @Summary      Profitability over a span of months
// @Tags         reports
// @Security     BearerAuth
// @Produce      json
// @Param        from_year   query     int     true   "First year"
// @Param        from_month  query     int     true   "First month"
// @Param        to_year     query     int     true   "Last year"
// @Param        to_month    query     int     true   "Last month"
// @Param        client_id   query     string  false  "Client"
// @Success      200         {object}  response.Response{data=service.IntervalReport}
// @Failure      400         {object}  response.Response
// @Router       /api/ecofin/reports/interval [get]
func (h *ReportHandler) Interval(c *gin.Context) {
	f := service.IntervalFilter{ClientID: c.Query("client_id")}
	for name, dst := range map[string]*int{
		"from_year":  &f.FromYear,
		"from_month": &f.FromMonth,
		"to_year":    &f.ToYear,
		"to_month":   &f.ToMonth,
	} {
		v, ok := queryInt(c, name, 0)
		if !ok {
			return
		}
		*dst = v
	}

	rep, err := h.reportService.Interval(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rep))
}

// ExportExcel godoc
// @Summary      Export the profitability report as Excel
// @Tags         reports
// @Security     BearerAuth
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param        year       query  int     true   "Year"
// @Param        month      query  int     false  "Month"
// @Param        client_id  query  string  false  "Client"
// @Success      200        {file}  file
// @Router       /api/ecofin/reports/export/excel [get]
func (h *ReportHandler) ExportExcel(c *gin.Context) {
	f, ok := reportFilter(c)
	if !ok {
		return
	}
	data, name, err := h.reportService.ExportExcel(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	sendFile(c, data, name, contentTypeXLSX)
}

// ExportPDF godoc
// @Summary      Export the profitability report as PDF
// @Tags         reports
// @Security     BearerAuth
// @Produce      application/pdf
// @Param        year       query  int     true   "Year"
// @Param        month      query  int     false  "Month"
// @Param        client_id  query  string  false  "Client"
// @Success      200        {file}  file
// @Router       /api/ecofin/reports/export/pdf [get]
func (h *ReportHandler) ExportPDF(c *gin.Context) {
	f, ok := reportFilter(c)
	if !ok {
		return
	}
	data, name, err := h.reportService.ExportPDF(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	sendFile(c, data, name, contentTypePDF)
}
