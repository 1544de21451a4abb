package handler

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"ecofin/internal/apperror"
	"ecofin/internal/middleware"
	"ecofin/internal/model"
	"ecofin/internal/service"
	"ecofin/pkg/response"

	"github.com/gin-gonic/gin"
)

// Role sets used when registering routes.
var (
	anyRole     = []string{model.RoleAdmin, model.RoleManagement, model.RoleStaff}
	managerRole = []string{model.RoleAdmin, model.RoleManagement}
	adminRole   = []string{model.RoleAdmin}
)

// respondError writes err in the standard envelope with the status its kind maps to.
// Unclassified errors are logged by the request logger and reported without detail.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	status := apperror.HTTPStatus(err)
	kind := apperror.KindOf(err)
	msg := err.Error()
	if kind == apperror.KindInternal {
		msg = "Internal server error"
	}

	var details any
	var upstream *apperror.UpstreamError
	if errors.As(err, &upstream) {
		details = upstream
	}
	c.JSON(status, response.Fail(status, string(kind), msg, details))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, response.Fail(http.StatusBadRequest, string(apperror.KindValidation), msg, nil))
}

// bindJSON decodes the body into req and answers 400 when it does not validate.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return false
	}
	return true
}

// queryInt reads an optional integer query parameter. It answers 400 and returns
// false when the value is present but not a number.
func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, "Invalid "+name+" parameter")
		return 0, false
	}
	return v, true
}

func paramInt(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		badRequest(c, "Invalid "+name+" parameter")
		return 0, false
	}
	return v, true
}

// actorFrom builds the service actor from the values RequireRole put in the context.
func actorFrom(c *gin.Context) service.Actor {
	return service.NewActor(c.GetString(middleware.ContextUserID), c.GetString(middleware.ContextUserRole))
}

// readUpload reads the multipart file field "file" within maxBytes. It answers
// 400 itself and returns false when the upload is missing or too large.
func readUpload(c *gin.Context, maxBytes int64, missing string) (*multipart.FileHeader, []byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			badRequest(c, "File exceeds the upload limit of "+strconv.FormatInt(maxBytes, 10)+" bytes")
			return nil, nil, false
		}
		badRequest(c, missing)
		return nil, nil, false
	}
	f, err := fileHeader.Open()
	if err != nil {
		badRequest(c, "Cannot read uploaded file")
		return nil, nil, false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		badRequest(c, "Cannot read uploaded file")
		return nil, nil, false
	}
	return fileHeader, data, true
}

// sendFile writes a generated document as an attachment.
func sendFile(c *gin.Context, data []byte, filename, contentType string) {
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, data)
}

const (
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypePDF  = "application/pdf"
)
