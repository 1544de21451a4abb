package response

// Response represents a standard API response format
type Response struct {
	Status     string `json:"status"`      // "success" or "error"
	StatusCode int    `json:"status_code"` // HTTP status code
	Data       any    `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`
	Code       string `json:"code,omitempty"` // machine readable error kind
	Details    any    `json:"details,omitempty"`
}

// Success returns a standard success response wrapping the data
func Success(statusCode int, data any) Response {
	return Response{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
	}
}

// Error returns a standard error response wrapping the error message
func Error(statusCode int, err string) Response {
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Error:      err,
	}
}

// Fail is Error with a machine readable code and optional details.
func Fail(statusCode int, code, err string, details any) Response {
	r := Error(statusCode, err)
	r.Code = code
	r.Details = details
	return r
}
