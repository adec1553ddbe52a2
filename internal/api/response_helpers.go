// internal/api/response_helpers.go
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Corphon/AvaChat/internal/errors"
	"github.com/Corphon/AvaChat/internal/utils"
)

// APIResponse is the envelope every JSON endpoint answers with.
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ResponseHelper writes envelopes. Error details are only exposed in debug
// mode and always pass through secret scrubbing.
type ResponseHelper struct {
	debug   bool
	secrets func() []string
}

func NewResponseHelper(debug bool, secrets func() []string) *ResponseHelper {
	return &ResponseHelper{debug: debug, secrets: secrets}
}

func (rh *ResponseHelper) Success(c *gin.Context, data interface{}, message ...string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}
	if len(message) > 0 {
		response.Message = message[0]
	}
	c.JSON(http.StatusOK, response)
}

func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string, details ...string) {
	apiError := &APIError{
		Code:    errorCode,
		Message: rh.scrub(message),
	}
	if rh.debug && len(details) > 0 && details[0] != "" {
		apiError.Details = rh.scrub(details[0])
	}

	c.JSON(statusCode, &APIResponse{
		Success:   false,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	})
}

func (rh *ResponseHelper) BadRequest(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusBadRequest, ErrorBadRequest, message, details...)
}

func (rh *ResponseHelper) Forbidden(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusForbidden, ErrorForbidden, message, details...)
}

func (rh *ResponseHelper) InternalError(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusInternalServerError, ErrorInternalError, message, details...)
}

// AppError answers with the status and code carried by err.
func (rh *ResponseHelper) AppError(c *gin.Context, err error, fallbackCode string) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		status := apperrors.StatusOf(err)
		rh.Error(c, status, fallbackCode, http.StatusText(status), err.Error())
		return
	}

	code := appErr.Code
	if code == "" {
		code = fallbackCode
	}
	details := ""
	if appErr.Err != nil {
		details = appErr.Err.Error()
	}
	rh.Error(c, appErr.HTTPStatus(), code, appErr.Message, details)
}

func (rh *ResponseHelper) scrub(s string) string {
	if rh.secrets == nil {
		return s
	}
	return utils.ScrubSecrets(s, rh.secrets()...)
}

func (rh *ResponseHelper) getRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
