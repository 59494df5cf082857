// Package response writes the JSON envelope shared by every HTTP endpoint.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const requestIDHeader = "X-Request-ID"

type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Meta      *Meta       `json:"meta,omitempty"`
	Error     *ErrorInfo  `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// Meta carries cursor pagination state for list responses.
type Meta struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// write stamps the request id set by the logging middleware, if any.
func write(c *gin.Context, status int, body Response) {
	body.RequestID = c.Writer.Header().Get(requestIDHeader)
	c.JSON(status, body)
}

func Success(c *gin.Context, data interface{}) {
	write(c, http.StatusOK, Response{Success: true, Data: data})
}

// Page sends one page of a cursor-paginated list.
func Page(c *gin.Context, data interface{}, nextCursor string, hasMore bool) {
	write(c, http.StatusOK, Response{
		Success: true,
		Data:    data,
		Meta:    &Meta{NextCursor: nextCursor, HasMore: hasMore},
	})
}

func Error(c *gin.Context, status int, code, message string) {
	write(c, status, Response{Error: &ErrorInfo{Code: code, Message: message}})
}

// Abort sends an error and stops the handler chain.
func Abort(c *gin.Context, status int, code, message string) {
	Error(c, status, code, message)
	c.Abort()
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, "BAD_REQUEST", message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, "FORBIDDEN", message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, "NOT_FOUND", message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}
