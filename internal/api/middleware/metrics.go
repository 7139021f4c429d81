package middleware

import (
	"github.com/gin-gonic/gin"
)

// RequestRecorder records completed HTTP requests.
type RequestRecorder interface {
	RecordHTTPRequest(method, route string, status int)
}

// Metrics records every request with its route template, so path parameters
// do not create new label values.
func Metrics(recorder RequestRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		recorder.RecordHTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status())
	}
}
