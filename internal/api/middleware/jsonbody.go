package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// DefaultMaxBodyBytes bounds JSON request bodies of the local API.
const DefaultMaxBodyBytes int64 = 64 << 10

// JSONBody guards request bodies of the local API. A request that carries a
// body must declare application/json (415 otherwise). Bodies over maxBytes
// get 413 when the length is known up front and fail to bind otherwise.
func JSONBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !carriesBody(c.Request) {
			c.Next()
			return
		}

		if c.ContentType() != gin.MIMEJSON {
			c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{"error": "content type must be application/json"})
			return
		}
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// carriesBody reports whether r is a state-changing request with a non-empty
// or chunked body.
func carriesBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0
}
