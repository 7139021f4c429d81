package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestJSONBody(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var reached int
	r := gin.New()
	r.Use(JSONBody(32))
	handler := func(c *gin.Context) {
		reached++
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusOK)
	}
	r.POST("/install", handler)
	r.GET("/status", handler)

	tests := []struct {
		name        string
		method      string
		path        string
		body        string
		contentType string
		want        int
		wantReached bool
	}{
		{"json body", "POST", "/install", `{"path":"/media/usb"}`, "application/json", http.StatusOK, true},
		{"json with charset", "POST", "/install", `{}`, "application/json; charset=utf-8", http.StatusOK, true},
		{"text/plain from a form", "POST", "/install", `{"path":"/tmp/x"}`, "text/plain", http.StatusUnsupportedMediaType, false},
		{"form encoded", "POST", "/install", `path=/tmp/x`, "application/x-www-form-urlencoded", http.StatusUnsupportedMediaType, false},
		{"no content type", "POST", "/install", `{}`, "", http.StatusUnsupportedMediaType, false},
		{"empty body", "POST", "/install", "", "", http.StatusOK, true},
		{"too large", "POST", "/install", `{"path":"` + strings.Repeat("a", 64) + `"}`, "application/json", http.StatusRequestEntityTooLarge, false},
		{"get is not checked", "GET", "/status", "", "text/plain", http.StatusOK, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached = 0
			var body io.Reader = http.NoBody
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req, _ := http.NewRequest(tt.method, tt.path, body)
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			req.Header.Set("Origin", "http://attacker.example")

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.Equal(t, tt.wantReached, reached == 1)
		})
	}
}
