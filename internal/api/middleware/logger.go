package middleware

import (
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// sensitiveFragments mark query parameters whose values never reach the log.
// Names are compared lowercased with '_' and '-' removed, so licenseKey,
// license_key and api-key all match.
var sensitiveFragments = []string{"key", "license", "secret", "token", "signature"}

// quietRoutes are polled by the host application and logged at debug level
// while they succeed.
var quietRoutes = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

func isSensitiveParam(name string) bool {
	name = strings.NewReplacer("_", "", "-", "").Replace(strings.ToLower(name))
	for _, fragment := range sensitiveFragments {
		if strings.Contains(name, fragment) {
			return true
		}
	}
	return false
}

// redactQueryString replaces the values of sensitive query parameters with
// [REDACTED].
func redactQueryString(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "[UNPARSEABLE]"
	}

	redacted := false
	for name, values := range params {
		if !isSensitiveParam(name) {
			continue
		}
		for i := range values {
			values[i] = "[REDACTED]"
		}
		redacted = true
	}

	if !redacted {
		return rawQuery
	}
	return params.Encode()
}

// levelFor picks the log level of a finished request.
func levelFor(route string, status int) zerolog.Level {
	switch {
	case status >= 500:
		return zerolog.ErrorLevel
	case status >= 400:
		return zerolog.WarnLevel
	case quietRoutes[route]:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

// RequestLogger logs every API request with zerolog. Matched requests are
// logged under their route pattern; errors attached with c.Error are logged
// with the request.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "http").Logger()

	return func(c *gin.Context) {
		start := time.Now()
		query := redactQueryString(c.Request.URL.RawQuery)

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()

		event := log.WithLevel(levelFor(route, status)).
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Int("body_size", c.Writer.Size())

		if route != "" {
			event = event.Str("route", route)
		} else {
			event = event.Str("path", c.Request.URL.Path)
		}
		if query != "" {
			event = event.Str("query", query)
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			event = event.Strs("errors", errs.Errors())
		}

		event.Msg("request")
	}
}
