package middleware

import (
	"context"
	"strings"

	"github.com/erp/stockcore/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
)

// Profiling labels the request's goroutine with route, method, domain and
// tenant so CPU samples can be filtered per endpoint. Register it after
// Tenant so the tenant is known.
func Profiling(enabled bool, skipPaths ...string) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		route := c.FullPath()
		labels := map[string]string{
			"method": c.Request.Method,
			"route":  route,
			"domain": domainFromRoute(route),
		}
		if tenantID, ok := GetTenantID(c); ok {
			labels["tenant_id"] = tenantID.String()
		}

		telemetry.WithProfilingLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

// domainFromRoute returns the first static segment after the API version,
// e.g. "/api/v1/packing/orders/:id" -> "packing"
func domainFromRoute(route string) string {
	for _, part := range strings.Split(route, "/") {
		if part == "" || part == "api" || isVersionSegment(part) || strings.HasPrefix(part, ":") {
			continue
		}
		return part
	}
	return ""
}

func isVersionSegment(s string) bool {
	if len(s) < 2 || (s[0] != 'v' && s[0] != 'V') {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
