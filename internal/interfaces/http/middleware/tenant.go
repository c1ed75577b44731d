package middleware

import (
	"github.com/erp/stockcore/internal/infrastructure/logger"
	"github.com/erp/stockcore/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Tenant context keys
const (
	TenantIDKey     = "tenant_id"
	UserIDKey       = "user_id"
	TenantHeaderKey = "X-Tenant-ID"
	UserHeaderKey   = "X-User-ID"
)

// TenantConfig holds configuration for the tenant middleware
type TenantConfig struct {
	// TrustHeaders accepts X-Tenant-ID and X-User-ID when no token was
	// verified. Only for deployments behind an authenticating gateway.
	TrustHeaders bool
	SkipPaths    []string
}

// Tenant resolves the tenant, and the acting user when known. A verified
// token always wins over headers.
func Tenant(cfg TenantConfig) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		var tenantRaw, userRaw string
		if claims := GetClaims(c); claims != nil {
			tenantRaw, userRaw = claims.TenantID, claims.UserID
		} else if cfg.TrustHeaders {
			tenantRaw, userRaw = c.GetHeader(TenantHeaderKey), c.GetHeader(UserHeaderKey)
		}

		if tenantRaw == "" {
			abortWithError(c, dto.ErrCodeTenantRequired, "Tenant context is required")
			return
		}
		tenantID, err := uuid.Parse(tenantRaw)
		if err != nil || tenantID == uuid.Nil {
			abortWithError(c, dto.ErrCodeTenantRequired, "Tenant ID must be a UUID")
			return
		}
		c.Set(TenantIDKey, tenantID)

		if userRaw != "" {
			userID, err := uuid.Parse(userRaw)
			if err != nil {
				abortWithError(c, dto.ErrCodeBadRequest, "User ID must be a UUID")
				return
			}
			c.Set(UserIDKey, userID)
		}

		ctx := c.Request.Context()
		ctx, _ = logger.WithTenantID(ctx, logger.FromContext(ctx), tenantID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// GetTenantID returns the tenant resolved by Tenant
func GetTenantID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(TenantIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// GetUserID returns the acting user, or nil when anonymous
func GetUserID(c *gin.Context) *uuid.UUID {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return nil
	}
	id, ok := v.(uuid.UUID)
	if !ok {
		return nil
	}
	return &id
}
