package auth

import (
	"testing"
	"time"

	"github.com/erp/stockcore/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-at-least-32-chars"

func newTestVerifier() *TokenVerifier {
	return NewTokenVerifier(config.JWTConfig{Enabled: true, Secret: testSecret, Issuer: "identity"})
}

func validClaims() *Claims {
	now := time.Now()
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "identity",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
		},
		TenantID:    uuid.NewString(),
		UserID:      uuid.NewString(),
		Username:    "packer",
		Permissions: []string{"stock:write"},
		TokenType:   "access",
	}
}

func sign(t *testing.T, method jwt.SigningMethod, claims *Claims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestTokenVerifier_Verify(t *testing.T) {
	v := newTestVerifier()
	claims := validClaims()

	got, err := v.Verify(sign(t, jwt.SigningMethodHS256, claims, testSecret))
	require.NoError(t, err)
	assert.Equal(t, claims.TenantID, got.TenantID)
	assert.Equal(t, "packer", got.Username)

	tenantID, err := got.TenantUUID()
	require.NoError(t, err)
	assert.Equal(t, claims.TenantID, tenantID.String())
	assert.True(t, got.HasPermission("stock:write"))
	assert.False(t, got.HasPermission("stock:admin"))
}

func TestTokenVerifier_Rejects(t *testing.T) {
	v := newTestVerifier()

	tests := []struct {
		name    string
		token   func() string
		wantErr error
	}{
		{
			name:    "garbage",
			token:   func() string { return "not-a-token" },
			wantErr: ErrInvalidToken,
		},
		{
			name: "wrong secret",
			token: func() string {
				return sign(t, jwt.SigningMethodHS256, validClaims(), "another-secret-key-of-32-characters")
			},
			wantErr: ErrInvalidToken,
		},
		{
			name:    "wrong algorithm",
			token:   func() string { return sign(t, jwt.SigningMethodHS512, validClaims(), testSecret) },
			wantErr: ErrInvalidToken,
		},
		{
			name: "expired",
			token: func() string {
				c := validClaims()
				c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
				return sign(t, jwt.SigningMethodHS256, c, testSecret)
			},
			wantErr: ErrExpiredToken,
		},
		{
			name: "no expiry",
			token: func() string {
				c := validClaims()
				c.ExpiresAt = nil
				return sign(t, jwt.SigningMethodHS256, c, testSecret)
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "not yet valid",
			token: func() string {
				c := validClaims()
				c.NotBefore = jwt.NewNumericDate(time.Now().Add(time.Hour))
				return sign(t, jwt.SigningMethodHS256, c, testSecret)
			},
			wantErr: ErrTokenNotYetValid,
		},
		{
			name: "wrong issuer",
			token: func() string {
				c := validClaims()
				c.Issuer = "elsewhere"
				return sign(t, jwt.SigningMethodHS256, c, testSecret)
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "refresh token",
			token: func() string {
				c := validClaims()
				c.TokenType = "refresh"
				return sign(t, jwt.SigningMethodHS256, c, testSecret)
			},
			wantErr: ErrInvalidTokenType,
		},
		{
			name: "missing tenant",
			token: func() string {
				c := validClaims()
				c.TenantID = ""
				return sign(t, jwt.SigningMethodHS256, c, testSecret)
			},
			wantErr: ErrMissingTenantID,
		},
		{
			name: "malformed user",
			token: func() string {
				c := validClaims()
				c.UserID = "42"
				return sign(t, jwt.SigningMethodHS256, c, testSecret)
			},
			wantErr: ErrMissingUserID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTokenVerifier_NoIssuerConfigured(t *testing.T) {
	v := NewTokenVerifier(config.JWTConfig{Secret: testSecret})
	c := validClaims()
	c.Issuer = "anyone"

	_, err := v.Verify(sign(t, jwt.SigningMethodHS256, c, testSecret))
	assert.NoError(t, err)
}
