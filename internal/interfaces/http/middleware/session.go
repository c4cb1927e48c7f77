package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/infrastructure/auth"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/infrastructure/logger"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

const (
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// SessionVerifier validates bearer tokens
type SessionVerifier interface {
	Verify(token string) (*auth.Session, error)
}

// SessionAuth reads an optional bearer token. Requests without one pass
// through untouched; an invalid token is 401. A valid token stores the
// session tenant and user under SessionTenantIDKey, UserIDKey and UserRoleKey.
func SessionAuth(verifier SessionVerifier, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		header := c.GetHeader(AuthHeaderKey)
		if header == "" {
			c.Next()
			return
		}
		if !strings.HasPrefix(header, BearerPrefix) {
			abortWithError(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "invalid authorization header format")
			return
		}

		session, err := verifier.Verify(strings.TrimPrefix(header, BearerPrefix))
		if err != nil {
			logger.Ctx(c.Request.Context(), log).Warn("Session token rejected", zap.Error(err))
			code := dto.ErrCodeUnauthorized
			if errors.Is(err, auth.ErrExpiredToken) {
				code = dto.ErrCodeTokenExpired
			}
			abortWithError(c, http.StatusUnauthorized, code, err.Error())
			return
		}

		c.Set(SessionTenantIDKey, session.TenantID)
		c.Set(UserIDKey, session.UserID)
		if session.Role != "" {
			c.Set(UserRoleKey, session.Role)
		}
		c.Next()
	}
}

// SessionTenantLookup returns the tenant id stored by SessionAuth. It is
// meant for TenantResolverConfig.SessionLookup.
func SessionTenantLookup(c *gin.Context) string {
	return c.GetString(SessionTenantIDKey)
}
