package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/ai-roleplay/internal/apilog"
	"github.com/suPer8Hu/ai-roleplay/internal/apperr"
	"github.com/suPer8Hu/ai-roleplay/internal/common"
)

const UserIDKey = "user_id"

// TokenVerifier is satisfied by *users.Service.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (uint64, error)
}

// AuthRequired accepts "Authorization: Bearer <jwt>" and stores the user id on the context.
func AuthRequired(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		scheme, token, found := strings.Cut(strings.TrimSpace(h), " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			common.FailErr(c, apperr.Unauthenticated("missing or invalid authorization header"))
			c.Abort()
			return
		}

		uid, err := v.Verify(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			common.FailErr(c, err)
			c.Abort()
			return
		}

		c.Set(UserIDKey, uid)
		ctx := apilog.WithRequest(c.Request.Context(), c.GetString(RequestIDKey), uid)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// UserID returns the id stored by AuthRequired.
func UserID(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}
