package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const identityKey = "auth.identity"

// BearerMiddleware guards the REST views with the same tokens the realtime
// endpoint accepts.
func BearerMiddleware(a *Authenticator) gin.HandlerFunc {
	return func(ginCtx *gin.Context) {
		header := ginCtx.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			token = ""
		}

		id, err := a.Authenticate(token)
		if err != nil {
			zap.L().Debug("auth.bearer_rejected", zap.Error(err))
			ginCtx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ginCtx.Set(identityKey, id)
		ginCtx.Next()
	}
}

// FromGin returns the identity stored by BearerMiddleware.
func FromGin(ginCtx *gin.Context) (Identity, bool) {
	v, ok := ginCtx.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}
