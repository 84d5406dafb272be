package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/service"
)

// RequireActiveToken rejects tokens that were superseded by a resume on
// another device or revoked by a reset. Must run after RequireAttemptToken.
func RequireActiveToken(tokens *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if err := tokens.ValidateActive(c.Request.Context(), claims.AttemptID, claims.ID); err != nil {
			if errors.Is(err, service.ErrTokenRevoked) {
				response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRevoked)
				return
			}
			response.AbortFail(c, http.StatusServiceUnavailable, response.ErrStorageUnavailable)
			return
		}

		c.Next()
	}
}
