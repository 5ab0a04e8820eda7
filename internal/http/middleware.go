package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"crypto-wallet/internal/domain"
)

const principalKey = "principal"

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// rateLimitMiddleware limits each client IP to maxPerHour requests.
func rateLimitMiddleware(maxPerHour int64) gin.HandlerFunc {
	rate := limiter.Rate{Period: time.Hour, Limit: maxPerHour}
	store := memory.NewStore()
	return mgin.NewMiddleware(limiter.New(store, rate))
}

// sessionGate authenticates the request before the downstream handler runs:
// extract the bearer token (header or cookie), verify it, load the user, and
// reject tokens issued before the last password change.
func (h *Handler) sessionGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, failBody("You are not logged in! Please log in to get access."))
			return
		}

		user, err := h.auth.AuthenticateToken(c.Request.Context(), tokenString)
		if err != nil {
			h.abortError(c, err)
			return
		}

		c.Set(principalKey, user)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := c.Cookie(sessionCookieName); err == nil {
		return cookie
	}
	return ""
}

func principal(c *gin.Context) *domain.User {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	user, _ := v.(*domain.User)
	return user
}
