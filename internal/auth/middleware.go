package auth

import (
	"context"
	"net/http"
	"path"
	"strings"

	"gatehouse/internal/config"
	"gatehouse/internal/user"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// CookieName carries the session token for browser clients.
const CookieName = "session_token"

const currentUserKey = "currentUser"

type UserLoader interface {
	FindUserByID(ctx context.Context, id uint) (*user.User, error)
}

// AuthMiddleware admits requests carrying a valid token whose Redis session
// is live and whose user is active. Browser GETs without a token are sent
// to the login page; everything else gets 401.
func AuthMiddleware(cfg *config.Config, rdb *redis.Client, users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, bearer := tokenFromRequest(c)
		if tokenStr == "" {
			unauthenticated(c, cfg, bearer, "Missing or invalid Authorization header")
			return
		}
		claims, err := ParseJWT(cfg.Server.JWTSecret, tokenStr)
		if err != nil {
			unauthenticated(c, cfg, bearer, "Invalid or expired token")
			return
		}
		ctx := c.Request.Context()
		sessionToken, err := GetSession(ctx, rdb, claims.UserID)
		if err != nil || sessionToken != tokenStr {
			unauthenticated(c, cfg, bearer, "Session expired or invalid")
			return
		}
		u, err := users.FindUserByID(ctx, claims.UserID)
		if err != nil || !u.Active || u.FsUniquifier != claims.Uniquifier {
			unauthenticated(c, cfg, bearer, "Session expired or invalid")
			return
		}
		// Enforce inactivity timeout (refresh expiry)
		_ = SetSession(ctx, rdb, claims.UserID, tokenStr, IdleTimeout)

		c.Set("userId", u.ID)
		c.Set("username", u.Username)
		c.Set(currentUserKey, u)
		c.Next()
	}
}

// RequirePermission must run after AuthMiddleware.
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := CurrentUser(c)
		if u == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Not authenticated"}})
			return
		}
		if !u.HasPermission(permission) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": gin.H{"message": "Permission " + permission + " required"}})
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user, or nil.
func CurrentUser(c *gin.Context) *user.User {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return nil
	}
	u, _ := v.(*user.User)
	return u
}

func tokenFromRequest(c *gin.Context) (string, bool) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return "", true
		}
		return strings.TrimPrefix(authHeader, "Bearer "), true
	}
	if cookie, err := c.Cookie(CookieName); err == nil {
		return cookie, false
	}
	return "", false
}

func unauthenticated(c *gin.Context, cfg *config.Config, bearer bool, msg string) {
	if !bearer && c.Request.Method == http.MethodGet {
		c.Redirect(http.StatusFound, path.Join("/", cfg.Server.Subpath, "login"))
		c.Abort()
		return
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": msg}})
}

// SetSessionCookie stores token for browser clients.
func SetSessionCookie(c *gin.Context, cfg *config.Config, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, token, int(TokenTTL.Seconds()), path.Join("/", cfg.Server.Subpath), "", c.Request.TLS != nil, true)
}

func ClearSessionCookie(c *gin.Context, cfg *config.Config) {
	c.SetCookie(CookieName, "", -1, path.Join("/", cfg.Server.Subpath), "", c.Request.TLS != nil, true)
}
