package middleware

import (
	"net/http"
	"slices"
	"strings"

	"ecofin/internal/model"
	"ecofin/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Context keys set by RequireRole.
const (
	ContextUserID   = "userID"
	ContextUserRole = "userRole"
)

const (
	accessCookie  = "access_token"
	refreshCookie = "refresh_token"
)

// Auth validates the tokens issued at login.
type Auth struct {
	secret []byte
	secure bool
}

// NewAuth builds the middleware. secure marks cookies Secure and SameSite=None,
// as needed when the frontend lives on another origin.
func NewAuth(secret string, secure bool) *Auth {
	return &Auth{secret: []byte(secret), secure: secure}
}

// Secret returns the HMAC key tokens are signed with.
func (a *Auth) Secret() []byte { return a.secret }

func (a *Auth) setCookies(c *gin.Context, access, refresh string, accessAge, refreshAge int) {
	sameSite := http.SameSiteLaxMode
	if a.secure {
		sameSite = http.SameSiteNoneMode
	}
	c.SetSameSite(sameSite)
	c.SetCookie(accessCookie, access, accessAge, "/", "", a.secure, true)
	c.SetCookie(refreshCookie, refresh, refreshAge, "/", "", a.secure, true)
}

// SetTokenCookies sets access_token (24h) and refresh_token (7 days) as HttpOnly cookies.
func (a *Auth) SetTokenCookies(c *gin.Context, accessToken, refreshToken string) {
	a.setCookies(c, accessToken, refreshToken, 3600*24, 3600*24*7)
}

// ClearTokenCookies removes both token cookies.
func (a *Auth) ClearTokenCookies(c *gin.Context) {
	a.setCookies(c, "", "", -1, -1)
}

// RefreshTokenFrom returns the refresh token cookie, if any.
func RefreshTokenFrom(c *gin.Context) string {
	token, _ := c.Cookie(refreshCookie)
	return token
}

// RequireRole validates the JWT and checks that its role is one of allowedRoles.
// An empty list admits every known role.
func (a *Auth) RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Try cookie first, fallback to Authorization header
		tokenString, cookieErr := c.Cookie(accessCookie)
		if cookieErr != nil || tokenString == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid authorization format. Expected 'Bearer <token>'"))
				return
			}
			tokenString = parts[1]
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return a.secret, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid or expired token"))
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token claims"))
			return
		}

		userRole, _ := claims["role"].(string)
		if !model.ValidRole(userRole) {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Role not found in token"))
			return
		}
		if len(allowedRoles) > 0 && !slices.Contains(allowedRoles, userRole) {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: insufficient permissions"))
			return
		}

		userID, _ := claims["sub"].(string)
		c.Set(ContextUserID, userID)
		c.Set(ContextUserRole, userRole)
		c.Next()
	}
}
