package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"devnewz/internal/repository"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	CheckUserKey   = "user"
	AuthCookieName = "auth_token"
	SessionUserKey = "user_id"
	bearerPrefix   = "Bearer "
)

// Identity is the caller as far as this service is concerned.
type Identity struct {
	UserID   uint
	Username string
}

// Claims is the payload of the auth token issued by the account service.
type Claims struct {
	UserID   uint   `json:"userId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// SignToken issues an HS256 token. Used by development tooling and tests.
func SignToken(secret []byte, userID uint, username string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func parseToken(secret []byte, raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == 0 {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

func tokenFrom(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix))
	}
	if cookie, err := c.Cookie(AuthCookieName); err == nil {
		return cookie
	}
	return ""
}

// LoadUser resolves the caller from the auth token, falling back to the
// session cookie. Anonymous requests pass through untouched.
func LoadUser(secret []byte, users repository.UserRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := tokenFrom(c); raw != "" && len(secret) > 0 {
			if claims, err := parseToken(secret, raw); err == nil {
				c.Set(CheckUserKey, Identity{UserID: claims.UserID, Username: claims.Username})
				c.Next()
				return
			}
		}

		// sessions middleware is optional
		if _, ok := c.Get(sessions.DefaultKey); ok && users != nil {
			session := sessions.Default(c)
			if userID, ok := session.Get(SessionUserKey).(uint); ok && userID != 0 {
				if user, err := users.Get(c.Request.Context(), userID); err == nil {
					c.Set(CheckUserKey, Identity{UserID: user.ID, Username: user.Username})
				}
			}
		}
		c.Next()
	}
}

// AuthRequired rejects requests without an identity.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentIdentity(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Unauthenticated",
				"data":    nil,
			})
			return
		}
		c.Next()
	}
}

func CurrentIdentity(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(CheckUserKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok && id.UserID != 0
}

// ViewerID is 0 for anonymous callers.
func ViewerID(c *gin.Context) uint {
	id, _ := CurrentIdentity(c)
	return id.UserID
}
