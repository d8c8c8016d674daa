package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"blogfeed/models"
)

const (
	userKey     = "user"
	TokenCookie = "token"
)

var errBadToken = errors.New("invalid token")

type UserLoader interface {
	UserByID(ctx context.Context, id uint) (*models.User, error)
}

// IssueToken signs a token identifying userID.
func IssueToken(secret []byte, userID uint, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(ttl).Unix(),
	})
	return token.SignedString(secret)
}

// ParseToken returns the user id a token was issued for.
func ParseToken(secret []byte, tokenString string) (uint, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return 0, errBadToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, errBadToken
	}
	id, ok := claims["user_id"].(float64)
	if !ok || id <= 0 {
		return 0, errBadToken
	}
	return uint(id), nil
}

// tokenFrom prefers a bearer token and falls back to the token cookie.
// Authorization headers of other schemes are ignored.
func tokenFrom(c *gin.Context) string {
	if tok, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok && tok != "" {
		return tok
	}
	if cookie, err := c.Cookie(TokenCookie); err == nil {
		return cookie
	}
	return ""
}

// Authenticate attaches the requesting user when the request carries a
// valid token, as a bearer Authorization header or in the token cookie.
// Requests without one pass through anonymously.
func Authenticate(secret []byte, users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := tokenFrom(c)
		if tokenString == "" {
			c.Next()
			return
		}
		id, err := ParseToken(secret, tokenString)
		if err != nil {
			c.Next()
			return
		}
		user, err := users.UserByID(c.Request.Context(), id)
		if err == nil {
			c.Set(userKey, user)
		}
		c.Next()
	}
}

// LoginRequired redirects anonymous requests to loginURL, passing the
// requested path back as next.
func LoginRequired(loginURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUser(c) != nil {
			c.Next()
			return
		}
		next := strings.ReplaceAll(url.QueryEscape(c.Request.URL.RequestURI()), "%2F", "/")
		c.Redirect(http.StatusFound, fmt.Sprintf("%s?next=%s", loginURL, next))
		c.Abort()
	}
}

// AdminOnly accepts requests whose X-Admin-Token header matches token. An
// empty token disables the routes behind it.
func AdminOnly(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("X-Admin-Token")
		if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser is the authenticated user of the request, or nil.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}
