package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	SessionCookieName = "admin_session"
	AdminLoginPath    = "/admin/login"
	sessionSubject    = "admin"
)

var ErrInvalidSession = errors.New("invalid admin session")

// AdminAuth guards the admin console with a single shared password. A
// successful login yields a signed, expiring session cookie.
type AdminAuth struct {
	passwordHash []byte
	secret       []byte
	ttl          time.Duration
	secure       bool
	now          func() time.Time
}

func NewAdminAuth(password, secret string, ttl time.Duration, secure bool) (*AdminAuth, error) {
	if password == "" {
		return nil, errors.New("admin password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	return &AdminAuth{
		passwordHash: hash,
		secret:       []byte(secret),
		ttl:          ttl,
		secure:       secure,
		now:          time.Now,
	}, nil
}

func (a *AdminAuth) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) == nil
}

func (a *AdminAuth) IssueToken() (string, error) {
	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sessionSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	})
	return token.SignedString(a.secret)
}

func (a *AdminAuth) Verify(tokenString string) error {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(sessionSubject),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	return nil
}

func (a *AdminAuth) SetSessionCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, token, int(a.ttl.Seconds()), "/", "", a.secure, true)
}

func (a *AdminAuth) ClearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, "", -1, "/", "", a.secure, true)
}

// HasSession reports whether the request carries a valid session cookie.
func (a *AdminAuth) HasSession(c *gin.Context) bool {
	token, err := c.Cookie(SessionCookieName)
	if err != nil || token == "" {
		return false
	}
	return a.Verify(token) == nil
}

// RequireAdmin redirects browsers to the login page and answers 401 to
// everything else when the session is missing or invalid.
func (a *AdminAuth) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.HasSession(c) {
			c.Next()
			return
		}
		if wantsHTML(c.Request) {
			c.Redirect(http.StatusSeeOther, AdminLoginPath)
			c.Abort()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	}
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
