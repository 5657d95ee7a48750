// Package auth gives every visitor an anonymous session carried in a signed
// JWT, so per-session state survives across page loads without accounts.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const sessionIDKey contextKey = "sessionID"

const issuer = "traffic-sign"

// GetSessionID retrieves the session id set by SessionMiddleware.
func GetSessionID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if value, ok := ctx.Value(sessionIDKey).(string); ok && value != "" {
		return value, true
	}
	return "", false
}

// WithSessionID returns ctx carrying sessionID.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// Manager signs and verifies session tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewManager returns a Manager signing HS256 tokens valid for ttl.
func NewManager(secret string, ttl time.Duration) (*Manager, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: session secret is empty")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: session ttl must be positive")
	}
	return &Manager{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL is how long issued tokens stay valid.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue signs a token for sessionID.
func (m *Manager) Issue(sessionID string) (string, error) {
	now := m.now()
	claims := jwt.RegisteredClaims{
		Subject:   sessionID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Parse verifies tokenString and returns its claims.
func (m *Manager) Parse(tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("missing subject")
	}
	return claims, nil
}

// SessionMiddleware resolves the caller's session. API clients may send the
// token as a bearer header, which must then be valid. Browsers carry it in
// cookieName; a missing, invalid or expired cookie starts a new session. Tokens
// past half their lifetime are reissued.
func SessionMiddleware(m *Manager, cookieName string, secureCookie bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if header := c.Request.Header.Get("Authorization"); header != "" {
			tokenString, err := extractBearerToken(header)
			if err != nil {
				unauthorized(c, err.Error())
				return
			}
			claims, err := m.Parse(tokenString)
			if err != nil {
				unauthorized(c, "invalid token")
				return
			}
			attach(c, claims.Subject)
			c.Next()
			return
		}

		var sessionID string
		var claims *jwt.RegisteredClaims
		if cookie, err := c.Cookie(cookieName); err == nil && cookie != "" {
			claims, _ = m.Parse(cookie)
		}
		if claims != nil {
			sessionID = claims.Subject
		} else {
			sessionID = uuid.NewString()
		}

		if claims == nil || claims.ExpiresAt == nil || claims.ExpiresAt.Sub(m.now()) < m.ttl/2 {
			token, err := m.Issue(sessionID)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to start session"})
				return
			}
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(cookieName, token, int(m.ttl.Seconds()), "/", "", secureCookie, true)
		}

		attach(c, sessionID)
		c.Next()
	}
}

func attach(c *gin.Context, sessionID string) {
	c.Request = c.Request.WithContext(WithSessionID(c.Request.Context(), sessionID))
	c.Set(string(sessionIDKey), sessionID)
}

func extractBearerToken(header string) (string, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("token missing")
	}
	return token, nil
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
}
