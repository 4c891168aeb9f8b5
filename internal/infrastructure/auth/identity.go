// Package auth resolves the acting user of an HTTP request from an HS256
// bearer token.
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ContextUserKey is the gin context key holding the resolved user id.
const ContextUserKey = "user_id"

var ErrInvalidToken = errors.New("invalid token")

// Claims are the claims of a session token. Subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	OrgID string `json:"org_id,omitempty"`
}

// Identity verifies session tokens. An Identity with an empty secret rejects
// every token.
type Identity struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewIdentity(secret, issuer string) *Identity {
	return &Identity{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// IssueToken signs a token for userID valid for ttl.
func (i *Identity) IssueToken(userID, orgID string, ttl time.Duration) (string, error) {
	if len(i.secret) == 0 {
		return "", errors.New("auth secret is not configured")
	}
	now := i.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		OrgID: orgID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify parses and validates a token string.
func (i *Identity) Verify(token string) (*Claims, error) {
	if len(i.secret) == 0 {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// CurrentUser returns the user id carried by the request's bearer token.
func (i *Identity) CurrentUser(r *http.Request) (string, bool) {
	token, ok := bearerToken(r)
	if !ok {
		return "", false
	}
	claims, err := i.Verify(token)
	if err != nil {
		return "", false
	}
	return claims.Subject, true
}

// RequireUser aborts with 401 unless the request carries a valid token.
func (i *Identity) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := i.CurrentUser(c.Request)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Set(ContextUserKey, userID)
		c.Next()
	}
}

// UserID returns the user id stored by RequireUser, or "".
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserKey)
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
