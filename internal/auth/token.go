// Package auth identifies connecting users from signed tokens and decides
// what an identity may do in a scene.
package auth

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/hkdf"
)

const (
	// CookieName carries the token for browser clients.
	CookieName = "scenyx_token"

	issuer = "scenyx"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidToken    = errors.New("invalid token")
)

// hkdfInfo binds derived keys to their use. Changing it invalidates every
// issued token.
var hkdfInfo = []byte("scenyx.auth.jwt.hs256.v1")

// Identity is an authenticated user.
type Identity struct {
	UserID      string
	Storyteller bool
}

type claims struct {
	jwt.RegisteredClaims
	Storyteller bool `json:"st,omitempty"`
}

// Authenticator issues and verifies HS256 tokens whose key is derived from a
// shared secret.
type Authenticator struct {
	key []byte
	now func() time.Time
}

// NewAuthenticator derives the signing key from secret.
func NewAuthenticator(secret string) (*Authenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("auth secret is required")
	}
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}
	return &Authenticator{key: key, now: time.Now}, nil
}

// Issue signs a token for userID valid for ttl.
func (a *Authenticator) Issue(userID string, storyteller bool, ttl time.Duration) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("user id is required")
	}
	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Storyteller: storyteller,
	})
	signed, err := token.SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the token signature and expiry and returns its identity.
func (a *Authenticator) Verify(raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, ErrUnauthenticated
	}
	var parsed claims
	_, err := jwt.ParseWithClaims(raw, &parsed, func(*jwt.Token) (any, error) {
		return a.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed.Issuer != issuer || parsed.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: parsed.Subject, Storyteller: parsed.Storyteller}, nil
}

// TokenFromRequest finds a token in the Authorization header, the session
// cookie or the "token" query parameter, in that order.
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return r.URL.Query().Get("token")
}

type identityKey struct{}

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity attached by WithIdentity.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.UserID != ""
}
