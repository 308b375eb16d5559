// Package auth validates the bearer tokens presented on WebSocket upgrade
// requests. Tokens are HS256 JWTs minted by the account service; this side
// only verifies them.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/webitel/im-messaging-service/internal/domain/model"
)

var (
	// ErrNoToken means the request carried no credentials at all.
	ErrNoToken = errors.New("auth: no token presented")
	// ErrInvalidToken covers every way a presented token can be unusable.
	ErrInvalidToken = errors.New("auth: token rejected")
)

// Claims is the accepted token payload. Subject holds the user id.
type Claims struct {
	Username  string `json:"username"`
	TokenType string `json:"type,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	leeway time.Duration
}

func NewVerifier(secret string, leeway time.Duration) *Verifier {
	return &Verifier{secret: []byte(secret), leeway: leeway}
}

// Inspect authenticates an upgrade request. Browsers cannot set headers on a
// WebSocket handshake, so a "token" query parameter is accepted as a fallback
// to the Authorization header.
func (v *Verifier) Inspect(r *http.Request) (model.Identity, error) {
	raw := bearerToken(r)
	if raw == "" {
		return model.Identity{}, ErrNoToken
	}
	return v.Verify(raw)
}

// Verify parses and validates a raw token and resolves the caller identity.
func (v *Verifier) Verify(raw string) (model.Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return model.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return model.Identity{}, ErrInvalidToken
	}
	if claims.TokenType != "" && claims.TokenType != "access" {
		return model.Identity{}, fmt.Errorf("%w: not an access token", ErrInvalidToken)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return model.Identity{}, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}
	if claims.Username == "" {
		return model.Identity{}, fmt.Errorf("%w: username claim missing", ErrInvalidToken)
	}

	return model.Identity{UserID: userID, Username: claims.Username}, nil
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
