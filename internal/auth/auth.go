package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"classbridge/pkg/interfaces"
	"classbridge/pkg/types"
)

var (
	// ErrInvalidToken is returned when a token fails verification.
	ErrInvalidToken = fmt.Errorf("%w: invalid token", interfaces.ErrUnauthorized)
	// ErrExpiredToken is returned when a token has expired.
	ErrExpiredToken = fmt.Errorf("%w: token has expired", interfaces.ErrUnauthorized)
	// ErrInvalidIdentity is returned for malformed user ids or roles.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrNoSecret is returned by IssueToken when no signing secret is configured.
	ErrNoSecret = errors.New("no signing secret configured")
)

// Config holds handshake authentication settings.
type Config struct {
	// Secret enables HS256 token verification. Empty means development mode,
	// where user_id and role query parameters are trusted as given.
	Secret string
	Issuer string
}

// Claims are the token claims the realtime layer reads.
type Claims struct {
	UserID types.ID `json:"user_id"`
	Role   string   `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator resolves a handshake request into an identity
type Authenticator struct {
	config Config
	now    func() time.Time
}

var _ interfaces.Authenticator = (*Authenticator)(nil)

// NewAuthenticator creates an authenticator
func NewAuthenticator(config Config) *Authenticator {
	return &Authenticator{config: config, now: time.Now}
}

// VerifiesTokens reports whether a signing secret is configured.
func (a *Authenticator) VerifiesTokens() bool {
	return a.config.Secret != ""
}

// Authenticate reads the identity from a bearer token or, without a secret,
// from query parameters. A request with no credentials is anonymous.
// FUNCTIONAL DISCOVERY: a role without a user id is dropped so anonymous
// sessions can never subscribe to role rooms
func (a *Authenticator) Authenticate(r *http.Request) (types.Identity, error) {
	var identity types.Identity

	if a.VerifiesTokens() {
		token := tokenFromRequest(r)
		if token == "" {
			return types.Identity{}, nil
		}
		claims, err := a.ValidateToken(token)
		if err != nil {
			return types.Identity{}, err
		}
		identity = types.Identity{UserID: claims.UserID, Role: claims.Role}
	} else {
		query := r.URL.Query()
		identity = types.Identity{
			UserID: types.ID(strings.TrimSpace(query.Get("user_id"))),
			Role:   strings.TrimSpace(query.Get("role")),
		}
	}

	return normalize(identity)
}

func normalize(identity types.Identity) (types.Identity, error) {
	if identity.IsAnonymous() {
		return types.Identity{}, nil
	}
	if !types.IsValidUserID(identity.UserID.String()) {
		return types.Identity{}, fmt.Errorf("%w: %w", ErrInvalidIdentity, types.ErrInvalidUserID)
	}
	if identity.Role != "" && !types.IsValidRole(identity.Role) {
		return types.Identity{}, fmt.Errorf("%w: role %q", ErrInvalidIdentity, identity.Role)
	}
	return identity, nil
}

func tokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// ValidateToken verifies an HS256 token and returns its claims.
func (a *Authenticator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(a.config.Secret), nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueToken signs a token for identity valid for ttl. Used by tooling and tests.
func (a *Authenticator) IssueToken(identity types.Identity, ttl time.Duration) (string, error) {
	if !a.VerifiesTokens() {
		return "", ErrNoSecret
	}

	now := a.now()
	claims := Claims{
		UserID: identity.UserID,
		Role:   identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.config.Issuer,
			Subject:   identity.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.config.Secret))
}
