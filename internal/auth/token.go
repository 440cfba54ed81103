// ABOUTME: JWT token verification for authenticating MCP and admin requests
// ABOUTME: Uses HS256 signing with configurable secret; claims carry email, roles, allow-list and hidden tools

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the minimum accepted HS256 secret length in bytes.
const MinSecretLength = 32

// Token errors
var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidToken      = errors.New("invalid token")
	ErrExpiredToken      = errors.New("token expired")
	ErrMissingClaim      = errors.New("missing required claim")
	ErrSecretTooShort    = fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
)

// TokenVerifier turns a bearer token into an Identity.
type TokenVerifier interface {
	Verify(token string) (Identity, error)
}

// Claims is the JWT claim set issued and accepted by the server.
type Claims struct {
	Email          string   `json:"email,omitempty"`
	Roles          []string `json:"roles,omitempty"`
	ToolsAvailable []string `json:"tools_available,omitempty"`
	HiddenTools    []string `json:"hidden_tools,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier implements TokenVerifier using HS256 signed JWTs
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a new JWT verifier with the given secret
func NewJWTVerifier(secret []byte) (*JWTVerifier, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	return &JWTVerifier{secret: secret}, nil
}

// Verify validates the token and extracts the identity from its claims.
func (v *JWTVerifier) Verify(tokenString string) (Identity, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, ErrExpiredToken)
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	email := claims.Email
	if email == "" {
		email = claims.Subject
	}
	if email == "" {
		return Identity{}, fmt.Errorf("%w: %w: email", ErrInvalidToken, ErrMissingClaim)
	}

	id := Identity{Email: email, Roles: claims.Roles, HiddenTools: claims.HiddenTools}
	if claims.ToolsAvailable != nil {
		id.ToolsAvailable = claims.ToolsAvailable
	}
	return id, nil
}

// Generate creates a new JWT token for the identity with expiration
func (v *JWTVerifier) Generate(id Identity, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email:          id.Email,
		Roles:          id.Roles,
		ToolsAvailable: id.ToolsAvailable,
		HiddenTools:    id.HiddenTools,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
