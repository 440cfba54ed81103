// ABOUTME: HTTP authentication for MCP transports and the admin API
// ABOUTME: Extracts bearer credentials, verifies them, and attaches the Identity to the request context

package auth

import (
	"errors"
	"net/http"
	"strings"
)

// Authenticator turns inbound request credentials into a verified Identity.
type Authenticator interface {
	Authenticate(r *http.Request) (Identity, error)
}

// BearerAuthenticator accepts JWTs and static API keys in the Authorization
// header. Tokens with the three-part JWT shape go to the JWT verifier; anything
// else is tried as an API key.
type BearerAuthenticator struct {
	jwt     TokenVerifier
	apiKeys TokenVerifier
}

// NewBearerAuthenticator creates an authenticator. Either verifier may be nil.
func NewBearerAuthenticator(jwtVerifier, apiKeys TokenVerifier) *BearerAuthenticator {
	return &BearerAuthenticator{jwt: jwtVerifier, apiKeys: apiKeys}
}

// Authenticate verifies the request's bearer credential.
func (a *BearerAuthenticator) Authenticate(r *http.Request) (Identity, error) {
	token, err := extractBearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return Identity{}, err
	}

	if strings.Count(token, ".") == 2 && a.jwt != nil {
		return a.jwt.Verify(token)
	}
	if a.apiKeys != nil {
		id, err := a.apiKeys.Verify(token)
		if err != nil {
			return Identity{}, errors.Join(ErrInvalidToken, err)
		}
		return id, nil
	}
	return Identity{}, ErrInvalidToken
}

// extractBearerToken extracts a bearer token from the Authorization header.
func extractBearerToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrMissingCredential
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", ErrInvalidToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", ErrMissingCredential
	}
	return token, nil
}

// WriteAuthError writes the 401 body for an authentication failure.
func WriteAuthError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	if errors.Is(err, ErrMissingCredential) {
		_, _ = w.Write([]byte(`{"error":"missing credential"}`))
		return
	}
	_, _ = w.Write([]byte(`{"error":"invalid credential"}`))
}

// Middleware authenticates every request and rejects failures with 401
// before the wrapped handler runs.
func Middleware(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := authn.Authenticate(r)
			if err != nil {
				WriteAuthError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireRole creates an HTTP middleware that requires role.
// Must be used after Middleware.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := FromContext(r.Context())
			if !ok {
				WriteAuthError(w, ErrMissingCredential)
				return
			}
			if !id.HasRole(role) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"` + role + ` role required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
