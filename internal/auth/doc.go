// Package auth authenticates inbound transport connections.
//
// # Authentication Methods
//
// Credentials arrive as a bearer token in the Authorization header:
//
//   - JWT Tokens: HS256 tokens signed with the configured jwt_secret. The
//     "email" claim (or "sub" when no email claim is present) names the user,
//     "roles" carries role tags and the optional "tools_available" claim is an
//     explicit allow-list of tool names.
//
//   - API Keys: static keys from configuration, stored as bcrypt hashes and
//     bound to an email and a role set.
//
// The package only establishes who a caller is. What the caller may list or
// call is decided elsewhere (see internal/capability and internal/authz).
//
// # HTTP
//
// Authenticator.Authenticate turns a request into an Identity or fails with
// ErrMissingCredential or ErrInvalidToken. Middleware attaches the Identity to
// the request context:
//
//	authn := auth.NewBearerAuthenticator(jwtVerifier, apiKeys)
//	mux.Handle("/api/admin/", auth.Middleware(authn)(auth.RequireRole("admin")(adminAPI)))
//
// Handlers retrieve it with FromContext.
package auth
