package auth

import (
	"net/http"
	"strings"

	"authgate/internal/httpjson"
)

// AuthenticationGate rejects requests without a live access token and
// attaches the token's identity to those it lets through.
type AuthenticationGate struct {
	tokens      *TokenService
	revocations *RevocationRegistry
}

func NewAuthenticationGate(tokens *TokenService, revocations *RevocationRegistry) *AuthenticationGate {
	return &AuthenticationGate{tokens: tokens, revocations: revocations}
}

// Authenticate returns the request carrying the caller's Identity and true,
// or writes a 401/403 response and returns false. On false the caller must
// stop handling the request.
func (g *AuthenticationGate) Authenticate(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	token := bearerToken(r)
	if token == "" {
		httpjson.Message(w, StatusCode(ErrUnauthenticated), "Unauthorized")
		return r, false
	}

	if g.revocations.IsRevoked(token) {
		httpjson.Message(w, StatusCode(ErrRevokedToken), "Forbidden")
		return r, false
	}

	claims, err := g.tokens.Verify(token)
	if err != nil || claims.Type != TokenTypeAccess {
		httpjson.Message(w, StatusCode(ErrInvalidToken), "Forbidden")
		return r, false
	}

	return r.WithContext(WithIdentity(r.Context(), identityFromClaims(claims))), true
}

func (g *AuthenticationGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r, ok := g.Authenticate(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AuthorizationGate lets through identities whose role is in a fixed set.
// It must run after AuthenticationGate.
type AuthorizationGate struct {
	roles map[Role]struct{}
}

func NewAuthorizationGate(roles ...Role) *AuthorizationGate {
	allowed := make(map[Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return &AuthorizationGate{roles: allowed}
}

func (g *AuthorizationGate) Authorize(w http.ResponseWriter, r *http.Request) bool {
	identity, ok := IdentityFromContext(r.Context())
	if ok && identity.Role != "" {
		if _, allowed := g.roles[identity.Role]; allowed {
			return true
		}
	}

	httpjson.Text(w, StatusCode(ErrUnauthorized), "Forbidden")
	return false
}

func (g *AuthorizationGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Authorize(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken returns the second space separated field of the
// Authorization header. The scheme itself is not checked.
func bearerToken(r *http.Request) string {
	parts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
