package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"

	"authgate/internal/httpjson"
	"authgate/internal/observability"
)

const (
	registerPath = "/auth/register"
	loginPath    = "/auth/login"
	logoutPath   = "/auth/logout"
)

// Handler serves the /auth routes. It holds no state of its own.
type Handler struct {
	users       *CredentialStore
	revocations *RevocationRegistry
	tokens      *TokenService
	logger      *observability.Logger
}

func NewHandler(users *CredentialStore, revocations *RevocationRegistry, tokens *TokenService, logger *observability.Logger) *Handler {
	return &Handler{
		users:       users,
		revocations: revocations,
		tokens:      tokens,
		logger:      logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		switch r.URL.Path {
		case registerPath:
			h.Register(w, r)
			return
		case loginPath:
			h.Login(w, r)
			return
		case logoutPath:
			if h.Logout(w, r) {
				return
			}
		}
	}

	NotFound(w, r)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	user, err := h.users.Register(r.Context(), body.Email, body.Password)
	if err != nil {
		var validationErr *ValidationError
		var conflictErr *ConflictError
		if errors.As(err, &validationErr) || errors.As(err, &conflictErr) {
			httpjson.Message(w, http.StatusBadRequest, err.Error())
			return
		}

		h.internalError(w, r, "register_failed", err)
		return
	}

	httpjson.Write(w, http.StatusCreated, user.Public())
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	user, _ := h.users.FindByEmail(r.Context(), body.Email)
	if !h.users.VerifyPassword(user, body.Password) {
		httpjson.Message(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	accessToken, err := h.tokens.IssueAccessToken(user)
	if err != nil {
		h.internalError(w, r, "issue_access_token_failed", err)
		return
	}
	refreshToken, err := h.tokens.IssueRefreshToken(user)
	if err != nil {
		h.internalError(w, r, "issue_refresh_token_failed", err)
		return
	}
	if err := h.users.SetRefreshToken(r.Context(), user.Email, refreshToken); err != nil {
		h.internalError(w, r, "store_refresh_token_failed", err)
		return
	}

	httpjson.Write(w, http.StatusOK, Tokens{AccessToken: accessToken, RefreshToken: refreshToken})
}

// Logout revokes the presented bearer token and reports whether it handled
// the request. Without a token it returns false and writes nothing, leaving
// the caller to answer with the generic not found response.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) bool {
	token := bearerToken(r)
	if token == "" {
		return false
	}

	h.revocations.Revoke(token)

	if identity, ok := h.logoutIdentity(r, token); ok && identity.ID != 0 {
		if err := h.revokeUser(r, identity); err != nil {
			observability.FromContext(r.Context(), h.logger).Warn("logout_user_revoke_failed", map[string]any{
				"user_id": identity.ID,
				"error":   err.Error(),
			})
		}
	}

	httpjson.Message(w, http.StatusOK, "Logged out")
	return true
}

// logoutIdentity prefers the identity attached by an earlier
// AuthenticationGate and otherwise decodes the presented token.
func (h *Handler) logoutIdentity(r *http.Request, token string) (Identity, bool) {
	if identity, ok := IdentityFromContext(r.Context()); ok {
		return identity, true
	}

	claims, err := h.tokens.Verify(token)
	if err != nil || claims.Type != TokenTypeAccess {
		return Identity{}, false
	}
	return identityFromClaims(claims), true
}

func (h *Handler) revokeUser(r *http.Request, identity Identity) error {
	if err := h.revocations.RevokeUser(identity.Email, time.Now()); err != nil {
		return err
	}
	return h.users.ClearRefreshToken(r.Context(), identity.Email)
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, event string, err error) {
	sentry.CaptureException(err)
	observability.FromContext(r.Context(), h.logger).Error(event, map[string]any{
		"path":  r.URL.Path,
		"error": err.Error(),
	})
	httpjson.Message(w, StatusCode(ErrInternal), "Internal server error")
}

// NotFound is the terminal response for every unmatched route.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	httpjson.Message(w, StatusCode(ErrNotFound), "Endpoint not found")
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var body credentialsRequest
	if err := httpjson.Decode(w, r, &body); err != nil {
		httpjson.Message(w, http.StatusBadRequest, "Bad request")
		return credentialsRequest{}, false
	}
	if err := validateCredentials(body.Email, body.Password); err != nil {
		httpjson.Message(w, http.StatusBadRequest, "Bad request")
		return credentialsRequest{}, false
	}
	return body, true
}
