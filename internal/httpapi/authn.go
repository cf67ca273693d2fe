package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"tuna.org/internal/auth"
)

const (
	authHeader  = "Authorization"
	bearer      = "Bearer "
	tokenCookie = "token"
)

var publicPaths = []string{
	"/v1/init",
	"/v1/login",
	"/v1/info",
	"/metrics",
	"/healthz",
	"/readyz",
}

// withAuth resolves the bearer token to a principal and attaches it to the
// request context. Public endpoints pass through untouched; invite
// redemption is public because the code itself is the credential.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicRequest(r) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractToken(r)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		principal, err := a.auth.Resolve(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrUnauthenticated):
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			default:
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// principal fetches the authenticated user or writes a 401.
func (a *API) principal(w http.ResponseWriter, r *http.Request) (auth.User, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.User{}, false
	}
	return p, true
}

// extractToken prefers the Authorization header and falls back to the
// session cookie set by login.
func extractToken(r *http.Request) (string, error) {
	if header := strings.TrimSpace(r.Header.Get(authHeader)); header != "" {
		if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
			return "", errors.New("invalid authorization scheme")
		}
		token := strings.TrimSpace(header[len(bearer):])
		if token == "" {
			return "", errors.New("missing bearer token")
		}
		return token, nil
	}
	if c, err := r.Cookie(tokenCookie); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value), nil
	}
	return "", errors.New("missing bearer token")
}

func isPublicRequest(r *http.Request) bool {
	for _, p := range publicPaths {
		if r.URL.Path == p {
			return true
		}
	}
	// POST /v1/invites/{code} redeems an invite without a session.
	if r.Method == http.MethodPost {
		if code := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/invites/"), "/"); code != "" &&
			strings.HasPrefix(r.URL.Path, "/v1/invites/") && !strings.Contains(code, "/") {
			return true
		}
	}
	return false
}
