package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"docucloud.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = map[string]struct{}{
	"/auth/register":        {},
	"/auth/login":           {},
	"/auth/refresh":         {},
	"/auth/forgot-password": {},
	"/auth/reset-password":  {},
	"/healthz":              {},
	"/readyz":               {},
	"/metrics":              {},
	"/":                     {},
}

// withAuth authenticates the bearer access token on every non-public route
// and stores the principal in the request context.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicRequest(r) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		user, err := a.sessions.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrTokenInvalid) {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.ContextWithUser(r.Context(), user)))
	})
}

func isPublicRequest(r *http.Request) bool {
	if _, ok := publicPaths[r.URL.Path]; ok {
		return true
	}
	// Anonymous share access is the single unauthenticated resource route.
	if r.Method == http.MethodGet &&
		strings.HasPrefix(r.URL.Path, "/documents/shares/") &&
		strings.HasSuffix(r.URL.Path, "/access") {
		return true
	}
	return false
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
