package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"ghginventory.org/internal/ability"
	"ghginventory.org/internal/auth"
	"ghginventory.org/internal/obs"
	"ghginventory.org/internal/registry"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withAuth resolves the bearer token into a Session with a freshly built ability.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="ghg-inventory"`)
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		sess, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidToken):
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			default:
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}
		obs.AbilityRebuilt()
		next.ServeHTTP(w, r.WithContext(auth.ContextWithSession(r.Context(), sess)))
	})
}

// authorize checks the caller's ability and writes a 403 when denied.
func authorize(w http.ResponseWriter, r *http.Request, action ability.Action, subject registry.Entity, fields ...string) bool {
	err := auth.AbilityFromContext(r.Context()).Authorize(action, subject, fields...)
	if err == nil {
		return true
	}
	var fe *ability.ForbiddenError
	if errors.As(err, &fe) {
		writeForbidden(w, r, fe)
		return false
	}
	handleError(w, r, err)
	return false
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
