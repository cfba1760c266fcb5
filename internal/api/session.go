package api

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"agenda/internal/models"
)

type sessionKey struct{}

func sessionFrom(ctx context.Context) *models.Session {
	session, _ := ctx.Value(sessionKey{}).(*models.Session)
	return session
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// user requires a signed-in session. With roles given, the session role must be one of them.
func (s *HTTPServer) user(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		session, err := s.svc.Identity.Authenticate(r.Context(), token)
		if err != nil {
			s.writeDomainError(w, r, err, http.StatusNotFound)
			return
		}
		if len(roles) > 0 && !slices.Contains(roles, session.Role) {
			writeError(w, http.StatusForbidden, "not allowed for role "+session.Role)
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, session)))
	}
}
