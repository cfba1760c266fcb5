package api

import (
	"errors"
	"net/http"

	"agenda/internal/domain"
	"agenda/internal/identity"
	"agenda/internal/models"
)

// writeDomainError maps service errors onto status codes. notFound is 204 for
// removals and 404 for reads.
func (s *HTTPServer) writeDomainError(w http.ResponseWriter, r *http.Request, err error, notFound int) {
	var transition *models.TransitionError
	var remote *domain.RemoteError

	switch {
	case errors.Is(err, identity.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, identity.ErrTooManyAttempts):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case domain.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &transition):
		writeError(w, http.StatusConflict, err.Error())
	case domain.IsOffline(err):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &remote):
		s.log.Error().Err(remote.Err).Str("op", remote.Op).Str("path", r.URL.Path).Msg("remote call failed")
		writeError(w, http.StatusBadGateway, remote.Error())
	case domain.IsNotFound(err):
		if notFound == http.StatusNoContent {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeError(w, notFound, err.Error())
	default:
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("unhandled error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
