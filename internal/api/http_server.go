package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"agenda/internal/config"
	"agenda/internal/domain"
	"agenda/internal/identity"
	"agenda/internal/logging"
	"agenda/internal/metrics"
	"agenda/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Identity is the part of identity.Service the HTTP layer needs.
type Identity interface {
	SignUp(ctx context.Context, in identity.SignUpInput) (int64, error)
	SignIn(ctx context.Context, email, password string) (*models.Session, error)
	Authenticate(ctx context.Context, token string) (*models.Session, error)
	SignOut(ctx context.Context, token string) error
	Profile(ctx context.Context, userID int64) (*models.User, error)
}

// Services groups the use cases served over HTTP.
type Services struct {
	Identity Identity
	Bookings domain.BookingService
	Blocks   domain.BlockService
	History  domain.HistoryService
}

// HTTPServer exposes the booking API under /api/v1.
type HTTPServer struct {
	cfg      config.APIConfig
	calendar config.CalendarConfig
	loc      *time.Location
	svc      Services
	server   *http.Server
	auth     *HTTPAuth
	log      *zerolog.Logger
}

func NewHTTPServer(cfg *config.Config, svc Services, logger *zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{
		cfg:      cfg.API,
		calendar: cfg.Calendar,
		loc:      cfg.Schedule.Location(),
		svc:      svc,
		log:      logging.Component(logger, "http"),
	}
	srv.auth = NewHTTPAuth(cfg.API)

	srv.handle(mux, "POST /api/v1/auth/signup", srv.handleSignUp)
	srv.handle(mux, "POST /api/v1/auth/signin", srv.handleSignIn)
	srv.handle(mux, "POST /api/v1/auth/signout", srv.handleSignOut)
	srv.handle(mux, "GET /api/v1/me", srv.user(srv.handleMe))

	srv.handle(mux, "GET /api/v1/availability", srv.user(srv.handleAvailability))
	srv.handle(mux, "POST /api/v1/bookings", srv.user(srv.handleCreateBooking, models.RoleClient))
	srv.handle(mux, "POST /api/v1/bookings/{id}/cancel", srv.user(srv.handleClientCancel, models.RoleClient))
	srv.handle(mux, "POST /api/v1/bookings/{id}/provider-cancel", srv.user(srv.handleProviderCancel, models.RoleProvider))
	srv.handle(mux, "POST /api/v1/bookings/{id}/attend", srv.user(srv.handleAttend, models.RoleProvider))
	srv.handle(mux, "GET /api/v1/bookings/{id}/calendar.ics", srv.user(srv.handleCalendar))

	srv.handle(mux, "GET /api/v1/history", srv.user(srv.handleHistory, models.RoleClient))
	srv.handle(mux, "DELETE /api/v1/history", srv.user(srv.handlePurgeHistory, models.RoleClient))

	srv.handle(mux, "GET /api/v1/agenda", srv.user(srv.handleAgenda, models.RoleProvider))
	srv.handle(mux, "GET /api/v1/agenda/export", srv.user(srv.handleAgendaExport, models.RoleProvider))

	srv.handle(mux, "GET /api/v1/blocks", srv.user(srv.handleListBlocks, models.RoleProvider))
	srv.handle(mux, "POST /api/v1/blocks", srv.user(srv.handleCreateBlock, models.RoleProvider))
	srv.handle(mux, "DELETE /api/v1/blocks", srv.user(srv.handleRemoveBlock, models.RoleProvider))

	handler := loggingMiddleware(srv.log, srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

// handle registers h and counts its responses under the route pattern.
func (s *HTTPServer) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(recorder, r)
		metrics.IncHTTP(pattern, recorder.status)
	})
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	cfg     config.APIConfig
	keys    keyring
	limiter *rateLimiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	return &HTTPAuth{cfg: cfg, keys: newKeyring(cfg.Auth), limiter: newRateLimiter(cfg.RateLimit)}
}

type apiClientKey struct{}

// apiClientFrom returns the API client that authenticated the request, if any.
func apiClientFrom(ctx context.Context) (config.APIClientKey, bool) {
	client, ok := ctx.Value(apiClientKey{}).(config.APIClientKey)
	return client, ok
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled || !a.cfg.HTTP.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Auth.Enabled {
			client, err := a.keys.verify(r.Header.Get(a.keys.apiKeyHeader), r.Header.Get(a.keys.extraHeader), requiredPermissionHTTP(r))
			if err != nil {
				statusCode := http.StatusUnauthorized
				if errors.Is(err, errPermissionDenied) {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, err.Error())
				return
			}
			r = r.WithContext(context.WithValue(r.Context(), apiClientKey{}, client))
		}

		if !a.limiter.allow(a.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func requiredPermissionHTTP(r *http.Request) string {
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/api/v1/availability"):
		return permReadAvailability
	case strings.HasPrefix(path, "/api/v1/agenda"):
		return permReadAgenda
	case strings.HasPrefix(path, "/api/v1/bookings"), strings.HasPrefix(path, "/api/v1/history"):
		if r.Method == http.MethodGet {
			return ""
		}
		return permWriteBookings
	case strings.HasPrefix(path, "/api/v1/blocks"):
		if r.Method == http.MethodGet {
			return ""
		}
		return permWriteBlocks
	}
	return ""
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.keys.apiKeyHeader)); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func loggingMiddleware(logger *zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDMetadataKey))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDMetadataKey, requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
