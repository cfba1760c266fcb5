// Package identity signs users up and in, and tracks their sessions.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"agenda/internal/database"
	"agenda/internal/domain"
	"agenda/internal/events"
	"agenda/internal/models"
	"agenda/internal/observe"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUnauthenticated   = errors.New("not signed in")
	ErrTooManyAttempts   = errors.New("too many sign-in attempts, try again later")
	errBadCredentials    = domain.Invalid("", "invalid email or password")
	errUnexpectedSigning = errors.New("unexpected signing method")
)

// AuthState is what a session watcher sees.
type AuthState struct {
	SignedIn bool
	UserID   int64
	Role     string
}

type SignUpInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
}

type Options struct {
	Secret       string
	SessionTTL   time.Duration
	SignInLimit  int
	SignInWindow time.Duration
}

type Service struct {
	users    domain.UserRepository
	sessions domain.SessionRepository
	events   domain.EventPublisher
	opts     Options
	logger   *zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	watchers map[string]*observe.Value[AuthState] // by token id
}

func NewService(users domain.UserRepository, sessions domain.SessionRepository, publisher domain.EventPublisher, opts Options, logger *zerolog.Logger) *Service {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = time.Duration(models.DefaultSessionTTL) * time.Second
	}
	if opts.SignInLimit <= 0 {
		opts.SignInLimit = models.SignInAttempts
	}
	if opts.SignInWindow <= 0 {
		opts.SignInWindow = time.Duration(models.SignInWindow) * time.Second
	}
	return &Service{
		users:    users,
		sessions: sessions,
		events:   publisher,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		watchers: make(map[string]*observe.Value[AuthState]),
	}
}

// SignUp registers a user and returns its id. Every field is required; role defaults to client.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (int64, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.Role = strings.TrimSpace(in.Role)

	switch {
	case in.Name == "":
		return 0, domain.Invalid("name", "is required")
	case in.Email == "":
		return 0, domain.Invalid("email", "is required")
	case strings.TrimSpace(in.Password) == "":
		return 0, domain.Invalid("password", "is required")
	case in.Phone == "":
		return 0, domain.Invalid("phone", "is required")
	}
	if !strings.Contains(in.Email, "@") {
		return 0, domain.Invalid("email", "is not a valid address")
	}
	if in.Role == "" {
		in.Role = models.RoleClient
	}
	if !models.ValidRole(in.Role) {
		return 0, domain.Invalid("role", "must be client or provider")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Name:         in.Name,
		Email:        in.Email,
		Phone:        in.Phone,
		Role:         in.Role,
		PasswordHash: string(hash),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return 0, domain.Invalid("email", "email already registered")
		}
		s.logger.Error().Err(err).Str("email", in.Email).Msg("sign up failed")
		return 0, domain.Remote("sign up", err)
	}

	s.logger.Info().Int64("user_id", user.ID).Str("role", user.Role).Msg("user signed up")
	return user.ID, nil
}

// SignIn checks the credentials and opens a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, errBadCredentials
	}

	allowed, err := s.sessions.CheckRateLimit(ctx, "signin:"+email, s.opts.SignInLimit, s.opts.SignInWindow)
	if err != nil {
		return nil, domain.Remote("sign in", err)
	}
	if !allowed {
		return nil, ErrTooManyAttempts
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, database.ErrNotFound) {
		return nil, errBadCredentials
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("sign in lookup failed")
		return nil, domain.Remote("sign in", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, errBadCredentials
	}

	session, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.SetSession(ctx, session); err != nil {
		s.logger.Error().Err(err).Int64("user_id", user.ID).Msg("store session failed")
		return nil, domain.Remote("sign in", err)
	}

	s.notify(session.TokenID, AuthState{SignedIn: true, UserID: user.ID, Role: user.Role})
	s.publish(events.EventUserSignedIn, user.ID, user.Role)
	return session, nil
}

func (s *Service) issue(user *models.User) (*models.Session, error) {
	now := s.now()
	expires := now.Add(s.opts.SessionTTL)
	jti := uuid.NewString()

	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(user.ID, 10),
		"role": user.Role,
		"jti":  jti,
		"iat":  now.Unix(),
		"exp":  expires.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.opts.Secret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &models.Session{
		Token:     signed,
		TokenID:   jti,
		UserID:    user.ID,
		Role:      user.Role,
		IssuedAt:  now,
		ExpiresAt: expires,
	}, nil
}

// Authenticate verifies the token and returns its live session.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.Session, error) {
	jti, err := s.tokenID(token)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	session, err := s.sessions.GetSession(ctx, jti)
	if err != nil {
		return nil, domain.Remote("check session", err)
	}
	if session == nil || session.Token != token || session.Expired(s.now()) {
		return nil, ErrUnauthenticated
	}
	return session, nil
}

// CurrentUser returns the signed-in user of the token, if any.
func (s *Service) CurrentUser(ctx context.Context, token string) (int64, bool) {
	session, err := s.Authenticate(ctx, token)
	if err != nil {
		return 0, false
	}
	return session.UserID, true
}

func (s *Service) tokenID(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errUnexpectedSigning
		}
		return []byte(s.opts.Secret), nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", errors.New("invalid token")
	}
	jti, ok := claims["jti"].(string)
	if !ok || jti == "" {
		return "", errors.New("token does not contain a valid 'jti' claim")
	}
	return jti, nil
}

// SignOut closes the session of the token. Signing out twice is not an error.
func (s *Service) SignOut(ctx context.Context, token string) error {
	session, err := s.Authenticate(ctx, token)
	if errors.Is(err, ErrUnauthenticated) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.sessions.DeleteSession(ctx, session.TokenID); err != nil {
		return domain.Remote("sign out", err)
	}

	s.notify(session.TokenID, AuthState{})
	s.mu.Lock()
	delete(s.watchers, session.TokenID)
	s.mu.Unlock()

	s.publish(events.EventUserSignedOut, session.UserID, session.Role)
	return nil
}

// Watch delivers the auth state of the token now and after every change.
func (s *Service) Watch(ctx context.Context, token string, fn func(AuthState)) (unsubscribe func()) {
	state := AuthState{}
	jti := ""
	if session, err := s.Authenticate(ctx, token); err == nil {
		state = AuthState{SignedIn: true, UserID: session.UserID, Role: session.Role}
		jti = session.TokenID
	}
	if jti == "" {
		// недействительный токен: одно уведомление и больше ничего
		fn(state)
		return func() {}
	}

	s.mu.Lock()
	v, ok := s.watchers[jti]
	if !ok {
		v = observe.NewValue(state)
		s.watchers[jti] = v
	}
	s.mu.Unlock()
	return v.Subscribe(fn)
}

func (s *Service) notify(jti string, state AuthState) {
	s.mu.Lock()
	v, ok := s.watchers[jti]
	s.mu.Unlock()
	if ok {
		v.Set(state)
	}
}

// Profile returns a user's contact details.
func (s *Service) Profile(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, domain.NotFound("user", strconv.FormatInt(userID, 10))
	}
	if err != nil {
		return nil, domain.Remote("load profile", err)
	}
	return user, nil
}

func (s *Service) publish(eventType string, userID int64, role string) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishJSON(eventType, events.UserEventPayload{UserID: userID, Role: role}); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("publish event failed")
	}
}
