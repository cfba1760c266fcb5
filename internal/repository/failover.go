package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"agenda/internal/domain"
	"agenda/internal/models"

	"github.com/rs/zerolog"
)

// FailoverSessionRepository serves from primary until it fails, then from fallback,
// probing primary again once a minute.
type FailoverSessionRepository struct {
	primary  domain.SessionRepository
	fallback domain.SessionRepository
	logger   *zerolog.Logger
	isDown   atomic.Bool

	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverSessionRepository(primary, fallback domain.SessionRepository, logger *zerolog.Logger) *FailoverSessionRepository {
	return &FailoverSessionRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// usePrimary reports whether the call should go to primary, allowing one recovery probe per minute.
func (r *FailoverSessionRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Since(r.lastCheck) > time.Minute
}

func (r *FailoverSessionRepository) markDown(op string, err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Str("op", op).Msg("Primary session repository failed, falling back to memory")
	}
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

func (r *FailoverSessionRepository) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary session repository recovered")
	}
}

func call[T any](r *FailoverSessionRepository, op string, primary, fallback func() (T, error)) (T, error) {
	if r.usePrimary() {
		v, err := primary()
		if err == nil {
			r.markUp()
			return v, nil
		}
		r.markDown(op, err)
	}
	return fallback()
}

func (r *FailoverSessionRepository) GetSession(ctx context.Context, tokenID string) (*models.Session, error) {
	return call(r, "get_session",
		func() (*models.Session, error) { return r.primary.GetSession(ctx, tokenID) },
		func() (*models.Session, error) { return r.fallback.GetSession(ctx, tokenID) })
}

func (r *FailoverSessionRepository) SetSession(ctx context.Context, session *models.Session) error {
	_, err := call(r, "set_session",
		func() (struct{}, error) { return struct{}{}, r.primary.SetSession(ctx, session) },
		func() (struct{}, error) { return struct{}{}, r.fallback.SetSession(ctx, session) })
	return err
}

func (r *FailoverSessionRepository) DeleteSession(ctx context.Context, tokenID string) error {
	_, err := call(r, "delete_session",
		func() (struct{}, error) { return struct{}{}, r.primary.DeleteSession(ctx, tokenID) },
		func() (struct{}, error) { return struct{}{}, r.fallback.DeleteSession(ctx, tokenID) })
	return err
}

func (r *FailoverSessionRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return call(r, "check_rate_limit",
		func() (bool, error) { return r.primary.CheckRateLimit(ctx, key, limit, window) },
		func() (bool, error) { return r.fallback.CheckRateLimit(ctx, key, limit, window) })
}
