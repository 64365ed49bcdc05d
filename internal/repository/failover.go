package repository

import (
	"context"
	"sync/atomic"
	"time"

	"bookfront/internal/domain"
	"bookfront/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverSessionRepository serves from the fallback while the primary is
// failing and retries the primary once per recoveryInterval.
type FailoverSessionRepository struct {
	primary   domain.SessionRepository
	fallback  domain.SessionRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverSessionRepository(primary, fallback domain.SessionRepository, logger *zerolog.Logger) *FailoverSessionRepository {
	return &FailoverSessionRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// usePrimary decides whether this call should try the primary: always while
// healthy, once per interval while down.
func (r *FailoverSessionRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	last := time.Unix(0, r.lastCheck.Load())
	return r.now().Sub(last) > recoveryInterval
}

func (r *FailoverSessionRepository) observe(op string, err error) bool {
	if err == nil {
		if r.isDown.CompareAndSwap(true, false) {
			r.logger.Info().Str("op", op).Msg("Primary session repository recovered")
		}
		return true
	}
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Str("op", op).Msg("Primary session repository failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
	return false
}

func (r *FailoverSessionRepository) GetSession(ctx context.Context, id string) (*models.WizardSession, error) {
	if r.usePrimary() {
		session, err := r.primary.GetSession(ctx, id)
		if r.observe("get", err) {
			return session, nil
		}
	}
	return r.fallback.GetSession(ctx, id)
}

func (r *FailoverSessionRepository) SaveSession(ctx context.Context, session *models.WizardSession) error {
	if r.usePrimary() {
		if r.observe("save", r.primary.SaveSession(ctx, session)) {
			return nil
		}
	}
	return r.fallback.SaveSession(ctx, session)
}

func (r *FailoverSessionRepository) DeleteSession(ctx context.Context, id string) error {
	if r.usePrimary() {
		if r.observe("delete", r.primary.DeleteSession(ctx, id)) {
			return nil
		}
	}
	return r.fallback.DeleteSession(ctx, id)
}

func (r *FailoverSessionRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if r.observe("rate_limit", err) {
			return allowed, nil
		}
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}

func (r *FailoverSessionRepository) ClaimAttempt(ctx context.Context, attemptID string, ttl time.Duration) (bool, error) {
	if r.usePrimary() {
		ok, err := r.primary.ClaimAttempt(ctx, attemptID, ttl)
		if r.observe("claim", err) {
			return ok, nil
		}
	}
	return r.fallback.ClaimAttempt(ctx, attemptID, ttl)
}
