package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/McGuireTechnology/truledgr-auth/internal/config"
	"github.com/McGuireTechnology/truledgr-auth/internal/metrics"
	"github.com/McGuireTechnology/truledgr-auth/internal/models"
)

// LockoutStore is the persistence surface the guard needs.
type LockoutStore interface {
	GetByKey(ctx context.Context, accountKey string) (*models.AccountLockout, error)
	GetByID(ctx context.Context, id string) (*models.AccountLockout, error)
	RecordFailure(ctx context.Context, accountKey string, ip *string, window time.Duration) (*models.AccountLockout, error)
	Activate(ctx context.Context, id string, unlockAt time.Time) (*models.AccountLockout, error)
	Clear(ctx context.Context, accountKey string) error
	Unlock(ctx context.Context, id string) (*models.AccountLockout, error)
	ListActive(ctx context.Context, limit int) ([]*models.AccountLockout, error)
}

// LockedFlagStore mirrors lockout state onto the user record.
type LockedFlagStore interface {
	SetLocked(ctx context.Context, id string, locked bool) error
}

// LockoutService is the brute-force guard. It tracks consecutive failures
// per account key and locks with an escalating backoff. Failure bookkeeping
// must survive the surrounding authentication failing, so every mutation
// runs in its own statement rather than the caller's transaction.
type LockoutService struct {
	store    LockoutStore
	users    LockedFlagStore
	security *SecurityService
	cfg      config.LockoutConfig
	logger   *slog.Logger
}

func NewLockoutService(store LockoutStore, users LockedFlagStore, security *SecurityService, cfg config.LockoutConfig, log *slog.Logger) *LockoutService {
	return &LockoutService{store: store, users: users, security: security, cfg: cfg, logger: log}
}

// Check returns ErrAccountLocked when the key is currently locked. A missing
// record means no failures on record.
func (s *LockoutService) Check(ctx context.Context, accountKey string) error {
	lockout, err := s.store.GetByKey(ctx, accountKey)
	if err != nil {
		if err == models.ErrNotFound {
			return nil
		}
		return err
	}

	if lockout.Locked(time.Now()) {
		return models.ErrAccountLocked
	}
	return nil
}

// RecordFailure counts one failed attempt and activates a lockout when the
// count crosses the threshold. The lockout duration doubles with every cycle
// up to the configured cap.
func (s *LockoutService) RecordFailure(ctx context.Context, accountKey string, ip string, userID *string) error {
	var ipPtr *string
	if ip != "" {
		ipPtr = &ip
	}

	lockout, err := s.store.RecordFailure(ctx, accountKey, ipPtr, s.cfg.CounterWindow)
	if err != nil {
		return err
	}

	if lockout.FailedAttempts < s.cfg.Threshold || lockout.Locked(time.Now()) {
		return nil
	}

	duration := s.lockDuration(lockout.LockoutCycles)
	locked, err := s.store.Activate(ctx, lockout.ID, time.Now().Add(duration))
	if err != nil {
		return err
	}
	metrics.RecordLockout()

	if userID != nil {
		if err := s.users.SetLocked(ctx, *userID, true); err != nil {
			s.logger.Error("failed to mirror lockout onto user",
				slog.String("user_id", *userID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Warn("account locked",
		slog.String("account_key", accountKey),
		slog.Int("failed_attempts", locked.FailedAttempts),
		slog.Int("lockout_cycles", locked.LockoutCycles),
		slog.Duration("duration", duration),
	)

	s.security.Record(ctx, &models.SecurityEvent{
		EventType: models.EventAccountLockout,
		Severity:  models.SeverityHigh,
		ActorID:   userID,
		IPAddress: ip,
		Details: models.EventDetails{
			"account_key":     accountKey,
			"failed_attempts": locked.FailedAttempts,
			"lockout_cycles":  locked.LockoutCycles,
			"unlock_at":       locked.UnlockAt,
		},
	})

	return nil
}

// lockDuration doubles the base period per completed cycle, capped at the
// configured maximum.
func (s *LockoutService) lockDuration(cycles int) time.Duration {
	duration := s.cfg.BaseLockPeriod
	for i := 0; i < cycles; i++ {
		duration *= 2
		if duration >= s.cfg.MaxLockPeriod {
			return s.cfg.MaxLockPeriod
		}
	}
	return duration
}

// ClearOnSuccess resets the failure counter after a fully successful
// authentication, second factor included. Partial success never clears.
func (s *LockoutService) ClearOnSuccess(ctx context.Context, accountKey string, userID string) {
	if err := s.store.Clear(ctx, accountKey); err != nil && err != models.ErrNotFound {
		s.logger.Error("failed to clear lockout counter",
			slog.String("account_key", accountKey),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := s.users.SetLocked(ctx, userID, false); err != nil {
		s.logger.Error("failed to clear user locked flag",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// Unlock deactivates a lockout early on administrator request. The unlock is
// itself a recorded security action.
func (s *LockoutService) Unlock(ctx context.Context, lockoutID, adminID, ip string) (*models.AccountLockout, error) {
	lockout, err := s.store.Unlock(ctx, lockoutID)
	if err != nil {
		return nil, err
	}

	s.security.Record(ctx, &models.SecurityEvent{
		EventType: models.EventAccountLockout,
		Severity:  models.SeverityMedium,
		ActorID:   &adminID,
		IPAddress: ip,
		Details: models.EventDetails{
			"action":      "admin_unlock",
			"account_key": lockout.AccountKey,
			"lockout_id":  lockout.ID,
		},
	})

	return lockout, nil
}

// ListActive returns currently active lockouts for the admin surface.
func (s *LockoutService) ListActive(ctx context.Context) ([]*models.AccountLockout, error) {
	return s.store.ListActive(ctx, 100)
}
