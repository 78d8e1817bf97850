package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/McGuireTechnology/truledgr-auth/internal/repositories"
)

// Sweeper periodically expires idle sessions and removes spent artifacts:
// old sessions, elapsed lockouts, consumed or stale oauth states, dead reset
// tokens and abandoned MFA challenges.
type Sweeper struct {
	sessions *repositories.SessionRepository
	lockouts *repositories.LockoutRepository
	oauth    *repositories.OAuthRepository
	resets   *repositories.PasswordResetRepository
	mfa      *repositories.MFARepository

	logger      *slog.Logger
	interval    time.Duration
	idleTimeout time.Duration
	retention   time.Duration
	stopCh      chan struct{}
}

// NewSweeper creates a new sweeper. idleTimeout bounds session inactivity;
// retention is how long expired rows are kept before deletion.
func NewSweeper(
	sessions *repositories.SessionRepository,
	lockouts *repositories.LockoutRepository,
	oauth *repositories.OAuthRepository,
	resets *repositories.PasswordResetRepository,
	mfa *repositories.MFARepository,
	logger *slog.Logger,
	interval time.Duration,
	idleTimeout time.Duration,
	retention time.Duration,
) *Sweeper {
	return &Sweeper{
		sessions:    sessions,
		lockouts:    lockouts,
		oauth:       oauth,
		resets:      resets,
		mfa:         mfa,
		logger:      logger,
		interval:    interval,
		idleTimeout: idleTimeout,
		retention:   retention,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the periodic sweep
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on startup
	s.runSweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.runSweep(ctx)
		case <-s.stopCh:
			s.logger.Info("sweeper stopped")
			return
		case <-ctx.Done():
			s.logger.Info("sweeper context cancelled")
			return
		}
	}
}

func (s *Sweeper) runSweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := time.Now()

	s.step(sweepCtx, "expire idle sessions", func(ctx context.Context) (int64, error) {
		return s.sessions.ExpireIdle(ctx, now.Add(-s.idleTimeout))
	})
	s.step(sweepCtx, "delete old sessions", func(ctx context.Context) (int64, error) {
		return s.sessions.DeleteExpired(ctx, now.Add(-s.retention))
	})
	s.step(sweepCtx, "deactivate elapsed lockouts", func(ctx context.Context) (int64, error) {
		return s.lockouts.DeactivateExpired(ctx)
	})
	s.step(sweepCtx, "delete expired oauth states", func(ctx context.Context) (int64, error) {
		return s.oauth.DeleteExpiredStates(ctx)
	})
	s.step(sweepCtx, "delete dead reset tokens", func(ctx context.Context) (int64, error) {
		return s.resets.DeleteExpired(ctx, now)
	})
	s.step(sweepCtx, "delete stale mfa challenges", func(ctx context.Context) (int64, error) {
		return s.mfa.DeleteExpiredChallenges(ctx, now)
	})
}

// step runs one sweep task; a failed task never aborts the rest of the sweep.
func (s *Sweeper) step(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	rows, err := fn(ctx)
	if err != nil {
		s.logger.Error("sweep task failed", slog.String("task", name), slog.Any("error", err))
		return
	}
	if rows > 0 {
		s.logger.Info("sweep task completed", slog.String("task", name), slog.Int64("rows", rows))
	}
}

// Stop signals the sweeper to stop
func (s *Sweeper) Stop() {
	close(s.stopCh)
}
