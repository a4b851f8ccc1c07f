package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DefaultSchedule runs maintenance at the top of every hour.
const DefaultSchedule = "@hourly"

// SessionSweeper removes expired sessions.
type SessionSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// TokenSweeper removes expired password reset tokens.
type TokenSweeper interface {
	ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

// Scheduler runs periodic maintenance on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	sessions SessionSweeper
	tokens   TokenSweeper
	now      func() time.Time
	timeout  time.Duration
}

// NewScheduler creates a scheduler firing on schedule, a five-field cron
// expression or a descriptor such as "@hourly" or "@every 30m".
func NewScheduler(schedule string, sessions SessionSweeper, tokens TokenSweeper) (*Scheduler, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	s := &Scheduler{
		cron:     cron.New(),
		sessions: sessions,
		tokens:   tokens,
		now:      time.Now,
		timeout:  time.Minute,
	}
	if _, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.RunOnce(ctx)
	}); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Run sweeps once immediately and then starts the cron loop in the
// background.
func (s *Scheduler) Run() {
	log.Info().Msg("Starting maintenance scheduler")
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	s.RunOnce(ctx)
	cancel()
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("Stopped maintenance scheduler")
}

// RunOnce performs a single maintenance pass. Failures are logged; one
// failing job does not skip the other.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if s.sessions != nil {
		n, err := s.sessions.Sweep(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Scheduler: failed to sweep sessions")
		} else if n > 0 {
			log.Info().Int("count", n).Msg("Scheduler: removed expired sessions")
		}
	}

	if s.tokens != nil {
		n, err := s.tokens.ClearExpiredResetTokens(ctx, s.now().UTC())
		if err != nil {
			log.Error().Err(err).Msg("Scheduler: failed to clear expired reset tokens")
		} else if n > 0 {
			log.Info().Int64("count", n).Msg("Scheduler: cleared expired reset tokens")
		}
	}
}
