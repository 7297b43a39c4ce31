package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/redmonkez12/otp-accounts/internal/logging"
	"github.com/redmonkez12/otp-accounts/internal/metrics"
)

// Job is a unit of background maintenance work.
type Job func(ctx context.Context) error

// Scheduler runs maintenance jobs on cron schedules. Overlapping runs of the
// same job are skipped.
type Scheduler struct {
	cron    *cron.Cron
	logger  *logging.Logger
	timeout time.Duration
}

func New(logger *logging.Logger, jobTimeout time.Duration) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger))),
		logger:  logger,
		timeout: jobTimeout,
	}
}

// Add registers job under name. spec accepts standard five-field cron
// expressions and descriptors such as "@every 5m".
func (s *Scheduler) Add(spec, name string, job Job) error {
	logger := s.logger.WithFields(map[string]any{"job": name})

	_, err := s.cron.AddJob(spec, cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		start := time.Now()
		if err := job(ctx); err != nil {
			logger.Error("scheduled job failed", "error", err.Error())
			return
		}
		logger.Debug("scheduled job finished", "duration_ms", time.Since(start).Milliseconds())
	})))
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}

	logger.Info("scheduled job registered", "spec", spec)
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs or ctx, whichever is first.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OTPCleaner is satisfied by every user store.
type OTPCleaner interface {
	ClearExpiredOTPs(ctx context.Context, now time.Time) (int64, error)
}

// CleanupExpiredOTPs clears codes that can no longer be redeemed so that
// abandoned signups return to the no-OTP state.
func CleanupExpiredOTPs(store OTPCleaner, logger *logging.Logger, now func() time.Time) Job {
	return func(ctx context.Context) error {
		n, err := store.ClearExpiredOTPs(ctx, now())
		if err != nil {
			return err
		}
		metrics.AddExpiredOTPsCleared(n)
		if n > 0 {
			logger.Info("cleared expired otps", "count", n)
		}
		return nil
	}
}
