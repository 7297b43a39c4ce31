package email

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/redmonkez12/otp-accounts/internal/logging"
	"github.com/redmonkez12/otp-accounts/internal/metrics"
)

var (
	ErrQueueFull = errors.New("email queue is full")
	ErrStopped   = errors.New("email dispatcher stopped")
)

type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	BaseDelay   time.Duration
}

// Dispatcher queues OTP emails and delivers them on a fixed pool of workers,
// retrying each message with exponential backoff.
type Dispatcher struct {
	sender Sender
	logger *logging.Logger
	cfg    DispatcherConfig

	queue  chan Message
	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu      sync.RWMutex
	stopped bool
}

func NewDispatcher(sender Sender, logger *logging.Logger, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	return &Dispatcher{
		sender: sender,
		logger: logger,
		cfg:    cfg,
		queue:  make(chan Message, cfg.QueueSize),
	}
}

// Start launches the workers. They run until Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.work(ctx)
	}
}

// SendOTP enqueues a message without blocking.
func (d *Dispatcher) SendOTP(_ context.Context, toEmail, code string, expiresAt time.Time) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		return ErrStopped
	}

	select {
	case d.queue <- Message{To: toEmail, Code: code, ExpiresAt: expiresAt}:
		metrics.SetEmailQueueDepth(len(d.queue))
		return nil
	default:
		metrics.IncEmailDelivery("dropped")
		return ErrQueueFull
	}
}

// Stop refuses new messages and waits for queued ones to be delivered.
// If ctx ends first, in-flight retries are abandoned.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if d.cancel != nil {
			d.cancel()
		}
		return nil
	case <-ctx.Done():
		// workers see the cancellation and exit on their own
		if d.cancel != nil {
			d.cancel()
		}
		return ctx.Err()
	}
}

func (d *Dispatcher) work(ctx context.Context) {
	defer d.wg.Done()
	for msg := range d.queue {
		metrics.SetEmailQueueDepth(len(d.queue))
		d.deliver(ctx, msg)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	logger := d.logger.WithFields(map[string]any{"email": msg.To})

	backoff := retry.WithMaxRetries(uint64(d.cfg.MaxAttempts-1), retry.NewExponential(d.cfg.BaseDelay))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := d.sender.Send(ctx, msg); err != nil {
			logger.Warn("otp email attempt failed", "attempt", attempt, "error", err.Error())
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		metrics.IncEmailDelivery("failed")
		logger.Error("otp email not delivered", "attempts", attempt, "error", err.Error())
		return
	}

	metrics.IncEmailDelivery("sent")
	logger.Info("otp email sent", "attempts", attempt)
}
