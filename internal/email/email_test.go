package email

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/smtp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/otp-accounts/internal/config"
	"github.com/redmonkez12/otp-accounts/internal/logging"
)

type flakySender struct {
	mu       sync.Mutex
	failures map[string]int
	calls    atomic.Int32
	sent     []Message
	release  chan struct{}
}

func (s *flakySender) Send(ctx context.Context, msg Message) error {
	s.calls.Add(1)
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures[msg.To] > 0 {
		s.failures[msg.To]--
		return errors.New("smtp 421 try again later")
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *flakySender) delivered() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}

func testDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{Workers: 2, QueueSize: 10, MaxAttempts: 3, BaseDelay: time.Millisecond}
}

func TestDispatcher_RetriesThenDelivers(t *testing.T) {
	sender := &flakySender{failures: map[string]int{"alice@x.com": 2}}
	d := NewDispatcher(sender, logging.Discard(), testDispatcherConfig())
	d.Start(context.Background())

	require.NoError(t, d.SendOTP(context.Background(), "alice@x.com", "a1b2c3", time.Now().Add(10*time.Minute)))
	require.NoError(t, d.Stop(context.Background()))

	sent := sender.delivered()
	require.Len(t, sent, 1)
	assert.Equal(t, "a1b2c3", sent[0].Code)
	assert.Equal(t, int32(3), sender.calls.Load())
}

func TestDispatcher_GivesUpAfterMaxAttempts(t *testing.T) {
	sender := &flakySender{failures: map[string]int{"bob@x.com": 10}}
	d := NewDispatcher(sender, logging.Discard(), testDispatcherConfig())
	d.Start(context.Background())

	require.NoError(t, d.SendOTP(context.Background(), "bob@x.com", "ffffff", time.Now().Add(time.Minute)))
	require.NoError(t, d.Stop(context.Background()))

	assert.Empty(t, sender.delivered())
	assert.Equal(t, int32(3), sender.calls.Load())
}

func TestDispatcher_QueueFullAndStopped(t *testing.T) {
	sender := &flakySender{release: make(chan struct{})}
	d := NewDispatcher(sender, logging.Discard(), DispatcherConfig{Workers: 1, QueueSize: 1, MaxAttempts: 1, BaseDelay: time.Millisecond})

	// no workers yet, so the single slot fills
	require.NoError(t, d.SendOTP(context.Background(), "a@x.com", "111111", time.Now()))
	assert.ErrorIs(t, d.SendOTP(context.Background(), "b@x.com", "222222", time.Now()), ErrQueueFull)

	d.Start(context.Background())
	close(sender.release)
	require.NoError(t, d.Stop(context.Background()))

	assert.ErrorIs(t, d.SendOTP(context.Background(), "c@x.com", "333333", time.Now()), ErrStopped)
	assert.Len(t, sender.delivered(), 1)
}

func TestDispatcher_StopTimeoutAbandonsInFlight(t *testing.T) {
	sender := &flakySender{release: make(chan struct{})}
	d := NewDispatcher(sender, logging.Discard(), testDispatcherConfig())
	d.Start(context.Background())

	require.NoError(t, d.SendOTP(context.Background(), "a@x.com", "111111", time.Now()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Stop(ctx), context.DeadlineExceeded)
	assert.Empty(t, sender.delivered())
}

// silentRelay accepts connections and never sends a greeting.
func silentRelay(t *testing.T) (host, port string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})

	host, port, err = net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	return host, port
}

func TestSMTPSender_StalledRelayHonoursContext(t *testing.T) {
	host, port := silentRelay(t)
	s := NewSMTPSender(config.EmailConfig{SMTPHost: host, SMTPPort: port, From: "no-reply@example.com"})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := s.Send(ctx, Message{To: "alice@x.com", Code: "a1b2c3", ExpiresAt: time.Now().Add(time.Minute)})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDispatcher_StopReturnsWhileRelayStalls(t *testing.T) {
	host, port := silentRelay(t)
	sender := NewSMTPSender(config.EmailConfig{SMTPHost: host, SMTPPort: port, From: "no-reply@example.com"})
	d := NewDispatcher(sender, logging.Discard(), DispatcherConfig{Workers: 1, QueueSize: 1, MaxAttempts: 3, BaseDelay: time.Millisecond})
	d.Start(context.Background())

	require.NoError(t, d.SendOTP(context.Background(), "alice@x.com", "a1b2c3", time.Now().Add(time.Minute)))
	// let the worker reach the relay
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	stopped := make(chan error, 1)
	go func() { stopped <- d.Stop(ctx) }()

	select {
	case err := <-stopped:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked past its deadline")
	}

	// the cancelled worker also gives up on the relay
	workersDone := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(workersDone)
	}()
	select {
	case <-workersDone:
	case <-time.After(2 * time.Second):
		t.Fatal("worker still blocked on the relay after cancellation")
	}
}

func TestSMTPSender_Send(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewSMTPSender(config.EmailConfig{
		SMTPHost:     "smtp.example.com",
		SMTPPort:     "587",
		SMTPUser:     "mailer",
		SMTPPassword: "secret",
		From:         "no-reply@example.com",
	})
	s.now = func() time.Time { return now }
	s.sendMail = func(_ context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		assert.NotNil(t, a)
		return nil
	}

	err := s.Send(context.Background(), Message{To: "alice@x.com", Code: "a1b2c3", ExpiresAt: now.Add(10 * time.Minute)})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "no-reply@example.com", gotFrom)
	assert.Equal(t, []string{"alice@x.com"}, gotTo)
	body := string(gotMsg)
	assert.True(t, strings.HasPrefix(body, "From: no-reply@example.com\r\nTo: alice@x.com\r\nSubject: OTP Verification\r\n"))
	assert.Contains(t, body, "a1b2c3")
	assert.Contains(t, body, "expires in 10 minutes")
}

func TestSMTPSender_SendError(t *testing.T) {
	s := NewSMTPSender(config.EmailConfig{SMTPHost: "smtp.example.com", SMTPPort: "25", From: "x@example.com"})
	s.sendMail = func(context.Context, string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	err := s.Send(context.Background(), Message{To: "alice@x.com", Code: "a1b2c3", ExpiresAt: time.Now().Add(time.Minute)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSender(logging.New(&buf, true))

	require.NoError(t, s.Send(context.Background(), Message{To: "alice@x.com", Code: "a1b2c3", ExpiresAt: time.Now()}))
	assert.Contains(t, buf.String(), "otp=a1b2c3")
	assert.Contains(t, buf.String(), "email=alice@x.com")
}
