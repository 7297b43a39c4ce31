// Package otp issues short-lived one-time codes.
package otp

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

const DefaultBytes = 3

// Issuer generates random hex codes with an expiry.
type Issuer struct {
	bytes   int
	entropy io.Reader
	now     func() time.Time
}

type Option func(*Issuer)

// WithClock overrides the time source used to compute expiries.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// WithEntropy overrides the random source.
func WithEntropy(r io.Reader) Option {
	return func(i *Issuer) { i.entropy = r }
}

// NewIssuer returns an issuer producing codes of n random bytes (2n hex
// characters). n below DefaultBytes is raised to DefaultBytes.
func NewIssuer(n int, opts ...Option) *Issuer {
	if n < DefaultBytes {
		n = DefaultBytes
	}
	i := &Issuer{bytes: n, entropy: rand.Reader, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue returns a fresh code and the instant it stops being valid.
func (i *Issuer) Issue(ttl time.Duration) (string, time.Time, error) {
	buf := make([]byte, i.bytes)
	if _, err := io.ReadFull(i.entropy, buf); err != nil {
		return "", time.Time{}, fmt.Errorf("read entropy: %w", err)
	}
	return hex.EncodeToString(buf), i.now().Add(ttl), nil
}

// Now exposes the issuer clock so callers compare expiries on the same timeline.
func (i *Issuer) Now() time.Time {
	return i.now()
}
