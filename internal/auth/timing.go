package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds configuration for authentication timing equalization.
type TimingConfig struct {
	BaseDelayMs   int // minimum total latency for the guarded path
	JitterMs      int // random delay range added on top
}

// TimingEqualizer pads authentication latency so that account-not-found,
// wrong-password and locked responses are indistinguishable by timing.
type TimingEqualizer struct {
	config TimingConfig
}

// NewTimingEqualizer creates a new TimingEqualizer.
func NewTimingEqualizer(config TimingConfig) *TimingEqualizer {
	return &TimingEqualizer{config: config}
}

// cryptoRandIntn returns a secure random number in [0, max).
func cryptoRandIntn(max int) int {
	if max <= 0 {
		return 0
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	return int(binary.BigEndian.Uint64(buf[:]) % uint64(max))
}

// Equalize sleeps until the elapsed time since start reaches the base delay
// plus jitter. Operations that already consumed longer than the target are
// not delayed further.
func (te *TimingEqualizer) Equalize(start time.Time) {
	target := time.Duration(te.config.BaseDelayMs)*time.Millisecond +
		time.Duration(cryptoRandIntn(te.config.JitterMs))*time.Millisecond

	if elapsed := time.Since(start); elapsed < target {
		time.Sleep(target - elapsed)
	}
}
