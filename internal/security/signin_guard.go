// Package security tracks failed sign-in attempts and locks out repeat offenders.
package security

import (
	"strings"
	"sync"
	"time"
)

// SignInGuardConfig holds lockout thresholds
type SignInGuardConfig struct {
	// Maximum failed attempts per email within window
	MaxAttemptsPerEmail int
	// Maximum failed attempts per IP within window
	MaxAttemptsPerIP int
	WindowDuration   time.Duration
	LockoutDuration  time.Duration
}

// DefaultSignInGuardConfig returns the default configuration
func DefaultSignInGuardConfig() SignInGuardConfig {
	return SignInGuardConfig{
		MaxAttemptsPerEmail: 5,
		MaxAttemptsPerIP:    20,
		WindowDuration:      15 * time.Minute,
		LockoutDuration:     15 * time.Minute,
	}
}

// SignInGuard counts failed sign-ins per email and per IP. A nil guard allows everything.
type SignInGuard struct {
	mu     sync.Mutex
	email  map[string][]time.Time
	ip     map[string][]time.Time
	config SignInGuardConfig
	now    func() time.Time
}

// NewSignInGuard creates a guard with the given thresholds
func NewSignInGuard(config SignInGuardConfig) *SignInGuard {
	return &SignInGuard{
		email:  make(map[string][]time.Time),
		ip:     make(map[string][]time.Time),
		config: config,
		now:    time.Now,
	}
}

// RecordFailure records a failed sign-in for email from ip
func (g *SignInGuard) RecordFailure(email, ip string) {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if email = normalize(email); email != "" {
		g.email[email] = append(prune(g.email[email], now.Add(-g.config.WindowDuration)), now)
	}
	if ip != "" {
		g.ip[ip] = append(prune(g.ip[ip], now.Add(-g.config.WindowDuration)), now)
	}
}

// Blocked reports whether email or ip is locked out and when the lockout ends
func (g *SignInGuard) Blocked(email, ip string) (bool, time.Time) {
	if g == nil {
		return false, time.Time{}
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if until, ok := g.lockedUntil(g.email[normalize(email)], g.config.MaxAttemptsPerEmail, now); ok {
		return true, until
	}
	if until, ok := g.lockedUntil(g.ip[ip], g.config.MaxAttemptsPerIP, now); ok {
		return true, until
	}
	return false, time.Time{}
}

// Reset clears the failures for email after a successful sign-in
func (g *SignInGuard) Reset(email string) {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.email, normalize(email))
}

// Cleanup drops attempts older than the window
func (g *SignInGuard) Cleanup() {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := g.now().Add(-g.config.WindowDuration)
	for _, attempts := range []map[string][]time.Time{g.email, g.ip} {
		for key, times := range attempts {
			if kept := prune(times, cutoff); len(kept) > 0 {
				attempts[key] = kept
			} else {
				delete(attempts, key)
			}
		}
	}
}

func (g *SignInGuard) lockedUntil(attempts []time.Time, max int, now time.Time) (time.Time, bool) {
	if max <= 0 || len(attempts) == 0 {
		return time.Time{}, false
	}
	windowStart := now.Add(-g.config.WindowDuration)
	count := 0
	for _, t := range attempts {
		if t.After(windowStart) {
			count++
		}
	}
	if count < max {
		return time.Time{}, false
	}
	until := attempts[len(attempts)-1].Add(g.config.LockoutDuration)
	return until, now.Before(until)
}

func prune(attempts []time.Time, cutoff time.Time) []time.Time {
	kept := attempts[:0]
	for _, t := range attempts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
