package permission

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"galmuri-capture/src/apperr"
)

// ResultOK is the result code recorded for an approved consent prompt.
const ResultOK = -1

// Grant is a one-time screen capture authorization issued by the consent prompt.
// It may be reused across overlay show/hide cycles but backs at most one live
// capture session at a time.
type Grant struct {
	ResultCode int
	Token      string
	IssuedAt   time.Time
	ExpiresAt  time.Time // zero means no expiry

	mu      sync.Mutex
	revoked bool
	live    bool
	done    chan struct{}
}

func newGrant(now time.Time, ttl time.Duration) *Grant {
	entropy := ulid.Monotonic(rand.Reader, 0)
	g := &Grant{
		ResultCode: ResultOK,
		Token:      ulid.MustNew(ulid.Timestamp(now), entropy).String(),
		IssuedAt:   now,
		done:       make(chan struct{}),
	}
	if ttl > 0 {
		g.ExpiresAt = now.Add(ttl)
	}
	return g
}

// Valid reports whether the grant can still open a capture session.
func (g *Grant) Valid(now time.Time) bool {
	if g == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.validLocked(now)
}

func (g *Grant) validLocked(now time.Time) bool {
	if g.revoked || g.ResultCode != ResultOK {
		return false
	}
	return g.ExpiresAt.IsZero() || now.Before(g.ExpiresAt)
}

// Acquire marks the grant as backing a live capture session. The returned
// release func must be called exactly once when the session is torn down.
func (g *Grant) Acquire(now time.Time) (func(), error) {
	if g == nil {
		return nil, apperr.NoAuthorization("no screen capture authorization")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.validLocked(now) {
		return nil, apperr.NoAuthorization("screen capture authorization expired or revoked")
	}
	if g.live {
		return nil, apperr.Busy("capture session")
	}
	g.live = true
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.live = false
			g.mu.Unlock()
		})
	}, nil
}

// Live reports whether a capture session currently holds the grant.
func (g *Grant) Live() bool {
	if g == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.live
}

// Revoke invalidates the grant and wakes any session waiting on Done.
func (g *Grant) Revoke() {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.revoked {
		return
	}
	g.revoked = true
	close(g.done)
}

// Done is closed when the grant is revoked.
func (g *Grant) Done() <-chan struct{} {
	if g == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return g.done
}
