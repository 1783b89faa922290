package permission

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"galmuri-capture/src/apperr"
)

// OverlayRequest is the outcome of RequestOverlayPermission.
type OverlayRequest struct {
	Granted        bool
	AlreadyGranted bool
	Requested      bool
}

// Options configures a Broker. Zero values pick sane defaults.
type Options struct {
	Prompter Prompter
	Overlay  OverlayAccess
	GrantTTL time.Duration
	Attempts int
	Backoff  time.Duration
	Clock    func() time.Time
	Sleep    func(context.Context, time.Duration) error
}

// Broker mediates the consent flows and caches the current capture grant.
type Broker struct {
	prompter Prompter
	overlay  OverlayAccess
	ttl      time.Duration
	attempts int
	backoff  time.Duration
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error

	mu    sync.Mutex
	grant *Grant
}

func NewBroker(opts Options) *Broker {
	b := &Broker{
		prompter: opts.Prompter,
		overlay:  opts.Overlay,
		ttl:      opts.GrantTTL,
		attempts: opts.Attempts,
		backoff:  opts.Backoff,
		now:      opts.Clock,
		sleep:    opts.Sleep,
	}
	if b.prompter == nil {
		b.prompter = NewPrompter(nil)
	}
	if b.overlay == nil {
		b.overlay = NewOverlayAccess(nil)
	}
	if b.attempts <= 0 {
		b.attempts = 3
	}
	if b.backoff <= 0 {
		b.backoff = 500 * time.Millisecond
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.sleep == nil {
		b.sleep = sleepContext
	}
	return b
}

// RequestCaptureAuthorization runs the consent prompt and blocks until the user
// answers. An approved grant is cached and replaces any previous one.
func (b *Broker) RequestCaptureAuthorization(ctx context.Context) (*Grant, error) {
	delay := b.backoff
	var lastErr error
	for attempt := 1; attempt <= b.attempts; attempt++ {
		decision, err := b.prompter.PromptCapture(ctx)
		if err == nil {
			if decision != Approved {
				log.Printf("Permission: screen capture declined by user")
				return nil, apperr.PermissionDenied("user declined screen capture")
			}
			return b.store(b.newGrant()), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, apperr.PermissionDenied("consent prompt cancelled: " + ctxErr.Error())
		}
		if errors.Is(err, ErrNoPrompter) {
			return nil, apperr.PermissionDenied(err.Error())
		}
		if !errors.Is(err, ErrServiceUnavailable) {
			return nil, apperr.PermissionDenied("consent prompt failed: " + err.Error())
		}
		lastErr = err
		log.Printf("Permission: consent service unavailable (attempt %d/%d): %v", attempt, b.attempts, err)
		if attempt == b.attempts {
			break
		}
		if err := b.sleep(ctx, delay); err != nil {
			return nil, apperr.PermissionDenied("consent prompt cancelled: " + err.Error())
		}
		delay = time.Duration(float64(delay) * 1.5)
	}
	return nil, apperr.ServiceUnavailable("screen capture consent service unavailable", lastErr)
}

func (b *Broker) newGrant() *Grant {
	return newGrant(b.now(), b.ttl)
}

func (b *Broker) store(g *Grant) *Grant {
	b.mu.Lock()
	old := b.grant
	b.grant = g
	b.mu.Unlock()
	if old != nil && old != g {
		old.Revoke()
	}
	log.Printf("Permission: screen capture granted (token %s)", g.Token)
	return g
}

// Grant returns the cached grant while it is still valid.
func (b *Broker) Grant() *Grant {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.grant.Valid(b.now()) {
		return b.grant
	}
	return nil
}

// Revoke drops the cached grant.
func (b *Broker) Revoke() {
	b.mu.Lock()
	g := b.grant
	b.grant = nil
	b.mu.Unlock()
	g.Revoke()
}

// CheckOverlayPermission reports whether the trigger control may be shown.
func (b *Broker) CheckOverlayPermission() bool {
	return b.overlay.Granted()
}

// RequestOverlayPermission opens the OS settings page when access is missing.
// The result stays pending (Requested) until a later check observes the grant.
func (b *Broker) RequestOverlayPermission(ctx context.Context) (OverlayRequest, error) {
	if b.overlay.Granted() {
		return OverlayRequest{Granted: true, AlreadyGranted: true}, nil
	}
	if err := b.overlay.OpenSettings(ctx); err != nil {
		log.Printf("Permission: failed to open overlay settings: %v", err)
		return OverlayRequest{}, apperr.ServiceUnavailable("cannot open overlay settings", err)
	}
	if b.overlay.Granted() {
		return OverlayRequest{Granted: true}, nil
	}
	return OverlayRequest{Requested: true}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
