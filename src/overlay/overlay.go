package overlay

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"galmuri-capture/src/apperr"
	"galmuri-capture/src/permission"
)

// Anchor is the screen edge the trigger control attaches to.
type Anchor int

const (
	TopCenter Anchor = iota
)

func (a Anchor) String() string {
	if a == TopCenter {
		return "top-center"
	}
	return "unknown"
}

// Placement positions the trigger control relative to its anchor.
type Placement struct {
	Anchor  Anchor
	OffsetY int
}

// DefaultPlacement puts the control at the top center, 100 units down.
var DefaultPlacement = Placement{Anchor: TopCenter, OffsetY: 100}

// Surface hosts a single tappable control.
type Surface interface {
	Mount(p Placement, onTap func()) error
	Unmount() error
}

// Host moves the owning application between background and foreground.
type Host interface {
	Background()
	Foreground()
}

// CaptureFunc performs the capture behind a tap.
type CaptureFunc func(ctx context.Context, grant *permission.Grant) error

// Handle identifies the visible trigger control.
type Handle struct {
	Placement Placement
	Grant     *permission.Grant
	ShownAt   time.Time
}

type Options struct {
	Surface   Surface
	Host      Host
	Permitted func() bool
	Capture   CaptureFunc
	OnError   func(error)
	Placement *Placement
	Clock     func() time.Time
}

// Controller shows and hides the trigger control and turns taps into captures.
type Controller struct {
	surface   Surface
	host      Host
	permitted func() bool
	capture   CaptureFunc
	onError   func(error)
	placement Placement
	now       func() time.Time

	mu            sync.Mutex
	handle        *Handle
	mounting      chan struct{} // closed when the in-flight mount settles
	hideRequested bool
	capturing     atomic.Bool
}

func NewController(opts Options) *Controller {
	c := &Controller{
		surface:   opts.Surface,
		host:      opts.Host,
		permitted: opts.Permitted,
		capture:   opts.Capture,
		onError:   opts.OnError,
		placement: DefaultPlacement,
		now:       opts.Clock,
	}
	if opts.Placement != nil {
		c.placement = *opts.Placement
	}
	if c.surface == nil {
		c.surface = NewVirtualSurface()
	}
	if c.permitted == nil {
		c.permitted = func() bool { return true }
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Show mounts the trigger control. A second call while visible returns the
// current handle unchanged. The surface is mounted without holding the
// controller lock, so Visible, Hide and Tap stay responsive; a Hide that
// arrives during the mount cancels the show.
func (c *Controller) Show(grant *permission.Grant) (*Handle, error) {
	c.mu.Lock()
	for c.mounting != nil {
		wait := c.mounting
		c.mu.Unlock()
		<-wait
		c.mu.Lock()
	}
	if c.handle != nil {
		h := c.handle
		c.mu.Unlock()
		return h, nil
	}
	if !c.permitted() {
		c.mu.Unlock()
		return nil, apperr.PermissionDenied("overlay permission not granted")
	}
	if !grant.Valid(c.now()) {
		c.mu.Unlock()
		return nil, apperr.NoAuthorization("no valid screen capture authorization")
	}
	done := make(chan struct{})
	c.mounting = done
	c.hideRequested = false
	c.mu.Unlock()

	mountErr := c.surface.Mount(c.placement, c.onTap)

	c.mu.Lock()
	hidden := c.hideRequested
	c.hideRequested = false
	var h *Handle
	if mountErr == nil && !hidden {
		h = &Handle{Placement: c.placement, Grant: grant, ShownAt: c.now()}
		c.handle = h
	}
	c.mu.Unlock()

	if mountErr == nil && hidden {
		if err := c.surface.Unmount(); err != nil {
			log.Printf("Overlay: unmount after cancelled show failed: %v", err)
		}
	}

	c.mu.Lock()
	c.mounting = nil
	close(done)
	c.mu.Unlock()

	switch {
	case mountErr != nil:
		return nil, apperr.Internal(mountErr)
	case hidden:
		log.Printf("Overlay: hidden while mounting, show cancelled")
		return nil, apperr.InvalidRequest("overlay hidden while it was being shown")
	}

	log.Printf("Overlay: trigger shown at %s offset %d", c.placement.Anchor, c.placement.OffsetY)
	if c.host != nil {
		c.host.Background()
	}
	return h, nil
}

// Hide removes the trigger control if it is visible.
func (c *Controller) Hide() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil {
		if c.mounting != nil {
			c.hideRequested = true
		}
		return nil
	}
	c.handle = nil
	if err := c.surface.Unmount(); err != nil {
		log.Printf("Overlay: unmount failed: %v", err)
		return err
	}
	log.Printf("Overlay: trigger hidden")
	return nil
}

func (c *Controller) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle != nil
}

func (c *Controller) Capturing() bool { return c.capturing.Load() }

// Tap runs the capture for the visible control. Taps that arrive while a
// capture is running are ignored.
func (c *Controller) Tap(ctx context.Context) error {
	c.mu.Lock()
	h := c.handle
	c.mu.Unlock()
	if h == nil {
		return apperr.InvalidRequest("overlay is not shown")
	}
	if !c.capturing.CompareAndSwap(false, true) {
		log.Printf("Overlay: tap ignored, capture in progress")
		return nil
	}
	defer c.capturing.Store(false)

	if c.capture == nil {
		return apperr.Internal(errors.New("no capture handler configured"))
	}
	if err := c.capture(ctx, h.Grant); err != nil {
		log.Printf("Overlay: capture failed: %v", err)
		if c.onError != nil {
			c.onError(err)
		}
		return err
	}
	return nil
}

func (c *Controller) onTap() {
	_ = c.Tap(context.Background())
}
