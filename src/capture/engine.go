package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"galmuri-capture/src/apperr"
	"galmuri-capture/src/permission"
)

// DefaultTimeout bounds the wait for the first frame.
const DefaultTimeout = 10 * time.Second

// Sink receives every successfully captured image.
type Sink interface {
	Deliver(img Image)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Image)

func (f SinkFunc) Deliver(img Image) { f(img) }

// Hider removes the trigger control after a capture.
type Hider interface {
	Hide() error
}

// Foregrounder brings the host application back to the front.
type Foregrounder interface {
	Foreground()
}

// Options configures an Engine.
type Options struct {
	Backend Backend
	Format  PixelFormat
	Timeout time.Duration
	Sink    Sink
	Overlay Hider
	Host    Foregrounder
	Clock   func() time.Time
}

// Engine performs single-frame captures against a Backend.
type Engine struct {
	backend Backend
	format  PixelFormat
	timeout time.Duration
	sink    Sink
	overlay Hider
	host    Foregrounder
	now     func() time.Time

	busy atomic.Bool
}

func NewEngine(opts Options) *Engine {
	e := &Engine{
		backend: opts.Backend,
		format:  opts.Format,
		timeout: opts.Timeout,
		sink:    opts.Sink,
		overlay: opts.Overlay,
		host:    opts.Host,
		now:     opts.Clock,
	}
	if e.backend == nil {
		e.backend = ScreenBackend{}
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Busy reports whether a capture session is open.
func (e *Engine) Busy() bool { return e.busy.Load() }

// Capture grabs one frame of the display using grant. All session resources
// are released before the image reaches the sink.
func (e *Engine) Capture(ctx context.Context, grant *permission.Grant) (Image, error) {
	if !grant.Valid(e.now()) {
		return Image{}, apperr.NoAuthorization("no valid screen capture authorization")
	}
	if !e.busy.CompareAndSwap(false, true) {
		return Image{}, apperr.Busy("capture")
	}
	defer e.busy.Store(false)

	release, err := grant.Acquire(e.now())
	if err != nil {
		return Image{}, err
	}
	start := time.Now()
	img, err := e.grab(ctx, grant)
	release()
	if err != nil {
		log.Printf("Capture: failed after %v: %v", time.Since(start), err)
		return Image{}, err
	}
	log.Printf("Capture: %dx%d frame encoded (%d bytes) in %v", img.Width, img.Height, len(img.Encoded), time.Since(start))

	if e.sink != nil {
		e.sink.Deliver(img)
	}
	if e.overlay != nil {
		if err := e.overlay.Hide(); err != nil {
			log.Printf("Capture: failed to hide overlay: %v", err)
		}
	}
	if e.host != nil {
		e.host.Foreground()
	}
	return img, nil
}

func (e *Engine) grab(ctx context.Context, grant *permission.Grant) (img Image, err error) {
	s, err := openSession(e.backend, e.format)
	if err != nil {
		return Image{}, apperr.Internal(err)
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			log.Printf("Capture: error releasing session: %v", cerr)
		}
	}()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	var frame Frame
	select {
	case f, ok := <-s.sink.Next():
		if !ok {
			cause := s.sink.Err()
			if cause == nil {
				cause = errors.New("frame sink closed")
			}
			return Image{}, apperr.Internal(fmt.Errorf("no frame: %w", cause))
		}
		frame = f
	case <-timer.C:
		return Image{}, apperr.CaptureTimeout(e.timeout)
	case <-grant.Done():
		return Image{}, apperr.NoAuthorization("screen capture authorization revoked during capture")
	case <-ctx.Done():
		return Image{}, fmt.Errorf("capture cancelled: %w", ctx.Err())
	}

	packed, err := Pack(frame)
	if err != nil {
		return Image{}, apperr.Internal(err)
	}
	img, err = encodePNG(packed, frame.Format)
	if err != nil {
		return Image{}, apperr.Internal(err)
	}
	return img, nil
}
