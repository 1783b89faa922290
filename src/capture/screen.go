package capture

import (
	"context"
	"fmt"
	"image"
	"log"
	"sync"

	"github.com/kbinani/screenshot"
)

// ScreenBackend captures one active display through kbinani/screenshot.
type ScreenBackend struct {
	Display int
}

func (b ScreenBackend) bounds() (image.Rectangle, error) {
	n := screenshot.NumActiveDisplays()
	if n <= 0 {
		return image.Rectangle{}, fmt.Errorf("no active displays")
	}
	idx := b.Display
	if idx < 0 || idx >= n {
		log.Printf("Capture: display %d out of range (%d active), using primary", idx, n)
		idx = 0
	}
	return screenshot.GetDisplayBounds(idx), nil
}

func (b ScreenBackend) Metrics() (Metrics, error) {
	r, err := b.bounds()
	if err != nil {
		return Metrics{}, err
	}
	return Metrics{Width: r.Dx(), Height: r.Dy(), Density: displayDensity()}, nil
}

type screenSurface struct {
	rect image.Rectangle
}

func (*screenSurface) Close() error { return nil }

func (b ScreenBackend) NewSurface(Metrics) (Surface, error) {
	r, err := b.bounds()
	if err != nil {
		return nil, err
	}
	return &screenSurface{rect: r}, nil
}

type screenSink struct {
	rect   image.Rectangle
	format PixelFormat
	frames chan Frame

	mu     sync.Mutex
	err    error
	closed bool
}

func (b ScreenBackend) NewSink(s Surface, _ Metrics, format PixelFormat, maxImages int) (FrameSink, error) {
	surface, ok := s.(*screenSurface)
	if !ok {
		return nil, fmt.Errorf("unexpected surface type %T", s)
	}
	if maxImages <= 0 {
		maxImages = 1
	}
	return &screenSink{rect: surface.rect, format: format, frames: make(chan Frame, maxImages)}, nil
}

func (s *screenSink) Next() <-chan Frame { return s.frames }

func (s *screenSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *screenSink) push(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.frames <- f:
	default:
	}
}

func (s *screenSink) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.err = err
	s.closed = true
	close(s.frames)
}

func (s *screenSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.frames)
	}
	return nil
}

type screenDisplay struct {
	cancel context.CancelFunc
}

func (b ScreenBackend) NewDisplay(_ string, _ Metrics, sink FrameSink) (Display, error) {
	s, ok := sink.(*screenSink)
	if !ok {
		return nil, fmt.Errorf("unexpected sink type %T", sink)
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &screenDisplay{cancel: cancel}
	go func() {
		img, err := screenshot.CaptureRect(s.rect)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.fail(fmt.Errorf("capture display: %w", err))
			return
		}
		s.push(frameFromRGBA(img, s.format))
	}()
	return d, nil
}

// Close does not wait for an in-flight grab; a late frame is dropped by the closed sink.
func (d *screenDisplay) Close() error {
	d.cancel()
	return nil
}

func frameFromRGBA(img *image.RGBA, format PixelFormat) Frame {
	f := Frame{
		Width:  img.Rect.Dx(),
		Height: img.Rect.Dy(),
		Stride: img.Stride,
		Format: RGBA8888,
		Pix:    img.Pix,
	}
	if format == BGRA8888 {
		pix := make([]byte, len(img.Pix))
		copy(pix, img.Pix)
		for i := 0; i+3 < len(pix); i += bytesPerPixel {
			pix[i], pix[i+2] = pix[i+2], pix[i]
		}
		f.Pix = pix
		f.Format = BGRA8888
	}
	return f
}
