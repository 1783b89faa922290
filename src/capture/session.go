package capture

import (
	"errors"
	"fmt"
)

// Metrics are the native size and density of the captured display.
type Metrics struct {
	Width   int
	Height  int
	Density float64
}

// Surface is the buffer target a display renders into.
type Surface interface {
	Close() error
}

// FrameSink receives rendered frames. Next is closed when the sink fails or
// is closed; Err reports why.
type FrameSink interface {
	Next() <-chan Frame
	Err() error
	Close() error
}

// Display mirrors the screen into a surface until it is closed.
type Display interface {
	Close() error
}

// Backend creates the resources of a capture session.
type Backend interface {
	Metrics() (Metrics, error)
	NewSurface(m Metrics) (Surface, error)
	NewSink(s Surface, m Metrics, format PixelFormat, maxImages int) (FrameSink, error)
	NewDisplay(name string, m Metrics, sink FrameSink) (Display, error)
}

const (
	displayName = "galmuri-capture"
	maxImages   = 2
)

// session owns the surface, sink and display of one capture.
type session struct {
	metrics Metrics
	surface Surface
	sink    FrameSink
	display Display
}

func openSession(b Backend, format PixelFormat) (*session, error) {
	m, err := b.Metrics()
	if err != nil {
		return nil, fmt.Errorf("failed to read display metrics: %w", err)
	}
	s := &session{metrics: m}
	if s.surface, err = b.NewSurface(m); err != nil {
		return nil, fmt.Errorf("failed to create surface: %w", err)
	}
	if s.sink, err = b.NewSink(s.surface, m, format, maxImages); err != nil {
		err = fmt.Errorf("failed to create frame sink: %w", err)
		return nil, errors.Join(err, s.Close())
	}
	if s.display, err = b.NewDisplay(displayName, m, s.sink); err != nil {
		err = fmt.Errorf("failed to create display: %w", err)
		return nil, errors.Join(err, s.Close())
	}
	return s, nil
}

// Close releases display, sink and surface in that order.
func (s *session) Close() error {
	var errs []error
	if s.display != nil {
		errs = append(errs, s.display.Close())
		s.display = nil
	}
	if s.sink != nil {
		errs = append(errs, s.sink.Close())
		s.sink = nil
	}
	if s.surface != nil {
		errs = append(errs, s.surface.Close())
		s.surface = nil
	}
	return errors.Join(errs...)
}
