package overlay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"galmuri-capture/src/apperr"
	"galmuri-capture/src/permission"
)

type fakeHost struct {
	mu          sync.Mutex
	backgrounds int
	foregrounds int
}

func (h *fakeHost) Background() { h.mu.Lock(); h.backgrounds++; h.mu.Unlock() }
func (h *fakeHost) Foreground() { h.mu.Lock(); h.foregrounds++; h.mu.Unlock() }

func grant(t *testing.T) *permission.Grant {
	t.Helper()
	b := permission.NewBroker(permission.Options{
		Prompter: permission.PrompterFunc(func(context.Context) (permission.Decision, error) {
			return permission.Approved, nil
		}),
	})
	g, err := b.RequestCaptureAuthorization(context.Background())
	require.NoError(t, err)
	return g
}

func TestShowIsIdempotent(t *testing.T) {
	surface := NewVirtualSurface()
	host := &fakeHost{}
	c := NewController(Options{Surface: surface, Host: host})
	g := grant(t)

	first, err := c.Show(g)
	require.NoError(t, err)
	second, err := c.Show(g)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, surface.Mounts())
	assert.Equal(t, DefaultPlacement, surface.Placement())
	assert.Equal(t, 1, host.backgrounds)
	assert.True(t, c.Visible())
}

func TestShowRequiresPermissionAndGrant(t *testing.T) {
	surface := NewVirtualSurface()
	denied := NewController(Options{Surface: surface, Permitted: func() bool { return false }})
	h, err := denied.Show(grant(t))
	assert.Nil(t, h)
	assert.True(t, apperr.Is(err, apperr.CodePermissionDenied))
	assert.False(t, surface.Mounted())

	c := NewController(Options{Surface: surface})
	revoked := grant(t)
	revoked.Revoke()
	_, err = c.Show(revoked)
	assert.True(t, apperr.Is(err, apperr.CodeNoAuthorization))
	_, err = c.Show(nil)
	assert.True(t, apperr.Is(err, apperr.CodeNoAuthorization))
	assert.Zero(t, surface.Mounts())
}

func TestHideAlwaysSafe(t *testing.T) {
	surface := NewVirtualSurface()
	c := NewController(Options{Surface: surface})
	require.NoError(t, c.Hide())

	_, err := c.Show(grant(t))
	require.NoError(t, err)
	require.NoError(t, c.Hide())
	require.NoError(t, c.Hide())
	assert.False(t, c.Visible())
	assert.False(t, surface.Mounted())

	_, err = c.Show(grant(t))
	require.NoError(t, err)
	assert.Equal(t, 2, surface.Mounts())
}

func TestTapRunsCaptureOnce(t *testing.T) {
	surface := NewVirtualSurface()
	release := make(chan struct{})
	started := make(chan struct{})
	calls := 0
	var c *Controller
	c = NewController(Options{
		Surface: surface,
		Capture: func(ctx context.Context, g *permission.Grant) error {
			calls++
			close(started)
			<-release
			return c.Hide()
		},
	})
	_, err := c.Show(grant(t))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- surface.Tap() }()
	<-started
	assert.True(t, c.Capturing())
	require.NoError(t, c.Tap(context.Background()))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, calls)
	assert.False(t, c.Visible())
	assert.ErrorIs(t, surface.Tap(), ErrNotMounted)
}

func TestTapErrorsReported(t *testing.T) {
	var reported error
	captureErr := apperr.CaptureTimeout(time.Second)
	c := NewController(Options{
		Capture: func(context.Context, *permission.Grant) error { return captureErr },
		OnError: func(err error) { reported = err },
	})

	err := c.Tap(context.Background())
	assert.True(t, apperr.Is(err, apperr.CodeInvalidRequest))

	_, err = c.Show(grant(t))
	require.NoError(t, err)
	err = c.Tap(context.Background())
	assert.True(t, errors.Is(err, captureErr))
	assert.Same(t, captureErr, reported)
	assert.True(t, c.Visible())
}

// slowSurface blocks Mount until released, like a tray that is not ready yet.
type slowSurface struct {
	*VirtualSurface
	entered  chan struct{}
	release  chan struct{}
	unmounts int32
}

func newSlowSurface() *slowSurface {
	return &slowSurface{VirtualSurface: NewVirtualSurface(), entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (s *slowSurface) Mount(p Placement, onTap func()) error {
	s.entered <- struct{}{}
	<-s.release
	return s.VirtualSurface.Mount(p, onTap)
}

func (s *slowSurface) Unmount() error {
	atomic.AddInt32(&s.unmounts, 1)
	return s.VirtualSurface.Unmount()
}

func TestSlowMountDoesNotBlockController(t *testing.T) {
	surface := newSlowSurface()
	c := NewController(Options{Surface: surface})

	g := grant(t)
	shown := make(chan error, 1)
	go func() {
		_, err := c.Show(g)
		shown <- err
	}()
	<-surface.entered

	assert.False(t, c.Visible())
	assert.True(t, apperr.Is(c.Tap(context.Background()), apperr.CodeInvalidRequest))

	close(surface.release)
	require.NoError(t, <-shown)
	assert.True(t, c.Visible())
	assert.True(t, surface.Mounted())
}

func TestHideDuringMountCancelsShow(t *testing.T) {
	surface := newSlowSurface()
	host := &fakeHost{}
	c := NewController(Options{Surface: surface, Host: host})

	g := grant(t)
	shown := make(chan error, 1)
	go func() {
		_, err := c.Show(g)
		shown <- err
	}()
	<-surface.entered

	require.NoError(t, c.Hide())
	close(surface.release)

	err := <-shown
	assert.True(t, apperr.Is(err, apperr.CodeInvalidRequest), "err = %v", err)
	assert.False(t, c.Visible())
	assert.False(t, surface.Mounted())
	assert.Equal(t, int32(1), atomic.LoadInt32(&surface.unmounts))
	assert.Zero(t, host.backgrounds)
}

func TestConcurrentShowWaitsForMount(t *testing.T) {
	surface := newSlowSurface()
	c := NewController(Options{Surface: surface})
	g := grant(t)

	first := make(chan *Handle, 1)
	go func() {
		h, _ := c.Show(g)
		first <- h
	}()
	<-surface.entered

	second := make(chan *Handle, 1)
	go func() {
		h, _ := c.Show(g)
		second <- h
	}()

	close(surface.release)
	h1 := <-first
	h2 := <-second
	require.NotNil(t, h1)
	assert.Same(t, h1, h2)
	assert.Equal(t, 1, surface.Mounts())
}
