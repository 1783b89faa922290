package bridge

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"galmuri-capture/src/api"
	"galmuri-capture/src/apperr"
	"galmuri-capture/src/capture"
	"galmuri-capture/src/overlay"
	"galmuri-capture/src/permission"
	"galmuri-capture/src/watcher"
	"galmuri-capture/src/worker"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type frameSink struct {
	nopCloser
	ch chan capture.Frame
}

func (s *frameSink) Next() <-chan capture.Frame { return s.ch }
func (s *frameSink) Err() error                 { return nil }

// staticBackend serves one solid frame per session, or none when stalled.
type staticBackend struct {
	w, h    int
	stalled bool
}

func (b *staticBackend) Metrics() (capture.Metrics, error) {
	return capture.Metrics{Width: b.w, Height: b.h, Density: 1}, nil
}

func (b *staticBackend) NewSurface(capture.Metrics) (capture.Surface, error) { return nopCloser{}, nil }

func (b *staticBackend) NewSink(_ capture.Surface, m capture.Metrics, f capture.PixelFormat, _ int) (capture.FrameSink, error) {
	s := &frameSink{ch: make(chan capture.Frame, 1)}
	if !b.stalled {
		pix := make([]byte, m.Width*m.Height*4)
		for i := range pix {
			pix[i] = 0x7f
		}
		s.ch <- capture.Frame{Width: m.Width, Height: m.Height, Stride: m.Width * 4, Format: f, Pix: pix}
	}
	return s, nil
}

func (b *staticBackend) NewDisplay(string, capture.Metrics, capture.FrameSink) (capture.Display, error) {
	return nopCloser{}, nil
}

type overlayAccess struct {
	mu      sync.Mutex
	granted bool
}

func (a *overlayAccess) Granted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.granted
}

func (a *overlayAccess) OpenSettings(context.Context) error { return nil }

func (a *overlayAccess) grant() {
	a.mu.Lock()
	a.granted = true
	a.mu.Unlock()
}

type countingPrompter struct {
	mu       sync.Mutex
	calls    int
	decision permission.Decision
	gate     chan struct{}
	entered  chan struct{}
}

func (p *countingPrompter) PromptCapture(ctx context.Context) (permission.Decision, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.entered != nil {
		p.entered <- struct{}{}
	}
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return permission.Declined, ctx.Err()
		}
	}
	return p.decision, nil
}

func (p *countingPrompter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fixture struct {
	bridge   *Bridge
	surface  *overlay.VirtualSurface
	access   *overlayAccess
	prompter *countingPrompter
	backend  *staticBackend
	events   <-chan Event
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		surface:  overlay.NewVirtualSurface(),
		access:   &overlayAccess{},
		prompter: &countingPrompter{decision: permission.Approved},
		backend:  &staticBackend{w: 6, h: 4},
	}
	opts.Broker = permission.NewBroker(permission.Options{Prompter: f.prompter, Overlay: f.access})
	opts.Backend = f.backend
	opts.Surface = f.surface
	if opts.CaptureTimeout == 0 {
		opts.CaptureTimeout = time.Second
	}
	f.bridge = New(opts)
	events, cancel := f.bridge.Subscribe()
	f.events = events
	t.Cleanup(func() {
		cancel()
		f.bridge.Close()
	})
	return f
}

func (f *fixture) next(t *testing.T, want EventType) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-f.events:
			if ev.Type == want {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", want)
		}
	}
}

func TestEndToEndOverlayCapture(t *testing.T) {
	f := newFixture(t, Options{})
	b := f.bridge
	ctx := context.Background()

	granted, err := b.Call(ctx, MethodCheckOverlayPermission)
	require.NoError(t, err)
	assert.Equal(t, false, granted)

	res, err := b.Call(ctx, MethodRequestOverlayPermission)
	require.NoError(t, err)
	assert.Equal(t, ResultPermissionRequested, res)

	f.access.grant()
	res, err = b.Call(ctx, MethodRequestOverlayPermission)
	require.NoError(t, err)
	assert.Equal(t, ResultPermissionGranted, res)

	res, err = b.Call(ctx, MethodShowOverlay)
	require.NoError(t, err)
	assert.Equal(t, ResultOverlayShown, res)
	assert.Equal(t, 1, f.prompter.count())
	assert.Equal(t, ShowingOverlay, b.State())
	assert.True(t, f.surface.Mounted())
	f.next(t, EventHostBackground)

	res, err = b.Call(ctx, MethodShowOverlay)
	require.NoError(t, err)
	assert.Equal(t, ResultOverlayShown, res)
	assert.Equal(t, 1, f.prompter.count(), "cached grant is reused")
	assert.Equal(t, 1, f.surface.Mounts())

	require.NoError(t, f.surface.Tap())
	ev := f.next(t, EventScreenCaptured)
	assert.Equal(t, 6, ev.Width)
	assert.Equal(t, 4, ev.Height)
	assert.NotEmpty(t, ev.ImageBase64)
	assert.NotEmpty(t, ev.ID)
	_, err = base64.StdEncoding.DecodeString(ev.ImageBase64)
	require.NoError(t, err)
	f.next(t, EventHostForeground)

	assert.False(t, f.surface.Mounted())
	assert.Equal(t, Idle, b.State())
}

func TestShowOverlayDenied(t *testing.T) {
	f := newFixture(t, Options{})
	f.access.grant()
	f.prompter.decision = permission.Declined

	_, err := f.bridge.Call(context.Background(), MethodShowOverlay)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodePermissionDenied))
	assert.Equal(t, Denied, f.bridge.State())
	assert.False(t, f.surface.Mounted())
}

func TestShowOverlayWithoutOverlayPermission(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.bridge.Call(context.Background(), MethodShowOverlay)
	assert.True(t, apperr.Is(err, apperr.CodePermissionDenied))
	assert.Zero(t, f.prompter.count())
}

func TestHideOverlay(t *testing.T) {
	f := newFixture(t, Options{})
	f.access.grant()
	ctx := context.Background()

	res, err := f.bridge.Call(ctx, MethodHideOverlay)
	require.NoError(t, err)
	assert.Equal(t, ResultOverlayHidden, res)
	assert.Equal(t, Idle, f.bridge.State())

	_, err = f.bridge.Call(ctx, MethodShowOverlay)
	require.NoError(t, err)
	_, err = f.bridge.Call(ctx, MethodHideOverlay)
	require.NoError(t, err)
	assert.Equal(t, GrantedNoOverlay, f.bridge.State())
	assert.False(t, f.surface.Mounted())
}

func TestConcurrentSameKindIsBusy(t *testing.T) {
	f := newFixture(t, Options{})
	f.prompter.gate = make(chan struct{})
	f.prompter.entered = make(chan struct{}, 1)

	first := make(chan error, 1)
	go func() {
		_, err := f.bridge.Call(context.Background(), MethodRequestScreenCapture)
		first <- err
	}()
	<-f.prompter.entered
	assert.Equal(t, AwaitingProjectionGrant, f.bridge.State())

	_, err := f.bridge.Call(context.Background(), MethodRequestScreenCapture)
	assert.True(t, apperr.Is(err, apperr.CodeBusy))

	ok, err := f.bridge.Call(context.Background(), MethodCheckOverlayPermission)
	require.NoError(t, err, "other kinds are not blocked")
	assert.Equal(t, false, ok)

	close(f.prompter.gate)
	require.NoError(t, <-first)
	assert.Equal(t, GrantedNoOverlay, f.bridge.State())
}

func TestTapTimeoutKeepsOverlay(t *testing.T) {
	f := newFixture(t, Options{CaptureTimeout: 20 * time.Millisecond})
	f.access.grant()
	f.backend.stalled = true

	_, err := f.bridge.Call(context.Background(), MethodShowOverlay)
	require.NoError(t, err)

	err = f.bridge.Tap(context.Background())
	assert.True(t, apperr.Is(err, apperr.CodeCaptureTimeout))
	ev := f.next(t, EventCaptureFailed)
	assert.Equal(t, string(apperr.CodeCaptureTimeout), ev.Code)
	assert.True(t, f.surface.Mounted())
	assert.Equal(t, ShowingOverlay, f.bridge.State())
}

func TestUnknownMethod(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.bridge.Call(context.Background(), "startRecording")
	assert.True(t, apperr.Is(err, apperr.CodeNotImplemented))
}

type recordingUploads struct {
	mu   sync.Mutex
	reqs []api.CaptureRequest
}

func (r *recordingUploads) Submit(_ context.Context, req api.CaptureRequest, _ worker.ResultCallback) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return true
}

type recordingClipboard struct{ writes int }

func (c *recordingClipboard) WriteImage([]byte) error { c.writes++; return nil }

func TestCaptureOnceSinks(t *testing.T) {
	uploads := &recordingUploads{}
	clip := &recordingClipboard{}
	f := newFixture(t, Options{
		Uploads:        uploads,
		Clipboard:      clip,
		Upload:         api.CaptureRequest{UserID: "3f2c6a4e-8b1d-4c55-9e0a-1b2c3d4e5f60", Platform: api.PlatformMobileApp},
		UploadDetected: true,
	})

	res, err := f.bridge.CaptureOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, res.Width)
	assert.NotEmpty(t, res.ImageBase64)
	f.next(t, EventScreenCaptured)
	assert.Equal(t, GrantedNoOverlay, f.bridge.State())
	assert.Equal(t, 1, clip.writes)

	f.bridge.NotifyScreenshot(watcher.Event{Path: "/tmp/Screenshots/a.png", DetectedAt: 42, Raw: []byte("png")})
	ev := f.next(t, EventScreenshotDetected)
	assert.Equal(t, "/tmp/Screenshots/a.png", ev.Path)
	assert.Equal(t, int64(42), ev.DetectedAt)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("png")), ev.ImageBase64)

	uploads.mu.Lock()
	defer uploads.mu.Unlock()
	require.Len(t, uploads.reqs, 2)
	assert.Equal(t, res.ImageBase64, uploads.reqs[0].ImageData)
	assert.Equal(t, "Screen capture", uploads.reqs[0].PageTitle)
	assert.Equal(t, "Screenshot", uploads.reqs[1].PageTitle)
}

func TestTriggerFallsBackToCaptureOnce(t *testing.T) {
	f := newFixture(t, Options{})
	require.NoError(t, f.bridge.Trigger(context.Background()))
	f.next(t, EventScreenCaptured)
	assert.Equal(t, 1, f.prompter.count())
}
