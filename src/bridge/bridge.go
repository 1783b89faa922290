package bridge

import (
	"context"
	"encoding/base64"
	"log"
	"sync"
	"time"

	"galmuri-capture/src/api"
	"galmuri-capture/src/apperr"
	"galmuri-capture/src/capture"
	"galmuri-capture/src/overlay"
	"galmuri-capture/src/permission"
	"galmuri-capture/src/watcher"
	"galmuri-capture/src/worker"
)

// Method names accepted by Call.
const (
	MethodRequestScreenCapture     = "requestScreenCapture"
	MethodShowOverlay              = "showOverlay"
	MethodHideOverlay              = "hideOverlay"
	MethodCheckOverlayPermission   = "checkOverlayPermission"
	MethodRequestOverlayPermission = "requestOverlayPermission"
	MethodCaptureOnce              = "captureOnce"
)

// Result strings returned by Call.
const (
	ResultPermissionGranted   = "permission_granted"
	ResultPermissionRequested = "permission_requested"
	ResultOverlayShown        = "overlay_shown"
	ResultOverlayHidden       = "overlay_hidden"
)

// ImageWriter copies encoded images somewhere outside the process.
type ImageWriter interface {
	WriteImage(png []byte) error
}

// Uploads queues captures for the backend. *worker.Pool satisfies it.
type Uploads interface {
	Submit(ctx context.Context, req api.CaptureRequest, cb worker.ResultCallback) bool
}

// CaptureResult is returned by captureOnce.
type CaptureResult struct {
	ImageBase64 string `json:"imageBase64"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

type Options struct {
	Broker         *permission.Broker
	Backend        capture.Backend
	Surface        overlay.Surface
	CaptureTimeout time.Duration
	Clipboard      ImageWriter
	Uploads        Uploads
	// Upload is the template for uploaded captures; uploads are skipped
	// when UserID is empty.
	Upload         api.CaptureRequest
	UploadDetected bool
}

// Bridge exposes the capture workflow to a host over method calls and events.
type Bridge struct {
	broker    *permission.Broker
	engine    *capture.Engine
	overlay   *overlay.Controller
	clipboard ImageWriter
	uploads   Uploads
	upload    api.CaptureRequest
	detected  bool
	events    *hub
	slots     map[string]chan struct{}

	mu    sync.Mutex
	state State
}

func New(opts Options) *Bridge {
	b := &Bridge{
		broker:    opts.Broker,
		clipboard: opts.Clipboard,
		uploads:   opts.Uploads,
		upload:    opts.Upload,
		detected:  opts.UploadDetected,
		events:    newHub(),
		slots:     make(map[string]chan struct{}),
	}
	if b.broker == nil {
		b.broker = permission.NewBroker(permission.Options{})
	}
	for _, m := range []string{
		MethodRequestScreenCapture, MethodShowOverlay, MethodHideOverlay,
		MethodCheckOverlayPermission, MethodRequestOverlayPermission, MethodCaptureOnce,
	} {
		b.slots[m] = make(chan struct{}, 1)
	}
	b.overlay = overlay.NewController(overlay.Options{
		Surface:   opts.Surface,
		Host:      b,
		Permitted: b.broker.CheckOverlayPermission,
		Capture:   b.captureFromTap,
		OnError:   b.publishFailure,
	})
	b.engine = capture.NewEngine(capture.Options{
		Backend: opts.Backend,
		Timeout: opts.CaptureTimeout,
		Sink:    b,
		Overlay: b.overlay,
		Host:    b,
	})
	return b
}

// Call dispatches one method. A second call of the same method while the
// first is still running fails with BUSY.
func (b *Bridge) Call(ctx context.Context, method string) (any, error) {
	slot, ok := b.slots[method]
	if !ok {
		return nil, apperr.NotImplemented(method)
	}
	select {
	case slot <- struct{}{}:
		defer func() { <-slot }()
	default:
		return nil, apperr.Busy(method)
	}

	switch method {
	case MethodRequestScreenCapture:
		return b.requestScreenCapture(ctx)
	case MethodShowOverlay:
		return b.showOverlay(ctx)
	case MethodHideOverlay:
		return b.hideOverlay()
	case MethodCheckOverlayPermission:
		return b.broker.CheckOverlayPermission(), nil
	case MethodRequestOverlayPermission:
		return b.requestOverlayPermission(ctx)
	case MethodCaptureOnce:
		return b.captureOnce(ctx)
	}
	return nil, apperr.NotImplemented(method)
}

func (b *Bridge) requestScreenCapture(ctx context.Context) (any, error) {
	if _, err := b.authorize(ctx); err != nil {
		return nil, err
	}
	if !b.overlay.Visible() {
		b.setState(GrantedNoOverlay)
	}
	return ResultPermissionGranted, nil
}

// authorize returns the cached grant or runs the consent prompt.
func (b *Bridge) authorize(ctx context.Context) (*permission.Grant, error) {
	if g := b.broker.Grant(); g != nil {
		return g, nil
	}
	prev := b.State()
	b.setState(AwaitingProjectionGrant)
	g, err := b.broker.RequestCaptureAuthorization(ctx)
	if err != nil {
		if apperr.Is(err, apperr.CodePermissionDenied) {
			b.setState(Denied)
		} else {
			b.setState(prev)
		}
		return nil, err
	}
	return g, nil
}

func (b *Bridge) showOverlay(ctx context.Context) (any, error) {
	if !b.broker.CheckOverlayPermission() {
		return nil, apperr.PermissionDenied("overlay permission not granted")
	}
	g, err := b.authorize(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := b.overlay.Show(g); err != nil {
		b.setState(GrantedNoOverlay)
		return nil, err
	}
	b.setState(ShowingOverlay)
	return ResultOverlayShown, nil
}

func (b *Bridge) hideOverlay() (any, error) {
	if err := b.overlay.Hide(); err != nil {
		return nil, apperr.Internal(err)
	}
	if b.State() != Capturing {
		b.settle()
	}
	return ResultOverlayHidden, nil
}

func (b *Bridge) requestOverlayPermission(ctx context.Context) (any, error) {
	res, err := b.broker.RequestOverlayPermission(ctx)
	if err != nil {
		return nil, err
	}
	if res.Granted {
		return ResultPermissionGranted, nil
	}
	return ResultPermissionRequested, nil
}

func (b *Bridge) captureOnce(ctx context.Context) (any, error) {
	g, err := b.authorize(ctx)
	if err != nil {
		return nil, err
	}
	prev := b.State()
	if prev == Denied || prev == AwaitingProjectionGrant {
		prev = GrantedNoOverlay
	}
	b.setState(Capturing)
	img, err := b.engine.Capture(ctx, g)
	if err != nil {
		b.setState(prev)
		b.publishFailure(err)
		return nil, err
	}
	b.settle()
	return CaptureResult{ImageBase64: img.Base64(), Width: img.Width, Height: img.Height}, nil
}

// CaptureOnce authorizes if needed and captures without showing the overlay.
func (b *Bridge) CaptureOnce(ctx context.Context) (CaptureResult, error) {
	res, err := b.Call(ctx, MethodCaptureOnce)
	if err != nil {
		return CaptureResult{}, err
	}
	return res.(CaptureResult), nil
}

func (b *Bridge) captureFromTap(ctx context.Context, g *permission.Grant) error {
	b.setState(Capturing)
	if _, err := b.engine.Capture(ctx, g); err != nil {
		b.setState(ShowingOverlay)
		return err
	}
	b.setState(Idle)
	return nil
}

// Tap presses the visible trigger control.
func (b *Bridge) Tap(ctx context.Context) error {
	return b.overlay.Tap(ctx)
}

// Trigger taps the overlay when it is visible and captures directly otherwise.
func (b *Bridge) Trigger(ctx context.Context) error {
	if b.overlay.Visible() {
		return b.Tap(ctx)
	}
	_, err := b.CaptureOnce(ctx)
	return err
}

// Deliver receives captured images from the engine.
func (b *Bridge) Deliver(img capture.Image) {
	encoded := img.Base64()
	b.events.publish(Event{Type: EventScreenCaptured, ImageBase64: encoded, Width: img.Width, Height: img.Height})
	if b.clipboard != nil {
		if err := b.clipboard.WriteImage(img.Encoded); err != nil {
			log.Printf("Bridge: clipboard copy failed: %v", err)
		}
	}
	b.submitUpload(encoded, "Screen capture")
}

// NotifyScreenshot forwards a screenshot found by the watcher.
func (b *Bridge) NotifyScreenshot(ev watcher.Event) {
	encoded := base64.StdEncoding.EncodeToString(ev.Raw)
	b.events.publish(Event{Type: EventScreenshotDetected, ImageBase64: encoded, Path: ev.Path, DetectedAt: ev.DetectedAt})
	if b.detected {
		b.submitUpload(encoded, "Screenshot")
	}
}

func (b *Bridge) submitUpload(encoded, title string) {
	if b.uploads == nil || b.upload.UserID == "" {
		return
	}
	req := b.upload
	req.ImageData = encoded
	if req.PageTitle == "" {
		req.PageTitle = title
	}
	if !b.uploads.Submit(context.Background(), req, nil) {
		log.Printf("Bridge: upload queue full, capture not uploaded")
	}
}

func (b *Bridge) publishFailure(err error) {
	e := apperr.From(err)
	b.events.publish(Event{Type: EventCaptureFailed, Code: string(e.Code), Message: e.Message})
}

// Background is called when the overlay takes over.
func (b *Bridge) Background() {
	b.events.publish(Event{Type: EventHostBackground})
}

// Foreground is called after a successful capture.
func (b *Bridge) Foreground() {
	b.events.publish(Event{Type: EventHostForeground})
}

// Subscribe returns a channel of bridge events and its cancel func.
func (b *Bridge) Subscribe() (<-chan Event, func()) {
	return b.events.subscribe()
}

func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bridge) setState(s State) {
	b.mu.Lock()
	prev := b.state
	b.state = s
	b.mu.Unlock()
	if prev != s {
		log.Printf("Bridge: %s -> %s", prev, s)
	}
}

// settle picks the resting state from the overlay and grant.
func (b *Bridge) settle() {
	switch {
	case b.overlay.Visible():
		b.setState(ShowingOverlay)
	case b.broker.Grant() != nil:
		b.setState(GrantedNoOverlay)
	default:
		b.setState(Idle)
	}
}

// Close hides the overlay, drops the grant and ends all subscriptions.
func (b *Bridge) Close() {
	_ = b.overlay.Hide()
	b.broker.Revoke()
	b.events.close()
	b.setState(Idle)
}
