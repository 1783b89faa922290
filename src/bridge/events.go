package bridge

import (
	"crypto/rand"
	"io"
	"log"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type EventType string

const (
	EventScreenCaptured     EventType = "screen_captured"
	EventScreenshotDetected EventType = "screenshot_detected"
	EventCaptureFailed      EventType = "capture_failed"
	EventHostBackground     EventType = "host_background"
	EventHostForeground     EventType = "host_foreground"
)

// Event is pushed to every subscriber of the bridge.
type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	ImageBase64 string    `json:"imageBase64,omitempty"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	Path        string    `json:"path,omitempty"`
	DetectedAt  int64     `json:"detectedAt,omitempty"`
	Code        string    `json:"code,omitempty"`
	Message     string    `json:"message,omitempty"`
}

const subscriberBuffer = 16

// hub fans events out to subscribers without blocking the publisher.
type hub struct {
	mu      sync.Mutex
	entropy io.Reader
	subs    map[chan Event]struct{}
	closed  bool
}

func newHub() *hub {
	return &hub{
		entropy: ulid.Monotonic(rand.Reader, 0),
		subs:    make(map[chan Event]struct{}),
	}
}

func (h *hub) subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan Event, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

func (h *hub) publish(ev Event) Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	ev.ID = ulid.MustNew(ulid.Timestamp(time.Now()), h.entropy).String()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			log.Printf("Bridge: subscriber full, dropped %s event", ev.Type)
		}
	}
	return ev
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
	}
	h.subs = nil
}
