package tray

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"galmuri-capture/src/overlay"
)

// ErrNotReady is returned when the tray has not finished starting.
var ErrNotReady = errors.New("tray not ready")

type Config struct {
	Title     string
	Tooltip   string
	OnCapture func() // "Capture now" item
	OnExit    func()
}

// Tray is the system tray icon. It doubles as an overlay surface: the
// "Capture screen" item is the trigger control and is only visible while mounted.
type Tray struct {
	cfg          Config
	readyTimeout time.Duration
	ready        chan struct{}
	readyOnce    sync.Once

	mu      sync.Mutex
	trigger *systray.MenuItem
	onTap   func()
}

func New(cfg Config) *Tray {
	if cfg.Title == "" {
		cfg.Title = "Galmuri Capture"
	}
	return &Tray{cfg: cfg, readyTimeout: 5 * time.Second, ready: make(chan struct{})}
}

// Run blocks on the systray loop. Call it from the main goroutine.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit ends the systray loop.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetIcon(IconPNG())
	systray.SetTitle(t.cfg.Title)
	systray.SetTooltip(t.cfg.Tooltip)

	trigger := systray.AddMenuItem("Capture screen", "Capture the screen")
	trigger.Hide()
	mNow := systray.AddMenuItem("Capture now", "Capture the screen without the trigger")
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Quit the application")

	t.mu.Lock()
	t.trigger = trigger
	t.mu.Unlock()
	t.readyOnce.Do(func() { close(t.ready) })

	go func() {
		for {
			select {
			case <-trigger.ClickedCh:
				if cb := t.tapHandler(); cb != nil {
					go cb()
				}
			case <-mNow.ClickedCh:
				if t.cfg.OnCapture != nil {
					go t.cfg.OnCapture()
				}
			case <-mQuit.ClickedCh:
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {
	log.Printf("Tray: exiting")
	if t.cfg.OnExit != nil {
		t.cfg.OnExit()
	}
}

func (t *Tray) tapHandler() func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.onTap
}

func (t *Tray) waitReady() error {
	select {
	case <-t.ready:
		return nil
	case <-time.After(t.readyTimeout):
		return ErrNotReady
	}
}

// Mount shows the trigger item. The anchor is fixed by the tray itself.
func (t *Tray) Mount(p overlay.Placement, onTap func()) error {
	if err := t.waitReady(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTap = onTap
	t.trigger.Show()
	systray.SetTooltip(fmt.Sprintf("%s - capture ready", t.cfg.Title))
	log.Printf("Tray: trigger mounted (%s)", p.Anchor)
	return nil
}

func (t *Tray) Unmount() error {
	select {
	case <-t.ready:
	default:
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTap = nil
	t.trigger.Hide()
	systray.SetTooltip(t.cfg.Tooltip)
	return nil
}
