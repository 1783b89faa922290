package hotkey

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	gohook "github.com/robotn/gohook"
)

// repeatGuard drops activations that arrive while the combination is held down.
const repeatGuard = 400 * time.Millisecond

var (
	listenMu sync.Mutex
	running  bool
)

// Listen registers the global hotkey and invokes callback on each activation.
// The returned stop func ends the hook; only one listener may run at a time.
func Listen(hotkeyConfig string, callback func()) (func(), error) {
	keys, err := Parse(hotkeyConfig)
	if err != nil {
		return nil, err
	}

	listenMu.Lock()
	defer listenMu.Unlock()
	if running {
		return nil, fmt.Errorf("hotkey listener already running")
	}

	fire := debounce(callback, repeatGuard, time.Now)
	gohook.Register(gohook.KeyDown, keys, func(gohook.Event) {
		log.Printf("Hotkey activated: %s", hotkeyConfig)
		fire()
	})

	evChan := gohook.Start()
	if evChan == nil {
		return nil, fmt.Errorf("gohook.Start() returned nil channel")
	}
	running = true
	done := gohook.Process(evChan)
	go func() {
		<-done
		log.Printf("Hotkey event loop ended")
	}()
	log.Printf("Hotkey listener configured for: %s (%v)", hotkeyConfig, keys)

	var once sync.Once
	return func() {
		once.Do(func() {
			gohook.End()
			listenMu.Lock()
			running = false
			listenMu.Unlock()
		})
	}, nil
}

// Parse normalizes a hotkey string and checks every key is known to the hook.
func Parse(hotkeyConfig string) ([]string, error) {
	keys := parseHotkey(hotkeyConfig)
	if len(keys) == 0 {
		return nil, fmt.Errorf("empty hotkey %q", hotkeyConfig)
	}
	hasKey := false
	for _, k := range keys {
		if _, ok := gohook.Keycode[k]; !ok {
			return nil, fmt.Errorf("unknown key %q in hotkey %q", k, hotkeyConfig)
		}
		if !isModifier(k) {
			hasKey = true
		}
	}
	if !hasKey {
		return nil, fmt.Errorf("hotkey %q has no non-modifier key", hotkeyConfig)
	}
	return keys, nil
}

// parseHotkey converts a hotkey string like "Ctrl+Shift+s" to normalized key names
func parseHotkey(hotkeyConfig string) []string {
	parts := strings.Split(strings.ToLower(hotkeyConfig), "+")
	var keys []string

	for _, part := range parts {
		part = strings.TrimSpace(part)
		switch part {
		case "":
			continue
		case "ctrl", "control":
			keys = append(keys, "ctrl")
		case "alt", "option":
			keys = append(keys, "alt")
		case "shift":
			keys = append(keys, "shift")
		case "win", "cmd", "super", "meta":
			keys = append(keys, "cmd")
		case "escape":
			keys = append(keys, "esc")
		case "return":
			keys = append(keys, "enter")
		default:
			keys = append(keys, part)
		}
	}

	return keys
}

func isModifier(k string) bool {
	switch k {
	case "ctrl", "alt", "shift", "cmd":
		return true
	}
	return false
}

func debounce(fn func(), interval time.Duration, now func() time.Time) func() {
	var mu sync.Mutex
	var last time.Time
	return func() {
		mu.Lock()
		t := now()
		if !last.IsZero() && t.Sub(last) < interval {
			mu.Unlock()
			return
		}
		last = t
		mu.Unlock()
		if fn != nil {
			fn()
		}
	}
}
