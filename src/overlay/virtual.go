package overlay

import (
	"errors"
	"sync"
)

// ErrNotMounted is returned when a virtual surface is tapped while empty.
var ErrNotMounted = errors.New("no control mounted")

// VirtualSurface holds the control without drawing it. Taps come from the
// hotkey or the bridge.
type VirtualSurface struct {
	mu        sync.Mutex
	onTap     func()
	placement Placement
	mounts    int
}

func NewVirtualSurface() *VirtualSurface { return &VirtualSurface{} }

func (v *VirtualSurface) Mount(p Placement, onTap func()) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.onTap != nil {
		return nil
	}
	v.onTap = onTap
	v.placement = p
	v.mounts++
	return nil
}

func (v *VirtualSurface) Unmount() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onTap = nil
	return nil
}

func (v *VirtualSurface) Mounted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.onTap != nil
}

// Mounts counts how many times a control was attached.
func (v *VirtualSurface) Mounts() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mounts
}

func (v *VirtualSurface) Placement() Placement {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.placement
}

// Tap invokes the mounted control's callback.
func (v *VirtualSurface) Tap() error {
	v.mu.Lock()
	cb := v.onTap
	v.mu.Unlock()
	if cb == nil {
		return ErrNotMounted
	}
	cb()
	return nil
}
