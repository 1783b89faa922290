package permission

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"runtime"
)

// OverlayAccess probes and requests the permission that lets the trigger
// control appear above other applications.
type OverlayAccess interface {
	Granted() bool
	OpenSettings(ctx context.Context) error
}

// NewOverlayAccess returns the env override backed by the platform default.
// Desktop shells allow tray and hotkey triggers unless the override denies them.
func NewOverlayAccess(lookup LookupEnvFunc) OverlayAccess {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &envOverlayAccess{lookup: lookup, run: runSettings}
}

type envOverlayAccess struct {
	lookup LookupEnvFunc
	run    func(ctx context.Context, name string, args ...string) error
}

func (a *envOverlayAccess) Granted() bool {
	value, ok := a.lookup(OverlayEnvVar)
	if !ok {
		return true
	}
	return interpretFlag(value) != flagDenied
}

func (a *envOverlayAccess) OpenSettings(ctx context.Context) error {
	name, args := settingsCommand(runtime.GOOS)
	if name == "" {
		return fmt.Errorf("no settings page for %s", runtime.GOOS)
	}
	log.Printf("Permission: opening overlay settings via %s", name)
	return a.run(ctx, name, args...)
}

func settingsCommand(goos string) (string, []string) {
	switch goos {
	case "windows":
		// the trigger lives in the notification area, configured on the taskbar page
		return "explorer", []string{"ms-settings:taskbar"}
	case "darwin":
		return "open", []string{"x-apple.systempreferences:com.apple.preference.security?Privacy_Accessibility"}
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{"settings://privacy"}
	default:
		return "", nil
	}
}

func runSettings(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Start()
}
