//go:build windows

package capture

import "golang.org/x/sys/windows"

var procGetDpiForSystem = windows.NewLazySystemDLL("user32.dll").NewProc("GetDpiForSystem")

// displayDensity reads the system DPI. The process is DPI aware, so display
// bounds are already in physical pixels and this only reports the scale.
func displayDensity() float64 {
	if err := procGetDpiForSystem.Find(); err != nil {
		return 1
	}
	dpi, _, _ := procGetDpiForSystem.Call()
	return densityFromDPI(uint32(dpi))
}
