//go:build !windows

package capture

// displayDensity is 1: kbinani/screenshot bounds and frames are in the same
// pixel grid on these platforms.
func displayDensity() float64 { return 1 }
