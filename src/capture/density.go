package capture

// baseDPI is the DPI at which one logical unit is one pixel.
const baseDPI = 96

// densityFromDPI converts a reported DPI into a scale factor; unknown DPI is 1.
func densityFromDPI(dpi uint32) float64 {
	if dpi == 0 {
		return 1
	}
	return float64(dpi) / baseDPI
}
