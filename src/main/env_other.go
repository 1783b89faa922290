//go:build !windows

package main

import (
	"log"

	"github.com/kbinani/screenshot"
)

func enableDPIAwareness() {}

func logMonitorConfiguration() {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		log.Printf("MONITOR: no active displays")
		return
	}
	b := screenshot.GetDisplayBounds(0)
	log.Printf("MONITOR: %d monitor(s), primary %dx%d", n, b.Dx(), b.Dy())
}
