package notification

import (
	"fmt"
	"log"
)

const maxMessageLen = 200

// ShowCaptureFailed displays a non-blocking popup for a failed capture.
func ShowCaptureFailed(code, message string) {
	text := Format(code, message)
	go func() {
		if err := showPopup("Galmuri Capture", text); err != nil {
			log.Printf("Failed to show notification: %v", err)
		}
	}()
}

// Format renders a capture failure for display, truncated to 200 characters.
func Format(code, message string) string {
	var text string
	switch code {
	case "PERMISSION_DENIED":
		text = "Screen capture was not allowed."
	case "CAPTURE_TIMEOUT":
		text = "The screen did not produce a frame in time."
	case "BUSY":
		text = "A capture is already running."
	default:
		text = "Screen capture failed."
	}
	if message != "" {
		text = fmt.Sprintf("%s\n\n%s", text, message)
	}
	if len(text) > maxMessageLen {
		text = text[:maxMessageLen] + "..."
	}
	return text
}
