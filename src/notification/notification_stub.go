//go:build !windows

package notification

import "log"

// ShowBlockingError logs instead of showing a dialog.
func ShowBlockingError(title, message string) {
	log.Printf("%s: %s", title, message)
}

func showPopup(title, message string) error {
	log.Printf("Notification: [%s] %s", title, message)
	return nil
}
