//go:build windows

package notification

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	mbOK              = 0x00000000
	mbIconError       = 0x00000010
	mbIconInformation = 0x00000040
	mbTopMost         = 0x00040000
)

var (
	user32          = windows.NewLazySystemDLL("user32.dll")
	procMessageBoxW = user32.NewProc("MessageBoxW")
)

// ShowBlockingError shows a top-most error dialog and waits for it to close.
func ShowBlockingError(title, message string) {
	_ = messageBox(title, message, mbOK|mbIconError|mbTopMost)
}

func showPopup(title, message string) error {
	return messageBox(title, message, mbOK|mbIconInformation|mbTopMost)
}

func messageBox(title, message string, flags uintptr) error {
	if err := procMessageBoxW.Find(); err != nil {
		return err
	}
	titlePtr, err := syscall.UTF16PtrFromString(title)
	if err != nil {
		return err
	}
	messagePtr, err := syscall.UTF16PtrFromString(message)
	if err != nil {
		return err
	}
	procMessageBoxW.Call(
		0, // hwnd (no parent window)
		uintptr(unsafe.Pointer(messagePtr)),
		uintptr(unsafe.Pointer(titlePtr)),
		flags,
	)
	return nil
}
