//go:build windows

package permission

import (
	"context"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	mbYesNo        = 0x00000004
	mbIconQuestion = 0x00000020
	mbTopMost      = 0x00040000
	idYes          = 6
)

var (
	user32          = windows.NewLazySystemDLL("user32.dll")
	procMessageBoxW = user32.NewProc("MessageBoxW")
)

// dialogPrompter asks with a top-most MessageBoxW.
type dialogPrompter struct{}

func (dialogPrompter) PromptCapture(ctx context.Context) (Decision, error) {
	if err := procMessageBoxW.Find(); err != nil {
		return Declined, ErrNoPrompter
	}
	titlePtr, _ := syscall.UTF16PtrFromString(promptTitle)
	messagePtr, _ := syscall.UTF16PtrFromString(promptMessage)

	answer := make(chan uintptr, 1)
	go func() {
		ret, _, _ := procMessageBoxW.Call(
			0,
			uintptr(unsafe.Pointer(messagePtr)),
			uintptr(unsafe.Pointer(titlePtr)),
			uintptr(mbYesNo|mbIconQuestion|mbTopMost),
		)
		answer <- ret
	}()

	select {
	case <-ctx.Done():
		return Declined, ctx.Err()
	case ret := <-answer:
		if ret == 0 {
			return Declined, ErrServiceUnavailable
		}
		if ret == idYes {
			return Approved, nil
		}
		return Declined, nil
	}
}
