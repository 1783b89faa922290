//go:build darwin

package permission

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// dialogPrompter asks through an AppleScript dialog.
type dialogPrompter struct{}

func (dialogPrompter) PromptCapture(ctx context.Context) (Decision, error) {
	script := fmt.Sprintf(`display dialog %q with title %q buttons {"Deny", "Allow"} default button "Allow"`, promptMessage, promptTitle)
	out, err := exec.CommandContext(ctx, "osascript", "-e", script).Output()
	if ctx.Err() != nil {
		return Declined, ctx.Err()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// osascript exits 1 when the dialog is dismissed
			return Declined, nil
		}
		if errors.Is(err, exec.ErrNotFound) {
			return Declined, ErrNoPrompter
		}
		return Declined, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if strings.Contains(string(out), "button returned:Allow") {
		return Approved, nil
	}
	return Declined, nil
}
