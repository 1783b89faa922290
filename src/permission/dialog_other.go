//go:build !windows && !darwin

package permission

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// dialogPrompter asks through zenity when it is installed.
type dialogPrompter struct{}

func (dialogPrompter) PromptCapture(ctx context.Context) (Decision, error) {
	path, err := exec.LookPath("zenity")
	if err != nil {
		return Declined, ErrNoPrompter
	}
	cmd := exec.CommandContext(ctx, path, "--question", "--title", promptTitle, "--text", promptMessage,
		"--ok-label", "Allow", "--cancel-label", "Deny")
	err = cmd.Run()
	if ctx.Err() != nil {
		return Declined, ctx.Err()
	}
	if err == nil {
		return Approved, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case 1:
			return Declined, nil
		case 5:
			// zenity timed out waiting for a display
			return Declined, ErrServiceUnavailable
		}
	}
	return Declined, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
}
