package permission

import (
	"context"
	"errors"
	"os"
	"strings"
)

// Decision is the user's answer to the capture consent prompt.
type Decision int

const (
	Declined Decision = iota
	Approved
)

func (d Decision) String() string {
	if d == Approved {
		return "approved"
	}
	return "declined"
}

// ErrServiceUnavailable marks a transient failure to reach the consent service.
// The broker retries it with bounded attempts.
var ErrServiceUnavailable = errors.New("consent service unavailable")

// ErrNoPrompter means the platform has no way to ask the user.
var ErrNoPrompter = errors.New("no consent prompt available on this platform")

// Prompter shows the OS capture consent dialog and blocks until the user answers.
type Prompter interface {
	PromptCapture(ctx context.Context) (Decision, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context) (Decision, error)

func (f PrompterFunc) PromptCapture(ctx context.Context) (Decision, error) { return f(ctx) }

// LookupEnvFunc exposes environment probing for testability.
type LookupEnvFunc func(string) (string, bool)

const (
	// CaptureEnvVar pre-answers the capture consent prompt.
	CaptureEnvVar = "GALMURI_SCREEN_CAPTURE"
	// OverlayEnvVar pre-answers the overlay access probe.
	OverlayEnvVar = "GALMURI_OVERLAY"
)

// flag is the interpreted value of an env override.
type flag int

const (
	flagUnset flag = iota
	flagGranted
	flagDenied
	flagUnavailable
)

func interpretFlag(value string) flag {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "granted", "allow", "allowed", "yes", "true":
		return flagGranted
	case "denied", "no", "false", "blocked":
		return flagDenied
	case "unavailable", "unsupported":
		return flagUnavailable
	default:
		return flagUnset
	}
}

// NewPrompter returns the env override prompter chained in front of the
// platform consent dialog.
func NewPrompter(lookup LookupEnvFunc) Prompter {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &chainPrompter{lookup: lookup, dialog: dialogPrompter{}}
}

type chainPrompter struct {
	lookup LookupEnvFunc
	dialog Prompter
}

func (p *chainPrompter) PromptCapture(ctx context.Context) (Decision, error) {
	if value, ok := p.lookup(CaptureEnvVar); ok {
		switch interpretFlag(value) {
		case flagGranted:
			return Approved, nil
		case flagDenied:
			return Declined, nil
		case flagUnavailable:
			return Declined, ErrServiceUnavailable
		}
	}
	return p.dialog.PromptCapture(ctx)
}

const (
	promptTitle   = "Galmuri Diary"
	promptMessage = "Galmuri Diary wants to capture the contents of your screen. Allow screen capture?"
)
