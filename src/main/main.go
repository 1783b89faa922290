package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"galmuri-capture/src/api"
	"galmuri-capture/src/bridge"
	"galmuri-capture/src/clipboard"
	"galmuri-capture/src/config"
	"galmuri-capture/src/hotkey"
	"galmuri-capture/src/logutil"
	"galmuri-capture/src/mcpserver"
	"galmuri-capture/src/notification"
	"galmuri-capture/src/overlay"
	"galmuri-capture/src/runtimeinit"
	"galmuri-capture/src/server"
	"galmuri-capture/src/tray"
)

const version = "1.0.0"

type mainOptions struct {
	runOnce    bool
	upload     bool
	mcp        bool
	noTray     bool
	verbose    bool
	apiKeyPath string
	addr       string
	output     string
}

func main() {
	// Ensure DPI awareness before querying display metrics
	enableDPIAwareness()

	// systray needs the main goroutine on its own OS thread
	runtime.LockOSThread()

	if err := runWithArgs(normalizeLegacyArgs(os.Args)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runWithArgs(args []string) error {
	if len(args) == 0 {
		args = []string{"galmuri-capture"}
	}
	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "galmuri-capture",
		Short:         "Screen capture companion for Galmuri Diary",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case opts.mcp:
				return runMCP(*opts)
			case opts.runOnce:
				return runCaptureOnce(cmd.Context(), *opts)
			default:
				return runResident(*opts)
			}
		},
	}

	cmd.Flags().BoolVar(&opts.runOnce, "run-once", false, "Capture the screen once, copy it to the clipboard and exit")
	cmd.Flags().BoolVar(&opts.upload, "upload", false, "Upload captures to the backend")
	cmd.Flags().BoolVar(&opts.mcp, "mcp", false, "Serve the capture bridge as MCP tools over stdio")
	cmd.Flags().BoolVar(&opts.noTray, "no-tray", false, "Run without the system tray icon")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log to stderr")
	cmd.Flags().StringVar(&opts.apiKeyPath, "api-key-path", "", "Path to API key file (highest precedence)")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "Bridge listen address (overrides BRIDGE_ADDR)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "With --run-once, write the PNG to this file instead of the clipboard")

	return cmd
}

// normalizeLegacyArgs maps single-dash long flags to their GNU form.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}

	normalized := make([]string, len(args))
	copy(normalized, args)

	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		for _, name := range []string{"run-once", "upload", "mcp", "no-tray", "api-key-path", "addr", "output"} {
			switch {
			case arg == "-"+name:
				normalized[i] = "--" + name
			case strings.HasPrefix(arg, "-"+name+"="):
				normalized[i] = "-" + arg
			}
		}
	}

	return normalized
}

func loadOptions(opts mainOptions) config.LoadOptions {
	return config.LoadOptions{APIKeyPathOverride: opts.apiKeyPath, BridgeAddrOverride: opts.addr}
}

func loggingSetup(verbose bool) func(bool) {
	return func(enableFileLogging bool) {
		logutil.Setup(enableFileLogging, logDir(), !verbose)
	}
}

func logDir() string {
	if exe, err := os.Executable(); err == nil {
		return filepath.Dir(exe)
	}
	return "."
}

func runResident(opts mainOptions) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var app *runtimeinit.App
	var tr *tray.Tray
	var surface overlay.Surface
	if !opts.noTray {
		tr = tray.New(tray.Config{
			Title: "Galmuri Capture",
			OnCapture: func() {
				if app == nil {
					return
				}
				if _, err := app.Bridge.CaptureOnce(ctx); err != nil {
					log.Printf("Tray capture failed: %v", err)
				}
			},
			OnExit: cancel,
		})
		surface = tr
	}

	app, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions:  loadOptions(opts),
		SetupLogging: loggingSetup(opts.verbose),
		Surface:      surface,
		ForceUpload:  opts.upload,
	})
	if err != nil {
		notification.ShowBlockingError("Galmuri Capture", err.Error())
		return err
	}
	defer app.Close()
	cfg := app.Config
	logMonitorConfiguration()

	srv := server.New(app.Bridge, version)
	if err := srv.Start(cfg.BridgeAddr); err != nil {
		fmt.Printf("one is already running on %s\n", cfg.BridgeAddr)
		return err
	}
	defer func() { _ = srv.Shutdown(context.Background()) }()

	stopHotkey, err := hotkey.Listen(cfg.Hotkey, func() {
		if err := app.Bridge.Trigger(ctx); err != nil {
			log.Printf("Hotkey capture failed: %v", err)
		}
	})
	if err != nil {
		log.Printf("Hotkey disabled: %v", err)
	} else {
		defer stopHotkey()
	}

	if app.Watcher != nil {
		if err := app.Watcher.Start(); err != nil {
			log.Printf("Screenshot watcher disabled: %v", err)
		}
	}

	go reportFailures(ctx, app.Bridge)

	if tr != nil {
		go func() {
			<-ctx.Done()
			tr.Quit()
		}()
		tr.Run()
		return nil
	}
	<-ctx.Done()
	log.Printf("Shutting down")
	return nil
}

func reportFailures(ctx context.Context, b *bridge.Bridge) {
	events, cancel := b.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type == bridge.EventCaptureFailed {
				notification.ShowCaptureFailed(ev.Code, ev.Message)
			}
		}
	}
}

func runMCP(opts mainOptions) error {
	app, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions: loadOptions(opts),
		// stdout carries the MCP stream
		SetupLogging: func(enable bool) { logutil.Setup(enable, logDir(), false) },
		ForceUpload:  opts.upload,
	})
	if err != nil {
		return err
	}
	defer app.Close()
	return mcpserver.Run(app.Bridge, version)
}

type onceResult struct {
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Bytes     int    `json:"bytes"`
	Delegated bool   `json:"delegated"`
	Output    string `json:"output,omitempty"`
	ItemID    string `json:"item_id,omitempty"`
}

// onceDeps are the side effects of run-once, replaced in tests.
type onceDeps struct {
	runtime   runtimeinit.Options
	clipboard func(png []byte) error
	stdout    io.Writer
}

// runCaptureOnce prefers the resident's bridge and falls back to a standalone capture.
func runCaptureOnce(ctx context.Context, opts mainOptions) error {
	return captureOnceWith(ctx, opts, onceDeps{clipboard: clipboard.WriteImage, stdout: os.Stdout})
}

func captureOnceWith(ctx context.Context, opts mainOptions, deps onceDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.LoadWithOptions(loadOptions(opts))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	loggingSetup(opts.verbose)(cfg.EnableFileLogging)

	res, delegated, err := delegateCapture(ctx, cfg.BridgeAddr)
	if err != nil {
		return err
	}
	if !delegated {
		log.Printf("No resident detected, running standalone")
		rt := deps.runtime
		rt.LoadOptions = loadOptions(opts)
		// --upload posts synchronously below, so the queued AUTO_UPLOAD copy is skipped
		rt.DisableUpload = opts.upload
		app, err := runtimeinit.Bootstrap(rt)
		if err != nil {
			return err
		}
		defer app.Close()
		if res, err = app.Bridge.CaptureOnce(ctx); err != nil {
			return err
		}
	}

	png, err := base64.StdEncoding.DecodeString(res.ImageBase64)
	if err != nil {
		return fmt.Errorf("decode capture: %w", err)
	}
	out := onceResult{Width: res.Width, Height: res.Height, Bytes: len(png), Delegated: delegated}

	if opts.output != "" {
		if err := os.WriteFile(opts.output, png, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", opts.output, err)
		}
		out.Output = opts.output
	} else if err := deps.clipboard(png); err != nil {
		return fmt.Errorf("failed to write to clipboard: %w", err)
	}

	switch {
	case !opts.upload:
	case delegated && cfg.AutoUpload:
		log.Printf("Resident uploads with AUTO_UPLOAD, skipping direct upload")
	default:
		client := api.New(api.Options{BaseURL: cfg.APIURL, APIKey: cfg.APIKey})
		platform, err := api.ParsePlatform(cfg.Platform)
		if err != nil {
			return err
		}
		item, err := client.Capture(ctx, api.CaptureRequest{
			UserID:    cfg.UserID,
			ImageData: res.ImageBase64,
			PageTitle: "Screen capture",
			Platform:  platform,
		})
		if err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}
		out.ItemID = item.ID
	}

	return json.NewEncoder(deps.stdout).Encode(out)
}
