package runtimeinit

import (
	"fmt"
	"log"
	"os"
	"time"

	"galmuri-capture/src/api"
	"galmuri-capture/src/bridge"
	"galmuri-capture/src/capture"
	"galmuri-capture/src/clipboard"
	"galmuri-capture/src/config"
	"galmuri-capture/src/logutil"
	"galmuri-capture/src/overlay"
	"galmuri-capture/src/permission"
	"galmuri-capture/src/watcher"
	"galmuri-capture/src/worker"
)

const uploadTimeout = 45 * time.Second

type Options struct {
	LoadOptions  config.LoadOptions
	SetupLogging func(bool)
	Surface      overlay.Surface
	Backend      capture.Backend
	Prompter     permission.Prompter
	Overlay      permission.OverlayAccess
	Clipboard    bridge.ImageWriter
	// ForceUpload enables uploads even when AUTO_UPLOAD is off.
	ForceUpload bool
	// DisableUpload turns queued uploads off regardless of AUTO_UPLOAD, for
	// callers that upload the capture themselves.
	DisableUpload bool
}

// App holds the wired components of one process.
type App struct {
	Config  *config.Config
	Broker  *permission.Broker
	Bridge  *bridge.Bridge
	API     *api.Client
	Uploads *worker.Pool
	Watcher *watcher.Watcher
}

func Bootstrap(opts Options) (*App, error) {
	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.SetupLogging != nil {
		opts.SetupLogging(cfg.EnableFileLogging)
	}

	platform, err := api.ParsePlatform(cfg.Platform)
	if err != nil {
		return nil, fmt.Errorf("GALMURI_PLATFORM: %w", err)
	}

	upload := (cfg.AutoUpload || opts.ForceUpload) && !opts.DisableUpload
	if upload {
		if cfg.UserID == "" {
			return nil, fmt.Errorf("GALMURI_USER_ID is required when uploads are enabled")
		}
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("GALMURI_API_KEY is required when uploads are enabled. Checked key file %s and %s env var", cfg.APIKeyPath, config.APIKeyEnvVar)
		}
	}

	app := &App{Config: cfg}
	app.API = api.New(api.Options{BaseURL: cfg.APIURL, APIKey: cfg.APIKey})
	log.Printf("Backend %s, API key %s", cfg.APIURL, logutil.RedactKey(cfg.APIKey))

	clip := opts.Clipboard
	if clip == nil && cfg.CopyToClipboard {
		if err := clipboard.Init(); err != nil {
			return nil, fmt.Errorf("failed to initialize clipboard: %w", err)
		}
		clip = clipboard.Writer{}
	}

	prompter := opts.Prompter
	if prompter == nil {
		prompter = permission.NewPrompter(os.LookupEnv)
	}
	app.Broker = permission.NewBroker(permission.Options{
		Prompter: prompter,
		Overlay:  opts.Overlay,
		GrantTTL: cfg.GrantTTL,
		Attempts: cfg.PermissionTries,
	})

	backend := opts.Backend
	if backend == nil {
		backend = capture.ScreenBackend{Display: cfg.CaptureDisplay}
	}

	bopts := bridge.Options{
		Broker:         app.Broker,
		Backend:        backend,
		Surface:        opts.Surface,
		CaptureTimeout: cfg.CaptureTimeout,
		Clipboard:      clip,
		UploadDetected: upload,
	}
	if upload {
		app.Uploads = worker.New(app.API, 1, uploadTimeout)
		bopts.Uploads = app.Uploads
		bopts.Upload = api.CaptureRequest{UserID: cfg.UserID, Platform: platform}
	}
	app.Bridge = bridge.New(bopts)

	if cfg.WatchEnabled {
		app.Watcher = watcher.New(app.Bridge.NotifyScreenshot, watcher.Options{
			Dirs:       cfg.WatchDirs,
			Window:     cfg.WatchWindow,
			MaxResults: cfg.WatchMaxResults,
		})
	}

	log.Printf("Galmuri capture initialized (hotkey %s, capture timeout %v, uploads %v)", cfg.Hotkey, cfg.CaptureTimeout, upload)
	return app, nil
}

// Close stops the watcher, drains uploads and releases the bridge.
func (a *App) Close() {
	if a.Watcher != nil {
		a.Watcher.Stop()
	}
	a.Bridge.Close()
	if a.Uploads != nil {
		a.Uploads.Close()
	}
}
