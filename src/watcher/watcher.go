package watcher

import (
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"galmuri-capture/src/apperr"
)

// Event is delivered for each newly detected screenshot.
type Event struct {
	Path       string
	DetectedAt int64 // epoch milliseconds
	Raw        []byte
}

// Callback receives detected screenshots on the watcher goroutine.
type Callback func(Event)

const (
	DefaultWindow     = 60 * time.Second
	DefaultMaxResults = 20
	DefaultSettle     = 300 * time.Millisecond
)

type Options struct {
	Dirs       []string
	Store      Store
	Window     time.Duration
	MaxResults int
	Settle     time.Duration
	Clock      func() time.Time
	ReadFile   func(string) ([]byte, error)
}

// Watcher forwards new screenshots from the watched folders to a callback.
type Watcher struct {
	dirs       []string
	store      Store
	window     time.Duration
	maxResults int
	settle     time.Duration
	now        func() time.Time
	readFile   func(string) ([]byte, error)
	cb         Callback

	mu        sync.Mutex
	lastCheck time.Time
	lastPath  string
	fsw       *fsnotify.Watcher
	stop      chan struct{}
	done      chan struct{}
}

func New(cb Callback, opts Options) *Watcher {
	w := &Watcher{
		dirs:       opts.Dirs,
		store:      opts.Store,
		window:     opts.Window,
		maxResults: opts.MaxResults,
		settle:     opts.Settle,
		now:        opts.Clock,
		readFile:   opts.ReadFile,
		cb:         cb,
	}
	if len(w.dirs) == 0 {
		w.dirs = DefaultDirs()
	}
	if w.store == nil {
		w.store = DirStore{Dirs: w.dirs}
	}
	if w.window <= 0 {
		w.window = DefaultWindow
	}
	if w.maxResults <= 0 {
		w.maxResults = DefaultMaxResults
	}
	if w.settle <= 0 {
		w.settle = DefaultSettle
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.readFile == nil {
		w.readFile = os.ReadFile
	}
	w.lastCheck = w.now()
	return w
}

// Start subscribes to change notifications on the watched folders.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	added := 0
	for _, dir := range w.dirs {
		if err := fsw.Add(dir); err != nil {
			log.Printf("Watcher: skipping %s: %v", dir, err)
			continue
		}
		added++
	}
	if added == 0 && len(w.dirs) > 0 {
		_ = fsw.Close()
		return errors.New("no screenshot folder could be watched")
	}
	w.fsw = fsw
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go w.loop(fsw, w.stop, w.done)
	log.Printf("Watcher: watching %d folder(s)", added)
	return nil
}

// Stop releases the subscription. Safe to call when not started.
func (w *Watcher) Stop() {
	w.mu.Lock()
	fsw, stop, done := w.fsw, w.stop, w.done
	w.fsw = nil
	w.mu.Unlock()
	if fsw == nil {
		return
	}
	close(stop)
	<-done
	if err := fsw.Close(); err != nil {
		log.Printf("Watcher: close: %v", err)
	}
	log.Printf("Watcher: stopped")
}

func (w *Watcher) loop(fsw *fsnotify.Watcher, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	timer := time.NewTimer(w.settle)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.settle)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logFailure("", err)
		case <-timer.C:
			w.Check()
		}
	}
}

// Check queries the store once and forwards the newest matching screenshot.
// Failures are logged and swallowed.
func (w *Watcher) Check() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	since := w.lastCheck
	if floor := now.Add(-w.window); since.Before(floor) {
		since = floor
	}
	since = since.Truncate(time.Second)

	entries, err := w.store.Since(since, w.maxResults)
	if err != nil {
		logFailure("", err)
		return
	}
	if len(entries) == 0 {
		return
	}
	newest := entries[0]
	if !LooksLikeScreenshot(newest.Path) {
		return
	}
	if newest.Path == w.lastPath {
		return
	}
	raw, err := w.readFile(newest.Path)
	if err != nil {
		logFailure(newest.Path, err)
		return
	}
	w.lastPath = newest.Path
	w.lastCheck = now
	log.Printf("Watcher: screenshot detected %s (%d bytes)", newest.Path, len(raw))
	if w.cb != nil {
		w.cb(Event{Path: newest.Path, DetectedAt: now.UnixMilli(), Raw: raw})
	}
}

func logFailure(path string, err error) {
	log.Printf("Watcher: %v (%v)", apperr.ObserverReadFailure(path, err), err)
}
