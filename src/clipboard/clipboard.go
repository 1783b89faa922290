package clipboard

import (
	"errors"
	"sync"

	"golang.design/x/clipboard"
)

var (
	writeMu  sync.Mutex
	initOnce sync.Once
	initErr  error
)

// ErrUnavailable is returned when the system clipboard cannot be opened.
var ErrUnavailable = errors.New("clipboard unavailable")

func Init() error {
	initOnce.Do(func() { initErr = clipboard.Init() })
	return initErr
}

// WriteImage performs a mutex-guarded clipboard write of PNG bytes.
func WriteImage(png []byte) error {
	if err := Init(); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	if len(png) == 0 {
		return errors.New("empty image")
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	clipboard.Write(clipboard.FmtImage, png)
	return nil
}

// Writer adapts WriteImage to the bridge image sink.
type Writer struct{}

func (Writer) WriteImage(png []byte) error { return WriteImage(png) }
