package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	entries []Entry
	err     error
	since   []time.Time
	limits  []int
}

func (s *fakeStore) Since(since time.Time, limit int) ([]Entry, error) {
	s.since = append(s.since, since)
	s.limits = append(s.limits, limit)
	return s.entries, s.err
}

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) add(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestCheckDedupsSamePath(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	store := &fakeStore{entries: []Entry{{Path: "/home/u/Pictures/Screenshots/shot1.png", AddedAt: now}}}
	c := &collector{}
	w := New(c.add, Options{
		Dirs:     []string{"/unused"},
		Store:    store,
		Clock:    func() time.Time { return now },
		ReadFile: func(string) ([]byte, error) { return []byte("png"), nil },
	})

	w.Check()
	w.Check()

	require.Equal(t, 1, c.len())
	ev := c.events[0]
	assert.Equal(t, "/home/u/Pictures/Screenshots/shot1.png", ev.Path)
	assert.Equal(t, now.UnixMilli(), ev.DetectedAt)
	assert.Equal(t, []byte("png"), ev.Raw)
}

func TestCheckBoundsQueryWindow(t *testing.T) {
	start := time.Date(2026, 3, 4, 5, 0, 0, 500_000_000, time.UTC)
	now := start
	store := &fakeStore{}
	w := New(nil, Options{
		Dirs:       []string{"/unused"},
		Store:      store,
		Window:     time.Minute,
		MaxResults: 5,
		Clock:      func() time.Time { return now },
	})

	w.Check()
	now = start.Add(time.Hour)
	w.Check()

	require.Len(t, store.since, 2)
	assert.Equal(t, start.Truncate(time.Second), store.since[0])
	assert.Equal(t, now.Add(-time.Minute).Truncate(time.Second), store.since[1])
	assert.Equal(t, []int{5, 5}, store.limits)
}

func TestCheckIgnoresNonScreenshots(t *testing.T) {
	store := &fakeStore{entries: []Entry{
		{Path: "/home/u/Downloads/cat.png"},
		{Path: "/home/u/Pictures/Screenshots/older.png"},
	}}
	c := &collector{}
	w := New(c.add, Options{Dirs: []string{"/unused"}, Store: store})
	w.Check()
	assert.Zero(t, c.len())
}

func TestCheckSwallowsErrors(t *testing.T) {
	c := &collector{}
	w := New(c.add, Options{Dirs: []string{"/unused"}, Store: &fakeStore{err: errors.New("denied")}})
	w.Check()

	store := &fakeStore{entries: []Entry{{Path: "/x/Screenshot 1.png"}}}
	reads := 0
	w = New(c.add, Options{
		Dirs:  []string{"/unused"},
		Store: store,
		ReadFile: func(string) ([]byte, error) {
			reads++
			return nil, os.ErrPermission
		},
	})
	w.Check()
	w.Check()
	assert.Zero(t, c.len())
	assert.Equal(t, 2, reads, "a failed read must not mark the path as seen")
}

func TestLooksLikeScreenshot(t *testing.T) {
	yes := []string{
		`C:\Users\u\Pictures\Screenshots\a.png`,
		"/sdcard/DCIM/Screenshots/a.jpg",
		"/home/u/Desktop/Screen Shot 2026-01-01.png",
		"/home/u/스크린샷/a.png",
		"/home/u/Bilder/Bildschirmfoto vom 2026.png",
		"/Users/u/Desktop/截屏2026.png",
	}
	for _, p := range yes {
		assert.True(t, LooksLikeScreenshot(p), p)
	}
	assert.False(t, LooksLikeScreenshot("/home/u/Downloads/photo.png"))
}

func TestDirStoreSinceNewestFirst(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	files := map[string]time.Duration{
		"old.png":   0,
		"mid.jpg":   time.Minute,
		"new.png":   2 * time.Minute,
		"notes.txt": 3 * time.Minute,
	}
	for name, offset := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(name), 0o644))
		require.NoError(t, os.Chtimes(p, base.Add(offset), base.Add(offset)))
	}

	entries, err := DirStore{Dirs: []string{dir, filepath.Join(dir, "missing")}}.Since(base.Add(30*time.Second), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, filepath.Join(dir, "new.png"), entries[0].Path)
	assert.Equal(t, filepath.Join(dir, "mid.jpg"), entries[1].Path)

	entries, err = DirStore{Dirs: []string{dir}}.Since(base, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Join(dir, "new.png"), entries[0].Path)
}

func TestWatcherDetectsNewFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Screenshots")
	require.NoError(t, os.Mkdir(dir, 0o755))
	c := &collector{}
	w := New(c.add, Options{Dirs: []string{dir}, Settle: 20 * time.Millisecond})
	require.NoError(t, w.Start())
	defer w.Stop()

	p := filepath.Join(dir, "capture.png")
	require.NoError(t, os.WriteFile(p, []byte("image"), 0o644))

	require.Eventually(t, func() bool { return c.len() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, p, c.events[0].Path)

	w.Stop()
	w.Stop()
}

func TestStartFailsWithoutFolders(t *testing.T) {
	w := New(nil, Options{Dirs: []string{filepath.Join(t.TempDir(), "absent")}})
	assert.Error(t, w.Start())
	w.Stop()
}
