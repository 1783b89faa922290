package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Entry is one image file known to a Store.
type Entry struct {
	Path    string
	AddedAt time.Time
}

// Store lists image entries added at or after since, newest first, at most
// limit results.
type Store interface {
	Since(since time.Time, limit int) ([]Entry, error)
}

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true}

// DirStore scans a fixed set of directories, non-recursively.
type DirStore struct {
	Dirs []string
}

func (s DirStore) Since(since time.Time, limit int) ([]Entry, error) {
	var out []Entry
	var errs []string
	for _, dir := range s.Dirs {
		items, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			errs = append(errs, err.Error())
			continue
		}
		for _, it := range items {
			if it.IsDir() || !imageExts[strings.ToLower(filepath.Ext(it.Name()))] {
				continue
			}
			info, err := it.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(since) {
				continue
			}
			out = append(out, Entry{Path: filepath.Join(dir, it.Name()), AddedAt: info.ModTime()})
		}
	}
	if len(out) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("scan screenshot folders: %s", strings.Join(errs, "; "))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt.After(out[j].AddedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DefaultDirs returns the usual screenshot folders for the current user.
func DefaultDirs() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, "Pictures", "Screenshots"),
		filepath.Join(home, "Desktop"),
		filepath.Join(home, "Pictures"),
	}
}
