package watcher

import (
	"path/filepath"
	"strings"
)

var screenshotTokens = []string{
	"screenshot",
	"screen",
	"/pictures/screenshots/",
	"/dcim/screenshots/",
	"스크린샷",
	"bildschirmfoto",
	"スクリーンショット",
	"截屏",
	"截图",
	"captura de pantalla",
	"снимок экрана",
}

// LooksLikeScreenshot applies the case-insensitive path token heuristic.
func LooksLikeScreenshot(path string) bool {
	p := strings.ToLower(filepath.ToSlash(path))
	p = strings.ReplaceAll(p, "\\", "/")
	for _, tok := range screenshotTokens {
		if strings.Contains(p, tok) {
			return true
		}
	}
	return false
}
