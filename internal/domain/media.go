package domain

import (
	"path/filepath"
	"strings"
)

var videoExtensions = map[string]struct{}{
	".mp4":  {},
	".mkv":  {},
	".avi":  {},
	".webm": {},
	".mov":  {},
	".m4v":  {},
	".mpg":  {},
	".mpeg": {},
}

// IsVideoPath reports whether the file path has a recognized video
// container extension.
func IsVideoPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	_, ok := videoExtensions[ext]
	return ok
}
