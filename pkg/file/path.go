package file

import (
	"path/filepath"
	"strings"
	"unicode"
)

// VideoExts lists the container formats accepted as local input.
var VideoExts = []string{".mp4", ".mkv", ".avi", ".mov", ".webm"}

func ReplaceExt(path, ext string) string {
	if path == "" {
		return path
	}

	dir := filepath.Dir(path)
	filename := filepath.Base(path)

	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	lastDot := strings.LastIndex(filename, ".")
	if lastDot <= 0 {
		return filepath.Join(dir, filename+ext)
	}

	return filepath.Join(dir, filename[:lastDot]+ext)
}

// Stem returns the base name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	if base == "." || base == "/" {
		return ""
	}
	if lastDot := strings.LastIndex(base, "."); lastDot > 0 {
		return base[:lastDot]
	}
	return base
}

// SanitizeName maps name to something safe for a single path segment.
// Runs of unsupported characters collapse into one underscore.
func SanitizeName(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.TrimSpace(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '.' {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "_.")
	if out == "" {
		return "video"
	}
	return out
}

func IsVideoFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, candidate := range VideoExts {
		if ext == candidate {
			return true
		}
	}
	return false
}
