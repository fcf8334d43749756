package cache

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/avrelia/anv/internal/domain"
)

// Target pairs a remote item with its deterministic destination file.
type Target struct {
	Item domain.RemoteItem
	Path string
}

// ChapterDir derives the cache directory for one chapter:
// <base>/manga-pages/<manga>/<translation>/<chapter>.
func ChapterDir(base, mangaID string, translation domain.Translation, chapter string) string {
	return filepath.Join(
		base,
		"manga-pages",
		SanitizeSegment(mangaID),
		string(translation),
		SanitizeSegment(chapter),
	)
}

// BuildTargets assigns every page its destination file. Names are the
// 1-based page index, zero-padded, so paths are unique by construction
// and sort in reading order.
func BuildTargets(pages []domain.RemoteItem, dir string) []Target {
	targets := make([]Target, 0, len(pages))
	for i, page := range pages {
		name := fmt.Sprintf("%04d.%s", i+1, InferExtension(page.URL))
		targets = append(targets, Target{Item: page, Path: filepath.Join(dir, name)})
	}
	return targets
}

// SanitizeSegment maps anything outside [A-Za-z0-9._-] to '_' so provider
// ids are safe as path segments. An empty result becomes "unknown".
func SanitizeSegment(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, ch := range value {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
			b.WriteRune(ch)
		case ch == '-' || ch == '_' || ch == '.':
			b.WriteRune(ch)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}

// InferExtension guesses the image extension from the URL path, ignoring
// the query string. Unknown or missing extensions fall back to jpg.
func InferExtension(url string) string {
	path := url
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	ext := strings.ToLower(path[strings.LastIndexByte(path, '.')+1:])
	switch ext {
	case "jpeg":
		return "jpg"
	case "jpg", "png", "webp", "avif", "gif":
		return ext
	default:
		return "jpg"
	}
}
