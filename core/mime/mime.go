// Package mime maps file extensions to Content-Type values. Expanded
// from the teacher's sendfile.GetContentType switch into a table so
// new extensions are a map entry, not a new case.
package mime

import "path/filepath"

var table = map[string]string{
	".html": "text/html; charset=utf-8",
	".htm":  "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "application/javascript; charset=utf-8",
	".mjs":  "application/javascript; charset=utf-8",
	".json": "application/json; charset=utf-8",
	".xml":  "application/xml; charset=utf-8",
	".txt":  "text/plain; charset=utf-8",
	".csv":  "text/csv; charset=utf-8",
	".md":   "text/markdown; charset=utf-8",

	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".webp": "image/webp",
	".avif": "image/avif",

	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".otf":   "font/otf",

	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".gz":   "application/gzip",
	".tar":  "application/x-tar",
	".wasm": "application/wasm",

	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".mp4":  "video/mp4",
	".webm": "video/webm",
}

// defaultType is returned for unrecognised extensions, matching the
// teacher's fallback.
const defaultType = "application/octet-stream"

// TypeFor returns the Content-Type for filename based on its
// extension, falling back to application/octet-stream.
func TypeFor(filename string) string {
	ext := filepath.Ext(filename)
	if ct, ok := table[ext]; ok {
		return ct
	}
	return defaultType
}

// Compressible reports whether content of this type is worth
// attempting deflate compression on. Already-compressed formats
// (images, archives, fonts) are skipped: compressing them again wastes
// CPU for little or negative gain.
func Compressible(contentType string) bool {
	switch contentType {
	case "text/html; charset=utf-8",
		"text/css; charset=utf-8",
		"application/javascript; charset=utf-8",
		"application/json; charset=utf-8",
		"application/xml; charset=utf-8",
		"text/plain; charset=utf-8",
		"text/csv; charset=utf-8",
		"text/markdown; charset=utf-8",
		"image/svg+xml":
		return true
	default:
		return false
	}
}
