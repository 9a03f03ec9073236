// Package artifact implements the three artifact variants (C5) the
// content cache builds and serves: Small (in-memory, optionally
// deflate-compressed), Large (zero-copy sendfile with Range support),
// and Dir (pre-rendered HTML directory listing). All three share one
// conditional-GET and header-emission path.
package artifact

import (
	"bytes"
	"fmt"
	"time"

	"github.com/searchktools/fastfile/core"
	"github.com/searchktools/fastfile/core/httpdate"
	"github.com/searchktools/fastfile/core/reqpipeline"
	"github.com/searchktools/fastfile/core/task"
)

// headerOverhead approximates the bytes a Content-Encoding: deflate
// response spends beyond its compressed payload; a compressed copy is
// kept only when it still comes out ahead of this (spec §4.5's "small
// header-overhead constant").
const headerOverhead = 32

// Variant is the common contract every artifact kind implements.
type Variant interface {
	// Serve writes a response for req directly to connFd, suspending
	// t (via Yield) if the socket isn't immediately writable, and
	// returns the HTTP status emitted. dates supplies the worker's
	// once-per-tick Date/Expires strings.
	Serve(t *task.Task, connFd int, req *reqpipeline.Request, dates *httpdate.Cache) (status int, err error)
	// LastModified is compared against If-Modified-Since.
	LastModified() time.Time
	// Close releases any resources (mmap, open fd) held by the
	// variant. Satisfies cache.Artifact.
	Close()
}

// statusText mirrors net/http's reason phrases for the status codes
// this core ever emits.
var statusText = map[int]string{
	core.StatusOK:                  "OK",
	core.StatusPartialContent:      "Partial Content",
	core.StatusNotModified:         "Not Modified",
	core.StatusForbidden:           "Forbidden",
	core.StatusNotFound:            "Not Found",
	core.StatusRangeNotSatisfiable: "Range Not Satisfiable",
	core.StatusInternalError:       "Internal Server Error",
	core.StatusUnavailable:         "Service Unavailable",
}

// responseHeaders describes everything serveCommon needs to emit a
// response's header block.
type responseHeaders struct {
	status          int
	contentType     string
	contentLength   int64
	contentEncoding string
	contentRange    string // "bytes X-Y/Z", only set for 206
	lastModified    time.Time
}

// notModified reports whether req's conditional header means this
// artifact hasn't changed since the client's cached copy. Per spec
// §8's testable property 7 ("If-Modified-Since >= last_modified ->
// 304"), not modified means the client's cache timestamp is at or
// after the artifact's actual modification time.
func notModified(req *reqpipeline.Request, lastModified time.Time) bool {
	ims, ok := httpdate.ParseIfModifiedSince(req.IfModifiedSince)
	if !ok {
		return false
	}
	return !ims.Before(lastModified)
}

// writeHeaderOnly emits just the header block, used for HEAD requests
// and 304 responses.
func writeHeaderOnly(t *task.Task, connFd int, h responseHeaders, dates *httpdate.Cache) (int, error) {
	buf := buildHeaders(h, dates)
	if err := writeAll(t, connFd, buf); err != nil {
		return 0, err
	}
	return h.status, nil
}

// writeWithPayload emits the header block and payload as a single
// scatter-gather write (spec §4.5: "a single scatter-gather write of
// [headers, payload]"), avoiding a copy to concatenate them.
func writeWithPayload(t *task.Task, connFd int, h responseHeaders, dates *httpdate.Cache, payload []byte) (int, error) {
	buf := buildHeaders(h, dates)
	if len(payload) == 0 {
		if err := writeAll(t, connFd, buf); err != nil {
			return 0, err
		}
		return h.status, nil
	}
	if err := writevAll(t, connFd, [][]byte{buf, payload}); err != nil {
		return 0, err
	}
	return h.status, nil
}

// WriteError writes a bodyless response for status, used by the
// request-dispatch layer when a request never reaches a servable
// artifact (resolver miss, access denied, descriptor exhaustion).
func WriteError(t *task.Task, connFd int, status int, dates *httpdate.Cache) error {
	_, err := writeHeaderOnly(t, connFd, responseHeaders{status: status}, dates)
	return err
}

func buildHeaders(h responseHeaders, dates *httpdate.Cache) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "HTTP/1.1 %d %s\r\n", h.status, statusText[h.status])
	fmt.Fprintf(&buf, "%s: %s\r\n", core.HeaderDate, dates.Date())
	fmt.Fprintf(&buf, "%s: %s\r\n", core.HeaderExpires, dates.Expires())

	if h.status != core.StatusNotModified {
		if h.contentType != "" {
			fmt.Fprintf(&buf, "%s: %s\r\n", core.HeaderContentType, h.contentType)
		}
		fmt.Fprintf(&buf, "%s: %d\r\n", core.HeaderContentLength, h.contentLength)
		if h.contentEncoding != "" {
			fmt.Fprintf(&buf, "%s: %s\r\n", core.HeaderContentEncoding, h.contentEncoding)
		}
		if h.contentRange != "" {
			fmt.Fprintf(&buf, "Content-Range: %s\r\n", h.contentRange)
		}
	} else {
		fmt.Fprintf(&buf, "%s: 0\r\n", core.HeaderContentLength)
	}

	if !h.lastModified.IsZero() {
		fmt.Fprintf(&buf, "%s: %s\r\n", core.HeaderLastModified, httpdate.FormatModTime(h.lastModified))
	}

	buf.WriteString("\r\n")
	return buf.Bytes()
}
