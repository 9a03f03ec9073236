package artifact

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/searchktools/fastfile/core"
	"github.com/searchktools/fastfile/core/httpdate"
	"github.com/searchktools/fastfile/core/mime"
	"github.com/searchktools/fastfile/core/reqpipeline"
	"github.com/searchktools/fastfile/core/task"
	"golang.org/x/sys/unix"
)

// Large is the zero-copy artifact variant for files at or above the
// small-file threshold. Per spec §4.5's init step, construction records
// only the relative filename and size — no file descriptor is held for
// the artifact's cached lifetime, since a Large entry may sit in the
// cache for its full TTL untouched. Each Serve reopens the file under
// the same pinned root the resolver used, so the escape defense still
// applies on every request.
type Large struct {
	root         *os.Root
	relPath      string
	size         int64
	contentType  string
	lastModified time.Time
}

// NewLarge builds a Large artifact. root must outlive the artifact;
// it's the same *os.Root the resolver pinned at startup.
func NewLarge(root *os.Root, relPath string, info os.FileInfo) *Large {
	return &Large{
		root:         root,
		relPath:      relPath,
		size:         info.Size(),
		contentType:  mime.TypeFor(relPath),
		lastModified: info.ModTime(),
	}
}

// LastModified satisfies Variant.
func (l *Large) LastModified() time.Time { return l.lastModified }

// Close satisfies Variant; Large holds no resources between requests.
func (l *Large) Close() {}

// Serve satisfies Variant.
func (l *Large) Serve(t *task.Task, connFd int, req *reqpipeline.Request, dates *httpdate.Cache) (int, error) {
	if notModified(req, l.lastModified) {
		return writeHeaderOnly(t, connFd, responseHeaders{
			status:       core.StatusNotModified,
			lastModified: l.lastModified,
		}, dates)
	}

	from, to, satisfiable, ranged := parseRange(req.RangeHeader, l.size)
	if ranged && !satisfiable {
		h := responseHeaders{
			status:        core.StatusRangeNotSatisfiable,
			contentType:   l.contentType,
			contentLength: 0,
			contentRange:  fmt.Sprintf("bytes */%d", l.size),
			lastModified:  l.lastModified,
		}
		return writeHeaderOnly(t, connFd, h, dates)
	}
	if !ranged {
		from, to = 0, l.size
	}
	count := to - from

	status := core.StatusOK
	var contentRange string
	if ranged {
		status = core.StatusPartialContent
		contentRange = fmt.Sprintf("bytes %d-%d/%d", from, to-1, l.size)
	}

	h := responseHeaders{
		status:        status,
		contentType:   l.contentType,
		contentLength: count,
		contentRange:  contentRange,
		lastModified:  l.lastModified,
	}

	if req.Method == "HEAD" {
		return writeHeaderOnly(t, connFd, h, dates)
	}

	f, err := l.root.Open(l.relPath)
	if err != nil {
		return 0, classifyReopenErr(err)
	}
	defer f.Close()

	if err := writeAll(t, connFd, buildHeaders(h, dates)); err != nil {
		return 0, err
	}
	if err := sendfileAll(t, connFd, int(f.Fd()), from, int(count)); err != nil {
		return 0, err
	}
	return status, nil
}

// classifyReopenErr maps a reopen failure onto the status codes spec
// §4.5 lists for Large's open step: permission denied maps to 403,
// and running out of file descriptors maps to 503 rather than 404,
// since the file is known to exist (it was resolved once already) and
// the condition is transient. Anything else (e.g. removed between
// resolve and serve) is a 404.
//
// This is a single attempt: spec
// §4.5 allows a Large open to suspend and retry when the descriptor
// table is exhausted, but nothing in this server resumes a task on an
// unrelated fd becoming free, so ENFILE here is surfaced immediately
// as 503 instead.
func classifyReopenErr(err error) error {
	switch {
	case errors.Is(err, unix.EACCES):
		return core.ErrAccessDenied
	case errors.Is(err, unix.ENFILE), errors.Is(err, unix.EMFILE):
		return core.ErrExhausted
	default:
		return core.ErrNotFound
	}
}

// parseRange parses a "bytes=from-to" Range header against size,
// returning the resolved [from, to) byte bounds. Per the documented
// deviation from spec §4.5's literal "to >= from" wording, a range is
// valid when from <= to (the conventional HTTP interpretation); ranged
// reports whether a Range header was present at all, and satisfiable
// reports whether the parsed range could be honored.
func parseRange(header string, size int64) (from, to int64, satisfiable, ranged bool) {
	if header == "" {
		return 0, size, true, false
	}
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, 0, false, true
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		// Multiple ranges aren't supported; reported as unsatisfiable.
		return 0, size, false, true
	}

	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false, true
	}

	startStr, endStr := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

	switch {
	case startStr == "" && endStr != "":
		// Suffix range: last N bytes.
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, false, true
		}
		if n > size {
			n = size
		}
		return size - n, size, true, true

	case startStr != "" && endStr == "":
		start, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil || start < 0 || start >= size {
			return 0, 0, false, true
		}
		return start, size, true, true

	case startStr != "" && endStr != "":
		start, err1 := strconv.ParseInt(startStr, 10, 64)
		end, err2 := strconv.ParseInt(endStr, 10, 64)
		if err1 != nil || err2 != nil || start < 0 || end < start || start >= size {
			return 0, 0, false, true
		}
		if end >= size {
			end = size - 1
		}
		return start, end + 1, true, true

	default:
		return 0, 0, false, true
	}
}
