package artifact

import (
	"bytes"
	"os"
	"time"

	"github.com/klauspost/compress/flate"
	"golang.org/x/sys/unix"

	"github.com/searchktools/fastfile/core"
	"github.com/searchktools/fastfile/core/httpdate"
	"github.com/searchktools/fastfile/core/mime"
	"github.com/searchktools/fastfile/core/reqpipeline"
	"github.com/searchktools/fastfile/core/task"
)

// Small is the in-memory artifact variant for files under the
// small-file threshold: memory-mapped once at construction, with an
// optional precomputed deflate copy.
type Small struct {
	data         []byte // mmap'd read-only view of the whole file
	compressed   []byte // nil if compression wasn't worth keeping
	contentType  string
	lastModified time.Time
	file         *os.File
}

// NewSmall builds a Small artifact from an already-open file handle
// and its relative path (used only for MIME sniffing by extension).
// NewSmall takes ownership of f: it mmaps f's contents and keeps f
// open for the lifetime of the mapping.
func NewSmall(f *os.File, info os.FileInfo, relPath string) (*Small, error) {
	size := int(info.Size())

	var data []byte
	if size > 0 {
		mapped, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_PRIVATE)
		if err != nil {
			f.Close()
			return nil, err
		}
		_ = unix.Madvise(mapped, unix.MADV_WILLNEED)
		data = mapped
	}

	s := &Small{
		data:         data,
		contentType:  mime.TypeFor(relPath),
		lastModified: info.ModTime(),
		file:         f,
	}

	if mime.Compressible(s.contentType) {
		if compressed, ok := tryDeflate(data); ok {
			s.compressed = compressed
		}
	}

	return s, nil
}

// tryDeflate compresses data and reports whether the result is worth
// keeping: strictly smaller than the uncompressed payload once the
// fixed per-response header overhead is accounted for (spec §4.5).
func tryDeflate(data []byte) ([]byte, bool) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, false
	}
	if _, err := w.Write(data); err != nil {
		return nil, false
	}
	if err := w.Close(); err != nil {
		return nil, false
	}

	if buf.Len()+headerOverhead >= len(data) {
		return nil, false
	}
	return buf.Bytes(), true
}

// LastModified satisfies Variant.
func (s *Small) LastModified() time.Time { return s.lastModified }

// Close releases the memory mapping and the backing file handle.
func (s *Small) Close() {
	if s.data != nil {
		_ = unix.Munmap(s.data)
	}
	_ = s.file.Close()
}

// Serve satisfies Variant.
func (s *Small) Serve(t *task.Task, connFd int, req *reqpipeline.Request, dates *httpdate.Cache) (int, error) {
	if notModified(req, s.lastModified) {
		return writeHeaderOnly(t, connFd, responseHeaders{
			status:       core.StatusNotModified,
			lastModified: s.lastModified,
		}, dates)
	}

	payload := s.data
	encoding := ""
	if req.AcceptsDeflate && s.compressed != nil {
		payload = s.compressed
		encoding = "deflate"
	}

	h := responseHeaders{
		status:          core.StatusOK,
		contentType:     s.contentType,
		contentLength:   int64(len(payload)),
		contentEncoding: encoding,
		lastModified:    s.lastModified,
	}

	if req.Method == "HEAD" {
		return writeHeaderOnly(t, connFd, h, dates)
	}
	return writeWithPayload(t, connFd, h, dates, payload)
}
