package fileserver

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"

	"github.com/searchktools/fastfile/core"
	"github.com/searchktools/fastfile/core/artifact"
	"github.com/searchktools/fastfile/core/pools"
	"github.com/searchktools/fastfile/core/reqpipeline"
	"github.com/searchktools/fastfile/core/task"
	"github.com/searchktools/fastfile/core/worker"
)

// readChunk is how much is read from a connection's fd per syscall
// while accumulating a request; most static-file GET/HEAD requests
// fit in one read.
const readChunk = 4096

// maxRequestBytes bounds how large a request header block this server
// will buffer before giving up, so a client that never sends a
// terminator can't grow a connection's buffer without limit.
const maxRequestBytes = 64 * 1024

// Handler satisfies worker.Handler: it reads one request off conn's
// fd, resolves and serves it, and marks the connection for reuse or
// closure according to the request's keep-alive outcome.
func (s *Server) Handler(t *task.Task) {
	conn := t.Data.(*worker.Connection)
	start := time.Now()

	req, err := readRequest(t, conn)
	if err != nil {
		conn.SetKeepAlive(false)
		s.monitor.RecordRequest("read", time.Since(start), true)
		return
	}
	conn.QueryKV = req.QueryKV

	artifactVariant, err := s.cache.GetAndRefForTask(t, req.Path)
	if err != nil {
		status := statusFor(err)
		_ = artifact.WriteError(t, conn.Fd, status, conn.Dates())
		conn.SetKeepAlive(false)
		s.monitor.RecordRequest("build", time.Since(start), true)
		return
	}

	_, serveErr := artifactVariant.Serve(t, conn.Fd, req, conn.Dates())
	conn.SetKeepAlive(serveErr == nil && req.KeepAlive)
	s.monitor.RecordRequest("serve", time.Since(start), serveErr != nil)
}

// readRequest accumulates bytes from conn's fd into conn.ReadBuf until
// reqpipeline.Parse reports a complete request, suspending t on EAGAIN
// exactly like the write helpers in core/artifact do.
func readRequest(t *task.Task, conn *worker.Connection) (*reqpipeline.Request, error) {
	for {
		if req, n, err := reqpipeline.Parse(conn.ReadBuf); err == nil {
			conn.ReadBuf = append(conn.ReadBuf[:0], conn.ReadBuf[n:]...)
			return req, nil
		} else if err != reqpipeline.ErrIncomplete {
			return nil, err
		}

		if len(conn.ReadBuf) >= maxRequestBytes {
			return nil, reqpipeline.ErrMalformed
		}

		chunk := pools.GetBytes(readChunk)
		n, err := unix.Read(conn.Fd, chunk)
		if err != nil {
			pools.PutBytes(chunk)
			if err == unix.EAGAIN {
				if t.Yield(task.ReasonRead) {
					return nil, errCancelled
				}
				continue
			}
			if err == unix.EINTR {
				continue
			}
			return nil, err
		}
		if n == 0 {
			pools.PutBytes(chunk)
			return nil, errConnectionClosed
		}
		conn.ReadBuf = append(conn.ReadBuf, chunk[:n]...)
		pools.PutBytes(chunk)
	}
}

var (
	errCancelled        = errors.New("fileserver: task cancelled mid-read")
	errConnectionClosed = errors.New("fileserver: peer closed connection")
)

// statusFor maps a resolver/cache build failure onto the response
// status spec §7's error taxonomy assigns it.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrAccessDenied):
		return core.StatusForbidden
	case errors.Is(err, core.ErrExhausted):
		return core.StatusUnavailable
	case errors.Is(err, core.ErrNotFound):
		return core.StatusNotFound
	default:
		return core.StatusInternalError
	}
}
