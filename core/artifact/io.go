package artifact

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/searchktools/fastfile/core/task"
)

// ErrCancelled is returned from a write/sendfile loop when the
// connection's task was freed (Free) while suspended waiting for the
// socket to become writable.
var ErrCancelled = errors.New("artifact: task cancelled mid-write")

// writeAll writes buf to fd in full, suspending the task on EAGAIN
// until the worker reports the socket writable again.
func writeAll(t *task.Task, fd int, buf []byte) error {
	for len(buf) > 0 {
		n, err := unix.Write(fd, buf)
		if err != nil {
			if err == unix.EAGAIN {
				if t.Yield(task.ReasonWrite) {
					return ErrCancelled
				}
				continue
			}
			if err == unix.EINTR {
				continue
			}
			return err
		}
		buf = buf[n:]
	}
	return nil
}

// writevAll writes every buffer in iovs to fd, treating them as one
// logical scatter-gather write and suspending on EAGAIN the same way
// writeAll does.
func writevAll(t *task.Task, fd int, iovs [][]byte) error {
	bufs := iovs
	for {
		for len(bufs) > 0 && len(bufs[0]) == 0 {
			bufs = bufs[1:]
		}
		if len(bufs) == 0 {
			return nil
		}

		n, err := unix.Writev(fd, bufs)
		if err != nil {
			if err == unix.EAGAIN {
				if t.Yield(task.ReasonWrite) {
					return ErrCancelled
				}
				continue
			}
			if err == unix.EINTR {
				continue
			}
			return err
		}
		bufs = advance(bufs, n)
	}
}

// advance consumes n bytes across bufs in order, returning the
// remaining (possibly partially-consumed) tail.
func advance(bufs [][]byte, n int) [][]byte {
	for n > 0 && len(bufs) > 0 {
		if n < len(bufs[0]) {
			bufs[0] = bufs[0][n:]
			return bufs
		}
		n -= len(bufs[0])
		bufs = bufs[1:]
	}
	return bufs
}

// sendfileAll transfers count bytes from fileFd to connFd starting at
// offset, using the zero-copy sendfile syscall and suspending the
// task on EAGAIN, following the retry loop in the teacher's
// sendfile.SendFile (adapted onto golang.org/x/sys/unix and the Task
// suspension contract instead of a blocking socket).
func sendfileAll(t *task.Task, connFd, fileFd int, offset int64, count int) error {
	off := offset
	remaining := count

	for remaining > 0 {
		n, err := unix.Sendfile(connFd, fileFd, &off, remaining)
		if err != nil {
			if err == unix.EAGAIN {
				if t.Yield(task.ReasonWrite) {
					return ErrCancelled
				}
				continue
			}
			if err == unix.EINTR {
				continue
			}
			return err
		}
		if n == 0 {
			break
		}
		remaining -= n
	}
	return nil
}
