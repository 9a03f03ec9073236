package worker

import (
	"golang.org/x/sys/unix"

	"github.com/searchktools/fastfile/core/httpdate"
	"github.com/searchktools/fastfile/core/task"
)

// Connection is the per-fd state a worker carries between I/O events,
// the Go analogue of lwan_request_t's per-connection fields (spec §3
// Data Model). Only the worker that accepted a Connection ever touches
// it; there is no cross-worker synchronization on this type.
type Connection struct {
	Fd         int
	RemoteAddr string

	// Task drives the connection's request/response logic. Nil
	// between requests on a freshly accepted or keep-alive fd; the
	// worker spawns one with Handler when read data first arrives.
	Task *task.Task

	// ReadBuf is a per-connection scratch buffer reused across
	// requests on the same keep-alive fd, avoiding a fresh allocation
	// per request.
	ReadBuf []byte

	// QueryKV holds the query-string key/value pairs of the most
	// recently parsed request on this connection.
	QueryKV map[string]string

	alive           bool
	queued          bool
	shouldResume    bool
	waitingForWrite bool
	isKeepAlive     bool
	timeToDie       int64

	dates *httpdate.Cache
	w     *Worker
}

// NewConnection builds a Connection not owned by any Worker, for
// embedding this package's per-connection Handler contract outside a
// Group's event loop (unit tests driving a Handler directly against a
// single fd). Reap, TimeToDie, and Alive are meaningless on a
// Connection built this way — those only matter to a Worker's own
// expiration-queue bookkeeping.
func NewConnection(fd int, dates *httpdate.Cache) *Connection {
	return &Connection{Fd: fd, alive: true, dates: dates}
}

// SetKeepAlive marks whether this connection should be kept open for
// another request after its current task finishes, read by the
// worker loop when deciding the next time_to_die.
func (c *Connection) SetKeepAlive(v bool) { c.isKeepAlive = v }

// IsKeepAlive reports the current keep-alive flag.
func (c *Connection) IsKeepAlive() bool { return c.isKeepAlive }

// Dates returns the per-tick Date/Expires string cache a Handler reads
// when building a response.
func (c *Connection) Dates() *httpdate.Cache { return c.dates }

// Alive reports whether this connection is still live, satisfying
// expqueue.Entry.
func (c *Connection) Alive() bool { return c.alive }

// TimeToDie satisfies expqueue.Entry.
func (c *Connection) TimeToDie() int64 { return c.timeToDie }

// Reap satisfies expqueue.Entry: it tears down a connection that
// reached the head of the expiration queue past its time_to_die, or
// that hung up. Freeing the task first (which runs its Defer
// cleanups, e.g. a cache unref) before closing the fd mirrors
// _cleanup_coro's ordering in the teacher's source material.
func (c *Connection) Reap() {
	if !c.alive {
		return
	}
	c.alive = false

	if c.Task != nil {
		c.Task.Free()
		c.Task = nil
	}

	_ = c.w.poller.Remove(c.Fd)
	_ = unix.Close(c.Fd)
	c.w.stats.closed.Add(1)
}

// reset prepares a connection record for reuse on a freshly accepted
// fd, clearing any state left over from a previous occupant of this
// slab slot.
func (c *Connection) reset(w *Worker, fd int, remoteAddr string) {
	c.w = w
	c.dates = w.dates
	c.Fd = fd
	c.RemoteAddr = remoteAddr
	c.Task = nil
	c.ReadBuf = c.ReadBuf[:0]
	c.QueryKV = nil
	c.alive = true
	c.queued = false
	c.shouldResume = false
	c.waitingForWrite = false
	c.isKeepAlive = false
	c.timeToDie = 0
}
