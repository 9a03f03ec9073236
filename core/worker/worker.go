// Package worker implements the per-thread event-driven connection
// engine (C3): one readiness multiplexor, one fd-indexed connection
// slab, and one expiration queue per worker, each pinned to its own OS
// thread. Workers never touch each other's connections (spec §5's
// shared-resource policy) — every worker opens its own SO_REUSEPORT
// listening socket and only ever serves fds it accepted itself.
package worker

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/searchktools/fastfile/core/expqueue"
	"github.com/searchktools/fastfile/core/httpdate"
	"github.com/searchktools/fastfile/core/poller"
	"github.com/searchktools/fastfile/core/task"
)

// tickPeriod is the expiration queue's logical clock granularity,
// matching the teacher's 1000ms epoll_wait timeout.
const tickPeriod = time.Second

// Handler is the per-connection request entry point a worker spawns
// as a Task the first time a fd has activity. Implementations type
// assert t.Data.(*Connection) to reach the connection's fd, buffers,
// and metadata.
type Handler func(t *task.Task)

// Stats are a worker's lifetime connection counters.
type Stats struct {
	Accepted     uint64
	Closed       uint64
	AcceptErrors uint64
}

// Worker drives one OS thread's readiness loop.
type Worker struct {
	id       int
	poller   poller.Poller
	listenFd int
	maxFD    int
	slab     []*Connection

	expq           *expqueue.Queue
	keepAliveTicks int64
	dates          *httpdate.Cache
	handler        Handler

	stats struct {
		accepted     atomic.Uint64
		closed       atomic.Uint64
		acceptErrors atomic.Uint64
	}
}

func newWorker(id int, cfg Config) (*Worker, error) {
	fd, err := openListener(cfg.Addr)
	if err != nil {
		return nil, err
	}

	p, err := poller.NewPoller()
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	if err := p.Add(fd); err != nil {
		p.Close()
		unix.Close(fd)
		return nil, err
	}

	maxFD := cfg.MaxFD
	if maxFD <= 0 {
		maxFD = 4096
	}

	keepAliveTicks := int64(cfg.KeepAliveTimeout / tickPeriod)
	if keepAliveTicks <= 0 {
		keepAliveTicks = 1
	}

	w := &Worker{
		id:             id,
		poller:         p,
		listenFd:       fd,
		maxFD:          maxFD,
		slab:           make([]*Connection, maxFD),
		keepAliveTicks: keepAliveTicks,
		dates:          httpdate.New(),
		handler:        cfg.Handler,
	}
	w.expq = expqueue.New(maxFD, w.entryOf)

	return w, nil
}

func (w *Worker) entryOf(fd int) expqueue.Entry {
	return w.slab[fd]
}

// Dates returns the worker's Date/Expires string cache, refreshed once
// per tick; artifact serving reads this instead of formatting
// per-request.
func (w *Worker) Dates() *httpdate.Cache { return w.dates }

// Stats returns a snapshot of this worker's counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Accepted:     w.stats.accepted.Load(),
		Closed:       w.stats.closed.Load(),
		AcceptErrors: w.stats.acceptErrors.Load(),
	}
}

// Run is the worker's event loop. It returns once its poller fd is
// closed by Group.Shutdown or hits an unrecoverable error.
func (w *Worker) Run() {
	defer w.shutdownDrain()

	for {
		timeout := w.expq.TimeoutMillis()
		events, err := w.poller.Wait(timeout)
		if err != nil {
			return
		}

		if len(events) == 0 {
			w.expq.Tick()
			w.dates.Refresh(time.Now())
			continue
		}

		for _, ev := range events {
			if ev.Fd == w.listenFd {
				w.acceptNew()
				continue
			}

			if ev.HangUp {
				w.reapFd(ev.Fd)
				continue
			}

			w.onReadable(ev.Fd)
		}
	}
}

func (w *Worker) acceptNew() {
	for {
		fd, remote, err := acceptOne(w.listenFd)
		if err != nil {
			return
		}

		if fd >= len(w.slab) {
			unix.Close(fd)
			w.stats.acceptErrors.Add(1)
			continue
		}

		conn := w.slab[fd]
		if conn == nil {
			conn = &Connection{}
			w.slab[fd] = conn
		}
		conn.reset(w, fd, remote)

		if err := w.poller.Add(fd); err != nil {
			unix.Close(fd)
			conn.alive = false
			w.stats.acceptErrors.Add(1)
			continue
		}

		w.stats.accepted.Add(1)
	}
}

func (w *Worker) reapFd(fd int) {
	if fd < 0 || fd >= len(w.slab) {
		return
	}
	if conn := w.slab[fd]; conn != nil {
		conn.Reap()
	}
}

// onReadable resumes (spawning if necessary) the task owning fd, then
// re-arms the multiplexor and the expiration queue according to the
// outcome, following _spawn_coro_if_needed / _resume_coro_if_needed /
// the death-queue bookkeeping in the teacher's source material.
func (w *Worker) onReadable(fd int) {
	conn := w.slab[fd]
	if conn == nil || !conn.alive {
		return
	}

	if conn.Task == nil {
		conn.Task = task.Create(w.handler, conn)
	}

	running := conn.Task.Resume()

	if running {
		switch conn.Task.LastReason() {
		case task.ReasonWrite:
			conn.waitingForWrite = true
			_ = w.poller.ArmWrite(conn.Fd)
		default:
			conn.waitingForWrite = false
			_ = w.poller.ArmRead(conn.Fd)
		}
	} else {
		conn.Task.Free()
		conn.Task = nil
	}

	if running || conn.isKeepAlive {
		conn.timeToDie = w.expq.Time() + w.keepAliveTicks
	} else {
		conn.timeToDie = w.expq.Time()
	}

	if !conn.queued {
		if err := w.expq.Push(conn.Fd); err != nil {
			// Ring buffer at capacity: refuse this connection rather
			// than evict an unrelated one.
			conn.Reap()
			return
		}
		conn.queued = true
	}
}

func (w *Worker) shutdownDrain() {
	for _, conn := range w.slab {
		if conn != nil && conn.alive {
			conn.Reap()
		}
	}
	_ = unix.Close(w.listenFd)
}
