package worker

import (
	"fmt"
	"runtime"
	"sync"
	"time"
)

// Config configures a Group of workers serving the same address.
type Config struct {
	// Addr is the "host:port" to listen on. Every worker binds its own
	// SO_REUSEPORT socket to this address.
	Addr string
	// Count is the number of worker threads. Zero means runtime.NumCPU().
	Count int
	// MaxFD bounds each worker's connection slab and expiration queue
	// capacity (spec §6 threads.max_fd).
	MaxFD int
	// KeepAliveTimeout is how long an idle keep-alive connection is
	// kept open (spec §6 keep_alive_timeout), rounded down to whole
	// ticks of one second.
	KeepAliveTimeout time.Duration
	// Handler is the request entry point spawned as a Task per
	// connection.
	Handler Handler
}

// Group owns and supervises Count worker threads, each with its own
// poller, listening socket, and connection slab. There is no
// cross-worker request scheduling (spec §5): fd distribution across
// workers happens for free via SO_REUSEPORT, not by this type.
type Group struct {
	workers []*Worker
	wg      sync.WaitGroup
}

// Start creates and launches cfg.Count workers, each pinned to its own
// OS thread for the lifetime of the Group.
func Start(cfg Config) (*Group, error) {
	count := cfg.Count
	if count <= 0 {
		count = runtime.NumCPU()
	}

	g := &Group{workers: make([]*Worker, 0, count)}

	for i := 0; i < count; i++ {
		w, err := newWorker(i, cfg)
		if err != nil {
			g.Shutdown(0)
			return nil, fmt.Errorf("worker: start worker %d: %w", i, err)
		}
		g.workers = append(g.workers, w)
	}

	g.wg.Add(len(g.workers))
	for _, w := range g.workers {
		w := w
		go func() {
			defer g.wg.Done()
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			w.Run()
		}()
	}

	return g, nil
}

// Shutdown closes every worker's multiplexor fd, which each worker
// loop observes as a fatal Wait error and exits on — mirroring
// lwan_thread_shutdown's "closing epoll_fd makes the thread gracefully
// finish". With timeout <= 0 it blocks until every worker has joined;
// otherwise it waits at most timeout, since a worker mid-keep-alive
// may take close to its own timeout to notice the shutdown.
func (g *Group) Shutdown(timeout time.Duration) {
	for _, w := range g.workers {
		_ = w.poller.Close()
	}

	if timeout <= 0 {
		g.wg.Wait()
		return
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
	}
}

// Stats aggregates every worker's lifetime counters.
func (g *Group) Stats() Stats {
	var total Stats
	for _, w := range g.workers {
		s := w.Stats()
		total.Accepted += s.Accepted
		total.Closed += s.Closed
		total.AcceptErrors += s.AcceptErrors
	}
	return total
}

// Len reports the number of workers in the group.
func (g *Group) Len() int { return len(g.workers) }
