// Package expqueue implements the O(1) idle-connection reaper (C2):
// a fixed-capacity ring buffer of file descriptors ordered by arrival
// time. Because every pushed connection's time_to_die is derived from
// the same monotonic tick plus a constant keep-alive timeout, arrival
// order is expiration order, so reaping the head is always correct
// without a priority queue. Ported from lwan-thread.c's death_queue_t.
package expqueue

import "errors"

// ErrFull is returned by Push when the queue is already tracking
// capacity live connections. The caller must refuse the new
// connection rather than force-reap an unrelated one (see
// SPEC_FULL.md's resolution of the overflow open question).
var ErrFull = errors.New("expqueue: at capacity")

// Entry is the per-fd state the queue needs in order to decide
// whether a connection at the head is actually due for reaping, and
// to reap it.
type Entry interface {
	// Alive reports whether this fd is still a live connection. A
	// hangup event observed by the worker flips this to false in
	// place; the queue lazily skips such entries when it reaches them
	// instead of doing an O(n) mid-queue delete.
	Alive() bool
	// TimeToDie returns the logical tick at which this connection
	// should be reaped if it is still idle then.
	TimeToDie() int64
	// Reap closes the fd, frees any task, and clears the alive flag.
	// Called only when the entry has reached the head of the queue,
	// has reached its time_to_die, and is still alive.
	Reap()
}

// Queue is the expiration ring buffer, sized to a worker's fd slab.
type Queue struct {
	fds        []int
	first      int
	last       int
	population int
	time       int64

	entryOf func(fd int) Entry
}

// New creates a queue with the given capacity. entryOf looks up the
// Entry for a given fd in the owning worker's connection slab.
func New(capacity int, entryOf func(fd int) Entry) *Queue {
	return &Queue{
		fds:     make([]int, capacity),
		entryOf: entryOf,
	}
}

// Push records fd as newly alive. Precondition: the connection is not
// already present in the queue (its Alive() must report false before
// this call returns true via the caller's own bookkeeping).
func (q *Queue) Push(fd int) error {
	if q.population == len(q.fds) {
		return ErrFull
	}

	q.fds[q.last] = fd
	q.last = (q.last + 1) % len(q.fds)
	q.population++
	return nil
}

// Population reports the number of entries currently tracked.
func (q *Queue) Population() int {
	return q.population
}

// Time reports the queue's current logical tick.
func (q *Queue) Time() int64 {
	return q.time
}

// TimeoutMillis reports the wait timeout the worker should pass to its
// readiness multiplexor: 1000ms if anything is being tracked, or -1
// (infinite) if the queue is empty.
func (q *Queue) TimeoutMillis() int {
	if q.population > 0 {
		return 1000
	}
	return -1
}

// Tick advances the logical clock by one and reaps every connection at
// the head whose time_to_die is at or before the new tick. Runs in O(k) where k is
// the number of newly expired entries.
func (q *Queue) Tick() {
	q.time++

	for q.population > 0 {
		fd := q.fds[q.first]
		entry := q.entryOf(fd)

		if entry.TimeToDie() > q.time {
			break
		}

		q.pop()

		// This connection might already have died from a hangup
		// event observed elsewhere; skip it lazily instead of
		// searching it out of the middle of the ring.
		if entry.Alive() {
			entry.Reap()
		}
	}
}

func (q *Queue) pop() {
	q.first = (q.first + 1) % len(q.fds)
	q.population--
}
