//go:build linux

package poller

import (
	"golang.org/x/sys/unix"
)

const (
	readEvents  = unix.EPOLLIN | unix.EPOLLRDHUP | unix.EPOLLERR | unix.EPOLLET
	writeEvents = unix.EPOLLOUT | unix.EPOLLRDHUP | unix.EPOLLERR
)

// EpollPoller is an epoll-based I/O multiplexer, built on
// golang.org/x/sys/unix rather than the narrower syscall package so it
// has the full flag surface (EPOLLRDHUP, EPOLLET) spec §4.3 re-arming
// needs.
type EpollPoller struct {
	epfd   int
	events []unix.EpollEvent
}

// NewPoller creates a new Poller (Linux).
func NewPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}

	return &EpollPoller{
		epfd:   epfd,
		events: make([]unix.EpollEvent, 1024),
	}, nil
}

// Add registers fd for edge-triggered read readiness.
func (p *EpollPoller) Add(fd int) error {
	ev := unix.EpollEvent{Events: uint32(readEvents), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// ArmRead re-arms fd for edge-triggered read readiness.
func (p *EpollPoller) ArmRead(fd int) error {
	ev := unix.EpollEvent{Events: uint32(readEvents), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

// ArmWrite re-arms fd for level-triggered write readiness.
func (p *EpollPoller) ArmWrite(fd int) error {
	ev := unix.EpollEvent{Events: uint32(writeEvents), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

// Remove stops watching fd.
func (p *EpollPoller) Remove(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait waits for I/O events.
func (p *EpollPoller) Wait(timeoutMillis int) ([]Event, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMillis)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		e := p.events[i]
		out = append(out, Event{
			Fd:       int(e.Fd),
			Readable: e.Events&uint32(unix.EPOLLIN) != 0,
			Writable: e.Events&uint32(unix.EPOLLOUT) != 0,
			HangUp:   e.Events&uint32(unix.EPOLLHUP|unix.EPOLLRDHUP|unix.EPOLLERR) != 0,
		})
	}
	return out, nil
}

// Close closes the Poller.
func (p *EpollPoller) Close() error {
	return unix.Close(p.epfd)
}

// SetNonblock sets non-blocking mode on fd.
func SetNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}
