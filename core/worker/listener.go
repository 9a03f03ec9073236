package worker

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// openListener opens a raw, non-blocking, SO_REUSEPORT listening socket
// bound to addr ("host:port"). Each worker calls this independently
// with the same address: SO_REUSEPORT lets the kernel load-balance
// incoming connections across them, so every worker only ever touches
// fds it accepted itself, matching spec §5's "connection slab is
// partitioned" shared-resource policy without any cross-worker
// dispatch.
func openListener(addr string) (int, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return -1, fmt.Errorf("worker: resolve %q: %w", addr, err)
	}

	domain := unix.AF_INET
	if tcpAddr.IP == nil || tcpAddr.IP.To4() == nil {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, fmt.Errorf("worker: socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("worker: SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("worker: SO_REUSEPORT: %w", err)
	}

	if err := bind(fd, domain, tcpAddr); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("worker: bind %q: %w", addr, err)
	}

	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("worker: listen: %w", err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("worker: set listener non-blocking: %w", err)
	}

	return fd, nil
}

// listenBacklog matches the teacher's default socket backlog.
const listenBacklog = 1024

func bind(fd, domain int, addr *net.TCPAddr) error {
	if domain == unix.AF_INET6 {
		sa := &unix.SockaddrInet6{Port: addr.Port}
		if addr.IP != nil {
			copy(sa.Addr[:], addr.IP.To16())
		}
		return unix.Bind(fd, sa)
	}

	sa := &unix.SockaddrInet4{Port: addr.Port}
	if addr.IP != nil {
		copy(sa.Addr[:], addr.IP.To4())
	}
	return unix.Bind(fd, sa)
}

// acceptOne accepts one pending connection off fd, returning the new
// fd and remote address. Non-blocking by construction since fd is
// non-blocking.
func acceptOne(fd int) (int, string, error) {
	connFd, sa, err := unix.Accept(fd)
	if err != nil {
		return -1, "", err
	}

	if err := unix.SetNonblock(connFd, true); err != nil {
		unix.Close(connFd)
		return -1, "", err
	}

	return connFd, sockaddrString(sa), nil
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		ip := net.IP(a.Addr[:])
		return fmt.Sprintf("%s:%d", ip.String(), a.Port)
	case *unix.SockaddrInet6:
		ip := net.IP(a.Addr[:])
		return fmt.Sprintf("[%s]:%d", ip.String(), a.Port)
	default:
		return "unknown"
	}
}
