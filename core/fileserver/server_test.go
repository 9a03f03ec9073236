package fileserver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/searchktools/fastfile/core/httpdate"
	"github.com/searchktools/fastfile/core/task"
	"github.com/searchktools/fastfile/core/worker"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello world"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	s, err := New(dir, "index.html")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testConnection(t *testing.T) (*worker.Connection, *os.File) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	client := os.NewFile(uintptr(fds[0]), "client")
	t.Cleanup(func() { client.Close() })

	conn := worker.NewConnection(fds[1], httpdate.New())
	t.Cleanup(func() { unix.Close(fds[1]) })
	return conn, client
}

func TestHandlerServesKnownFile(t *testing.T) {
	s := newTestServer(t)
	conn, client := testConnection(t)

	if _, err := client.Write([]byte("GET /hello.txt HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	tk := task.Create(s.Handler, conn)
	tk.Resume()

	buf := make([]byte, 4096)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	resp := string(buf[:n])
	if !strings.HasPrefix(resp, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("unexpected status line: %q", resp)
	}
	if !strings.HasSuffix(resp, "hello world") {
		t.Fatalf("missing body: %q", resp)
	}
	if !conn.IsKeepAlive() {
		t.Fatal("expected HTTP/1.1 request to default to keep-alive")
	}
}

func TestHandlerMissingFileReturns404(t *testing.T) {
	s := newTestServer(t)
	conn, client := testConnection(t)

	if _, err := client.Write([]byte("GET /nope.txt HTTP/1.1\r\n\r\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	tk := task.Create(s.Handler, conn)
	tk.Resume()

	buf := make([]byte, 4096)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !strings.HasPrefix(string(buf[:n]), "HTTP/1.1 404 Not Found\r\n") {
		t.Fatalf("unexpected status line: %q", buf[:n])
	}
	if conn.IsKeepAlive() {
		t.Fatal("expected connection not to be kept alive after an error response")
	}
}
