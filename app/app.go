package app

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/searchktools/fastfile/config"
	"github.com/searchktools/fastfile/core/fileserver"
	"github.com/searchktools/fastfile/core/pools"
	"github.com/searchktools/fastfile/core/worker"
)

// App wires a configuration, a file-serving Handler, and the worker
// Group that drives it, into one runnable process.
type App struct {
	cfg    *config.Config
	server *fileserver.Server
	group  *worker.Group
}

// New builds the file server over cfg.RootPath. It does not start
// accepting connections; call Run for that.
func New(cfg *config.Config) (*App, error) {
	srv, err := fileserver.New(cfg.RootPath, cfg.IndexHTML)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return &App{cfg: cfg, server: srv}, nil
}

// Server returns the underlying file server, for callers that want its
// Stats or Bottlenecks before or during a run.
func (a *App) Server() *fileserver.Server {
	return a.server
}

// Run starts the worker group and blocks until SIGINT or SIGTERM
// arrives.
func (a *App) Run() error {
	pools.ApplyGCConfig(pools.DefaultGCConfig())

	group, err := worker.Start(worker.Config{
		Addr:             a.cfg.ListenAddr,
		Count:            a.cfg.Threads.Count,
		MaxFD:            a.cfg.Threads.MaxFD,
		KeepAliveTimeout: time.Duration(a.cfg.KeepAliveTimeout) * time.Second,
		Handler:          a.server.Handler,
	})
	if err != nil {
		return fmt.Errorf("app: starting worker group: %w", err)
	}
	a.group = group

	log.Printf("🚀 fastfile serving %q on %s across %d threads", a.cfg.RootPath, a.cfg.ListenAddr, group.Len())
	log.Printf("⚡ per-worker epoll/kqueue loop, zero-copy sendfile, keep-alive timeout %ds", a.cfg.KeepAliveTimeout)

	a.awaitSignal()
	return nil
}

// awaitSignal blocks until SIGINT or SIGTERM, then drains every
// worker's in-flight connections before returning.
func (a *App) awaitSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("signal received: %v, draining connections", sig)

	a.group.Shutdown(10 * time.Second)
	if err := a.server.Close(); err != nil {
		log.Printf("error closing file server: %v", err)
	}

	stats := a.server.Stats()
	log.Printf("cache stats at shutdown: hits=%d misses=%d creates=%d floating=%d destroyed=%d",
		stats.Hits, stats.Misses, stats.Creates, stats.Floating, stats.Destroyed)
}
