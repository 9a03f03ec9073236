// Package fileserver wires the path resolver (C4), the three artifact
// variants (C5), and the content cache (C6) into a single
// worker.Handler: the piece the worker (C3) spawns a task with for
// every connection that has data to read.
package fileserver

import (
	"time"

	"github.com/searchktools/fastfile/core/artifact"
	"github.com/searchktools/fastfile/core/cache"
	"github.com/searchktools/fastfile/core/observability"
	"github.com/searchktools/fastfile/core/resolver"
)

// cacheTTL is how long after it is built an artifact stays fresh in
// the cache, whether or not it is used meanwhile; past that, lookups
// miss and it is destroyed on its last Unref.
// Static files rarely change mid-session; this just bounds how long a
// stale mtime can linger in the cache after an on-disk edit.
const cacheTTL = 5 * time.Minute

// Server holds the resolved serving root and the artifact cache built
// on top of it.
type Server struct {
	resolver *resolver.Resolver
	cache    *cache.Cache[artifact.Variant]
	monitor  *observability.PerformanceMonitor
}

// New pins rootPath as the serving root (spec §4.4) and builds the
// cache that lazily resolves and constructs artifacts on first
// request for a given path.
func New(rootPath, indexHTML string) (*Server, error) {
	r, err := resolver.Open(rootPath, indexHTML)
	if err != nil {
		return nil, err
	}

	s := &Server{resolver: r, monitor: observability.NewPerformanceMonitor()}
	s.cache = cache.New[artifact.Variant](cacheTTL, s.build)
	return s, nil
}

// Close releases the pinned root and destroys every cached artifact,
// waiting for in-flight references to drain first.
func (s *Server) Close() error {
	s.cache.DestroyAll()
	return s.resolver.Close()
}

// Stats exposes the underlying cache's lifetime counters.
func (s *Server) Stats() cache.Stats {
	return s.cache.Stats()
}

// Bottlenecks reports any serving path the performance monitor has
// flagged as slow or error-prone over its last analysis window.
func (s *Server) Bottlenecks() []observability.Bottleneck {
	return s.monitor.GetBottlenecks()
}

// build resolves key (a request path) to an artifact kind and
// constructs the matching Variant. It satisfies the cache's
// create func(key string) (V, error) contract.
func (s *Server) build(key string) (artifact.Variant, error) {
	result, err := s.resolver.Resolve(key)
	if err != nil {
		return nil, err
	}

	switch result.Kind {
	case resolver.KindSmall:
		return artifact.NewSmall(result.File, result.Info, result.RelPath)

	case resolver.KindLarge:
		// Large never holds the resolver's handle open between
		// requests; it reopens under the same root each time it serves.
		result.File.Close()
		return artifact.NewLarge(s.resolver.Root(), result.RelPath, result.Info), nil

	default: // resolver.KindDir
		return artifact.NewDir(s.resolver.Root(), result.RelPath, key, result.Info)
	}
}
