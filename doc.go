/*
Package fastfile provides a high-performance static file HTTP server
built from a per-worker event-driven connection engine and a
file-serving content cache.

Each worker thread owns its own readiness multiplexor (epoll on Linux,
kqueue on BSD/macOS), its own SO_REUSEPORT listening socket, and its
own fd-indexed connection slab and expiration queue; workers never
touch each other's connections. Every accepted connection's
request/response logic runs as a resumable Task, a goroutine suspended
on socket readiness rather than a full blocking read or write, so one
OS thread can drive thousands of connections without a per-connection
goroutine-per-syscall footprint.

On top of that engine sits a path resolver that pins a serving root and
rejects any request path that would escape it, three artifact variants
(small in-memory payloads, optionally deflate-compressed; large files
served via zero-copy sendfile with Range support; directory listings
rendered from a template) and a reference-counted, TTL-evicted content
cache that serves concurrent requests for the same path from one
cached build; a request that finds the cache's lock held builds its
own uncached copy instead of waiting.

Quick Start

	package main

	import (
		"log"
		"os"

		"github.com/searchktools/fastfile/app"
		"github.com/searchktools/fastfile/config"
	)

	func main() {
		cfg, err := config.Load(os.Args[1:])
		if err != nil {
			log.Fatal(err)
		}

		a, err := app.New(cfg)
		if err != nil {
			log.Fatal(err)
		}

		if err := a.Run(); err != nil {
			log.Fatal(err)
		}
	}

Modules

The module is organized as:

  - app: process lifecycle — builds the file server, starts the worker
    group, and drains connections on shutdown
  - config: CLI flags and an optional YAML file for listen address,
    serving root, and worker tuning
  - core/worker: the per-thread connection engine (C3)
  - core/resolver: request-path resolution and jail enforcement (C4)
  - core/artifact: the small/large/directory response variants (C5)
  - core/cache: the refcounted, TTL-evicted content cache (C6)
  - core/fileserver: wiring C4-C6 into a worker.Handler
  - core/reqpipeline: request-line and header parsing
  - core/task: the resumable-task primitive the engine and artifact
    I/O loops suspend on
  - core/poller: epoll/kqueue abstraction
  - core/expqueue: the O(1) connection expiration ring buffer
  - core/httpdate: a once-per-tick cache of formatted Date/Expires
    header strings
  - core/dirtemplate: directory listing HTML rendering
  - core/mime: extension-to-content-type and compressibility lookup
  - core/pools: pooled transient buffers and GC tuning
  - core/observability: per-request timing and bottleneck detection

For more information, see https://github.com/searchktools/fastfile
*/
package fastfile
