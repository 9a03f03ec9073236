// Package resolver implements the path resolver (C4): turning a
// request-relative path into an artifact kind plus an open,
// escape-resistant file handle under a pinned root directory.
//
// The teacher and lwan-serve-files.c both defend against path escapes
// with realpath-then-prefix-check. Go 1.24 added os.Root, a built-in
// directory jail that resists both ".." escapes and symlink tricks at
// the syscall level, which is a strictly stronger version of the same
// invariant spec §4.4 asks for — so this resolver uses it instead of
// hand-rolling the prefix check, while keeping the same observable
// contract (escape attempts "miss", i.e. surface as ErrNotFound).
package resolver

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/searchktools/fastfile/core"
)

// Kind identifies which artifact variant a resolved path should use.
type Kind int

const (
	KindSmall Kind = iota
	KindLarge
	KindDir
)

// Result describes a successfully resolved path.
type Result struct {
	Kind    Kind
	RelPath string // path relative to the root, as stored in Large artifacts
	Info    os.FileInfo
	File    *os.File // open handle to RelPath; caller takes ownership
}

// smallFileThreshold is the spec §4.4 cutoff between the Small
// (memory + optional compression) and Large (zero-copy sendfile)
// variants.
const smallFileThreshold = 16384

// Resolver resolves request paths under one pinned root directory.
type Resolver struct {
	root      *os.Root
	indexHTML string
}

// Open pins rootPath as the serving root and returns a Resolver. This
// is the startup-only "fatal process error" boundary of spec §7: a
// failure here should abort the process, not be retried per request.
func Open(rootPath, indexHTML string) (*Resolver, error) {
	if indexHTML == "" {
		indexHTML = "index.html"
	}

	root, err := os.OpenRoot(rootPath)
	if err != nil {
		return nil, err
	}

	return &Resolver{root: root, indexHTML: indexHTML}, nil
}

// Close releases the root directory handle.
func (r *Resolver) Close() error {
	return r.root.Close()
}

// Root returns the pinned root directory handle, for collaborators
// (the Large and Dir artifact variants) that need to reopen a path
// under the same jail after the resolver's own handle has been
// closed.
func (r *Resolver) Root() *os.Root {
	return r.root
}

// Resolve resolves a request path (leading slashes are stripped here)
// to an artifact kind and an open file handle. A permission failure on
// open returns core.ErrAccessDenied; any other failure — escape
// attempt, missing file, stat failure — returns core.ErrNotFound.
func (r *Resolver) Resolve(reqPath string) (Result, error) {
	rel := strings.TrimLeft(reqPath, "/")
	if rel == "" {
		rel = "."
	}

	for {
		f, err := r.root.Open(rel)
		if err != nil {
			return Result{}, classifyOpenErr(err)
		}

		info, err := f.Stat()
		if err != nil {
			f.Close()
			return Result{}, core.ErrNotFound
		}

		if !info.IsDir() {
			kind := KindLarge
			if info.Size() < smallFileThreshold {
				kind = KindSmall
			}
			return Result{Kind: kind, RelPath: rel, Info: info, File: f}, nil
		}

		// Directory: look for <dir>/<index_html> and restart there;
		// otherwise fall through to a directory listing.
		f.Close()

		candidate := path.Join(rel, r.indexHTML)
		if idxFile, idxInfo, err := r.statCandidate(candidate); err == nil {
			if idxInfo.IsDir() {
				idxFile.Close()
				rel = candidate
				continue
			}
			kind := KindLarge
			if idxInfo.Size() < smallFileThreshold {
				kind = KindSmall
			}
			return Result{Kind: kind, RelPath: candidate, Info: idxInfo, File: idxFile}, nil
		}

		return Result{Kind: KindDir, RelPath: rel, Info: info, File: nil}, nil
	}
}

func (r *Resolver) statCandidate(rel string) (*os.File, os.FileInfo, error) {
	f, err := r.root.Open(rel)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, info, nil
}

func classifyOpenErr(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return core.ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		return core.ErrAccessDenied
	default:
		// os.Root.Open reports escape attempts (".." beyond the
		// root, symlink traversal out of the jail) as a plain error
		// that isn't ErrNotExist/ErrPermission; fold those into the
		// same "miss" outcome the spec requires for escapes.
		return core.ErrNotFound
	}
}
