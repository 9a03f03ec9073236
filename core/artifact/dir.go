package artifact

import (
	"os"
	"path"
	"strings"
	"time"

	"github.com/searchktools/fastfile/core"
	"github.com/searchktools/fastfile/core/dirtemplate"
	"github.com/searchktools/fastfile/core/httpdate"
	"github.com/searchktools/fastfile/core/mime"
	"github.com/searchktools/fastfile/core/reqpipeline"
	"github.com/searchktools/fastfile/core/task"
)

// Dir is the directory-listing artifact variant: rendered to HTML once
// at construction (spec §4.4 step 4) and served like any other
// in-memory payload thereafter.
type Dir struct {
	html         []byte
	lastModified time.Time
}

// NewDir renders a directory listing for the directory at relPath,
// whose children are read from root. urlPath is the request path used
// to build hrefs and the page title.
func NewDir(root *os.Root, relPath, urlPath string, info os.FileInfo) (*Dir, error) {
	f, err := root.Open(relPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, err
	}

	entries := make([]dirtemplate.Entry, 0, len(names))
	for _, name := range names {
		if strings.HasPrefix(name, ".") {
			continue
		}

		childRel := path.Join(relPath, name)
		childInfo, err := statChild(root, childRel)
		if err != nil {
			continue
		}

		if childInfo.IsDir() {
			entries = append(entries, dirtemplate.Entry{
				Name: name + "/",
				Href: name + "/",
				Icon: "folder",
				Type: "directory",
				Size: "-",
			})
			continue
		}

		entries = append(entries, dirtemplate.Entry{
			Name: name,
			Href: name,
			Icon: "file",
			Type: mime.TypeFor(name),
			Size: dirtemplate.HumanSize(childInfo.Size()),
		})
	}

	html, err := dirtemplate.Render(urlPath, entries)
	if err != nil {
		return nil, err
	}

	return &Dir{html: html, lastModified: info.ModTime()}, nil
}

func statChild(root *os.Root, rel string) (os.FileInfo, error) {
	f, err := root.Open(rel)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Stat()
}

// LastModified satisfies Variant.
func (d *Dir) LastModified() time.Time { return d.lastModified }

// Close satisfies Variant; Dir holds no resources beyond its rendered
// bytes, which the garbage collector reclaims normally.
func (d *Dir) Close() {}

// Serve satisfies Variant.
func (d *Dir) Serve(t *task.Task, connFd int, req *reqpipeline.Request, dates *httpdate.Cache) (int, error) {
	if notModified(req, d.lastModified) {
		return writeHeaderOnly(t, connFd, responseHeaders{
			status:       core.StatusNotModified,
			lastModified: d.lastModified,
		}, dates)
	}

	h := responseHeaders{
		status:        core.StatusOK,
		contentType:   "text/html; charset=utf-8",
		contentLength: int64(len(d.html)),
		lastModified:  d.lastModified,
	}

	if req.Method == "HEAD" {
		return writeHeaderOnly(t, connFd, h, dates)
	}
	return writeWithPayload(t, connFd, h, dates, d.html)
}
