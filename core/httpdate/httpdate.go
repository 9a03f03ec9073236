// Package httpdate caches the RFC 1123 "Date" and "Expires" strings a
// worker needs for every response it writes. Formatting a timestamp
// allocates; since every connection on a worker shares the same
// one-second clock tick (spec §9, "Design Notes"), each worker
// refreshes its own cache once per tick instead of formatting on every
// response.
package httpdate

import "time"

// Expiry is how far in the future the Expires header is set for
// cacheable artifacts. Static files rarely change within a session, so
// a short, renewable horizon is enough to let browsers skip
// revalidation without serving stale content indefinitely.
const Expiry = 10 * time.Minute

// Cache holds the formatted strings for one point in time.
type Cache struct {
	now     time.Time
	dateStr string
	expStr  string
}

// New builds a Cache for the current instant.
func New() *Cache {
	c := &Cache{}
	c.Refresh(time.Now())
	return c
}

// Refresh recomputes both strings for t. A worker calls this once per
// expiration-queue tick, not once per request.
func (c *Cache) Refresh(t time.Time) {
	c.now = t
	c.dateStr = t.UTC().Format(http1123)
	c.expStr = t.Add(Expiry).UTC().Format(http1123)
}

// Date returns the cached Date header value.
func (c *Cache) Date() string { return c.dateStr }

// Expires returns the cached Expires header value.
func (c *Cache) Expires() string { return c.expStr }

// Now returns the instant this cache was last refreshed at.
func (c *Cache) Now() time.Time { return c.now }

// http1123 matches net/http's TimeFormat layout; spelled out
// here rather than imported so this package has no net/http
// dependency.
const http1123 = "Mon, 02 Jan 2006 15:04:05 GMT"

// ParseIfModifiedSince parses an If-Modified-Since header value. A
// malformed or empty header is reported as zero time, ok=false.
func ParseIfModifiedSince(v string) (t time.Time, ok bool) {
	if v == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(http1123, v)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// FormatModTime formats a file modification time for Last-Modified.
func FormatModTime(t time.Time) string {
	return t.UTC().Format(http1123)
}
