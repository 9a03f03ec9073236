package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errTest = errors.New("cache: test create failure")

type fakeArtifact struct {
	id     int
	closed atomic.Bool
}

func (f *fakeArtifact) Close() { f.closed.Store(true) }

func TestGetAndRefCachesAcrossCalls(t *testing.T) {
	var builds atomic.Int64
	c := New(time.Minute, func(key string) (*fakeArtifact, error) {
		return &fakeArtifact{id: int(builds.Add(1))}, nil
	})

	v1, err := c.GetAndRef("a")
	if err != nil {
		t.Fatalf("GetAndRef: %v", err)
	}
	c.Unref("a", v1)

	v2, err := c.GetAndRef("a")
	if err != nil {
		t.Fatalf("GetAndRef: %v", err)
	}
	c.Unref("a", v2)

	if v1 != v2 {
		t.Fatalf("expected the same cached artifact, got distinct builds %d and %d", v1.id, v2.id)
	}
	if builds.Load() != 1 {
		t.Fatalf("builds = %d, want 1", builds.Load())
	}
}

func TestUnrefDestroysOnlyAtZeroRefcount(t *testing.T) {
	c := New(time.Minute, func(key string) (*fakeArtifact, error) {
		return &fakeArtifact{}, nil
	})

	v, _ := c.GetAndRef("a")
	v2, _ := c.GetAndRef("a")

	c.Unref("a", v)
	if v.closed.Load() {
		t.Fatal("artifact closed while still referenced")
	}

	c.Unref("a", v2)
	// Not expired yet, so it stays cached (not destroyed) even at
	// refcount 0 — eviction is lazy per spec §4.6.
	if v.closed.Load() {
		t.Fatal("unexpired artifact should not be destroyed at refcount 0")
	}
}

func TestExpiredEntryIsDestroyedOnLastUnref(t *testing.T) {
	c := New(time.Millisecond, func(key string) (*fakeArtifact, error) {
		return &fakeArtifact{}, nil
	})

	v, _ := c.GetAndRef("a")
	time.Sleep(5 * time.Millisecond)
	c.Unref("a", v)

	if !v.closed.Load() {
		t.Fatal("expected expired, unreferenced artifact to be destroyed")
	}
}

func TestSingleCreationUnderContention(t *testing.T) {
	var builds atomic.Int64
	c := New(time.Minute, func(key string) (*fakeArtifact, error) {
		time.Sleep(time.Millisecond)
		return &fakeArtifact{id: int(builds.Add(1))}, nil
	})

	const workers = 16
	results := make([]*fakeArtifact, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			v, err := c.GetAndRef("shared")
			if err != nil {
				t.Errorf("GetAndRef: %v", err)
				return
			}
			results[i] = v
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if results[i] != results[0] {
			t.Fatalf("worker %d got a different artifact than worker 0", i)
		}
	}
	for _, v := range results {
		c.Unref("shared", v)
	}
}

func TestDestroyAllDrainsAndClosesEverything(t *testing.T) {
	c := New(time.Minute, func(key string) (*fakeArtifact, error) {
		return &fakeArtifact{}, nil
	})

	a, _ := c.GetAndRef("a")
	b, _ := c.GetAndRef("b")
	c.Unref("a", a)
	c.Unref("b", b)

	c.DestroyAll()

	if !a.closed.Load() || !b.closed.Load() {
		t.Fatal("expected both artifacts closed after DestroyAll")
	}
}

// TestConcurrentLookupAndExpiryNeverServesADestroyedEntry hammers
// GetAndRef/Unref around an entry's TTL deadline from many goroutines.
// If a lookup's refcount bump ever raced past a concurrent unref's
// eviction, some goroutine would observe a closed artifact here.
func TestConcurrentLookupAndExpiryNeverServesADestroyedEntry(t *testing.T) {
	c := New(2*time.Millisecond, func(key string) (*fakeArtifact, error) {
		return &fakeArtifact{}, nil
	})

	const workers = 32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				v, err := c.GetAndRef("shared")
				if err != nil {
					t.Errorf("GetAndRef: %v", err)
					return
				}
				if v.closed.Load() {
					t.Error("GetAndRef returned a closed artifact")
					c.Unref("shared", v)
					return
				}
				time.Sleep(time.Microsecond)
				if v.closed.Load() {
					t.Error("artifact closed while still referenced")
				}
				c.Unref("shared", v)
			}
		}()
	}
	wg.Wait()
}

func TestGetAndRefPropagatesCreateError(t *testing.T) {
	wantErr := errTest
	c := New(time.Minute, func(key string) (*fakeArtifact, error) {
		return nil, wantErr
	})

	if _, err := c.GetAndRef("missing"); err != wantErr {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}
