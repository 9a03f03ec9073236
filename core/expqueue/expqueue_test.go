package expqueue

import "testing"

type fakeEntry struct {
	alive     bool
	timeToDie int64
	reaped    int
}

func (e *fakeEntry) Alive() bool      { return e.alive }
func (e *fakeEntry) TimeToDie() int64 { return e.timeToDie }
func (e *fakeEntry) Reap() {
	e.reaped++
	e.alive = false
}

func TestPushAndTickReapsInArrivalOrder(t *testing.T) {
	entries := map[int]*fakeEntry{
		3: {alive: true, timeToDie: 2},
		7: {alive: true, timeToDie: 2},
		9: {alive: true, timeToDie: 5},
	}

	q := New(8, func(fd int) Entry { return entries[fd] })

	for _, fd := range []int{3, 7, 9} {
		if err := q.Push(fd); err != nil {
			t.Fatalf("Push(%d): %v", fd, err)
		}
	}

	q.Tick() // time=1, nothing due yet
	if q.Population() != 3 {
		t.Fatalf("population after first tick = %d, want 3", q.Population())
	}

	q.Tick() // time=2, fd 3 and 7 are due
	if q.Population() != 1 {
		t.Fatalf("population after second tick = %d, want 1", q.Population())
	}
	if entries[3].reaped != 1 || entries[7].reaped != 1 {
		t.Fatalf("expected fd 3 and 7 reaped exactly once, got %+v %+v", entries[3], entries[7])
	}
	if entries[9].reaped != 0 {
		t.Fatalf("fd 9 should not be reaped yet")
	}
}

func TestTickSkipsAlreadyDeadEntries(t *testing.T) {
	entries := map[int]*fakeEntry{
		1: {alive: false, timeToDie: 1}, // hung up earlier
	}
	q := New(4, func(fd int) Entry { return entries[fd] })
	q.Push(1)

	q.Tick()

	if entries[1].reaped != 0 {
		t.Fatalf("a connection already marked dead must not be reaped again")
	}
	if q.Population() != 0 {
		t.Fatalf("population = %d, want 0", q.Population())
	}
}

func TestPushReturnsErrFullAtCapacity(t *testing.T) {
	entries := map[int]*fakeEntry{0: {alive: true, timeToDie: 100}}
	q := New(1, func(fd int) Entry { return entries[fd] })

	if err := q.Push(0); err != nil {
		t.Fatalf("first push: %v", err)
	}
	if err := q.Push(0); err != ErrFull {
		t.Fatalf("second push error = %v, want ErrFull", err)
	}
}

func TestTimeoutMillisReflectsPopulation(t *testing.T) {
	entries := map[int]*fakeEntry{0: {alive: true, timeToDie: 100}}
	q := New(4, func(fd int) Entry { return entries[fd] })

	if q.TimeoutMillis() != -1 {
		t.Fatalf("empty queue timeout = %d, want -1", q.TimeoutMillis())
	}

	q.Push(0)
	if q.TimeoutMillis() != 1000 {
		t.Fatalf("non-empty queue timeout = %d, want 1000", q.TimeoutMillis())
	}
}
