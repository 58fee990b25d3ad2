package cache

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually-advanced clock for cache tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestGetMissingKey(t *testing.T) {
	c := NewWithClock[[]string](newFakeClock(), time.Hour)

	if _, ok := c.Get("absent"); ok {
		t.Error("Get on empty cache returned a hit")
	}
}

func TestSetThenGet(t *testing.T) {
	c := NewWithClock[[]string](newFakeClock(), time.Hour)

	want := []string{"a@example.com", "b@example.com"}
	c.Set("group:finance", want)

	got, ok := c.Get("group:finance")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExpiry(t *testing.T) {
	clk := newFakeClock()
	c := NewWithClock[string](clk, time.Hour)

	c.Set("k", "v")

	clk.Advance(time.Hour - time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Error("entry expired before TTL elapsed")
	}

	clk.Advance(time.Second)
	if _, ok := c.Get("k"); ok {
		t.Error("entry still valid at exactly TTL")
	}
}

func TestRepopulateAfterExpiry(t *testing.T) {
	clk := newFakeClock()
	c := NewWithClock[string](clk, time.Hour)

	c.Set("k", "old")
	clk.Advance(2 * time.Hour)

	if _, ok := c.Get("k"); ok {
		t.Fatal("expected miss after expiry")
	}

	c.Set("k", "new")
	got, ok := c.Get("k")
	if !ok || got != "new" {
		t.Errorf("got (%q, %v), want (new, true)", got, ok)
	}
}

// Concurrent populate-on-miss is tolerated: last writer wins and any of the
// written values is a valid read.
func TestConcurrentPopulate(t *testing.T) {
	c := NewWithClock[int](newFakeClock(), time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c.Set("k", n)
		}(i)
	}
	wg.Wait()

	got, ok := c.Get("k")
	if !ok {
		t.Fatal("expected hit after concurrent writes")
	}
	if got < 0 || got > 9 {
		t.Errorf("got %d, want a value one of the writers stored", got)
	}
}

func TestNilClockPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewWithClock(nil) did not panic")
		}
	}()
	NewWithClock[string](nil, time.Hour)
}
