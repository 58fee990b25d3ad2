package directory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/finwork/invoicefinder/internal/cache"
	"github.com/finwork/invoicefinder/internal/gmail"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock drives cache expiry in tests.
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

func newTestResolver(dir gmail.DirectoryAPI, domain string, static []string, clk cache.Clock) *Resolver {
	return newResolver(dir, domain, static, cache.NewWithClock[[]string](clk, TTL), testLogger())
}

func TestScopeTakesPrecedence(t *testing.T) {
	dir := gmail.NewMockDirectory()
	dir.Members["finance@corp.example"] = []string{"a@corp.example", "b@corp.example"}
	dir.Users["corp.example"] = []string{"everyone@corp.example"}

	r := newTestResolver(dir, "corp.example", []string{"static@corp.example"}, newFakeClock())

	got, err := r.Resolve(context.Background(), "finance@corp.example")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if diff := cmp.Diff([]string{"a@corp.example", "b@corp.example"}, got); diff != "" {
		t.Errorf("mailboxes mismatch (-want +got):\n%s", diff)
	}
	if dir.UsersCalls != 0 {
		t.Errorf("UsersCalls = %d, want 0 when scope is supplied", dir.UsersCalls)
	}
}

func TestStaticListUsedVerbatim(t *testing.T) {
	dir := gmail.NewMockDirectory()
	static := []string{"one@corp.example", "two@corp.example"}

	r := newTestResolver(dir, "corp.example", static, newFakeClock())

	got, err := r.Resolve(context.Background(), "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if diff := cmp.Diff(static, got); diff != "" {
		t.Errorf("mailboxes mismatch (-want +got):\n%s", diff)
	}
	if dir.UsersCalls != 0 || dir.MembersCalls != 0 {
		t.Error("static list resolution must not call the directory API")
	}
}

func TestDomainEnumerationFallback(t *testing.T) {
	dir := gmail.NewMockDirectory()
	dir.Users["corp.example"] = []string{"x@corp.example", "y@corp.example"}

	r := newTestResolver(dir, "corp.example", nil, newFakeClock())

	got, err := r.Resolve(context.Background(), "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d mailboxes, want 2", len(got))
	}
}

func TestGroupMembershipCached(t *testing.T) {
	clk := newFakeClock()
	dir := gmail.NewMockDirectory()
	dir.Members["g@corp.example"] = []string{"m@corp.example"}

	r := newTestResolver(dir, "corp.example", nil, clk)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := r.Resolve(ctx, "g@corp.example"); err != nil {
			t.Fatalf("Resolve #%d: %v", i, err)
		}
	}
	if dir.MembersCalls != 1 {
		t.Errorf("MembersCalls = %d, want 1 (cached)", dir.MembersCalls)
	}

	clk.Advance(TTL + time.Minute)
	if _, err := r.Resolve(ctx, "g@corp.example"); err != nil {
		t.Fatalf("Resolve after expiry: %v", err)
	}
	if dir.MembersCalls != 2 {
		t.Errorf("MembersCalls = %d, want 2 after TTL expiry", dir.MembersCalls)
	}
}

func TestStrategiesCachedIndependently(t *testing.T) {
	dir := gmail.NewMockDirectory()
	dir.Members["g@corp.example"] = []string{"m@corp.example"}
	dir.Users["corp.example"] = []string{"u@corp.example"}

	r := newTestResolver(dir, "corp.example", nil, newFakeClock())
	ctx := context.Background()

	if _, err := r.Resolve(ctx, "g@corp.example"); err != nil {
		t.Fatalf("group Resolve: %v", err)
	}
	if _, err := r.Resolve(ctx, ""); err != nil {
		t.Fatalf("domain Resolve: %v", err)
	}
	// Populating one strategy's cache must not satisfy the other.
	if dir.MembersCalls != 1 || dir.UsersCalls != 1 {
		t.Errorf("calls = (%d members, %d users), want (1, 1)", dir.MembersCalls, dir.UsersCalls)
	}
}

func TestUnavailableWithoutAdminCredential(t *testing.T) {
	r := newTestResolver(nil, "corp.example", nil, newFakeClock())

	_, err := r.Resolve(context.Background(), "")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}

	_, err = r.Resolve(context.Background(), "g@corp.example")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("scoped err = %v, want ErrUnavailable", err)
	}
}

func TestStaticListWorksWithoutAdminCredential(t *testing.T) {
	r := newTestResolver(nil, "", []string{"a@corp.example"}, newFakeClock())

	got, err := r.Resolve(context.Background(), "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 1 || got[0] != "a@corp.example" {
		t.Errorf("got %v, want the configured list", got)
	}
}

func TestProviderErrorPropagates(t *testing.T) {
	dir := gmail.NewMockDirectory()
	dir.MembersError = errors.New("permission denied")

	r := newTestResolver(dir, "corp.example", nil, newFakeClock())

	_, err := r.Resolve(context.Background(), "g@corp.example")
	if err == nil {
		t.Fatal("expected error from failing directory API")
	}
	if errors.Is(err, ErrUnavailable) {
		t.Error("provider failure must not masquerade as ErrUnavailable")
	}
}
